package nakama

import (
	"time"

	"truco/internal/app"
)

// Requests.

type gameNewRequest struct {
	OpponentUsername string `json:"opponent_username"`
}

type gameRequest struct {
	GameID string `json:"game_id"`
}

type gameListRequest struct {
	Status string `json:"status"`
}

type roundRequest struct {
	RoundID string `json:"round_id"`
}

type turnPlayRequest struct {
	RoundID      string `json:"round_id"`
	PrevSeq      *int   `json:"prev_seq"`
	CardOrAction string `json:"card_or_action"`
}

type linkConsumeRequest struct {
	Token    string `json:"token"`
	DeviceID string `json:"device_id"`
}

type linkResetRequest struct {
	Token string `json:"token"`
}

// Responses.

type PlayerDTO struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Score    int    `json:"score"`
}

type GameDTO struct {
	ID           string     `json:"game_id"`
	Player1      PlayerDTO  `json:"player1"`
	Player2      PlayerDTO  `json:"player2"`
	StartPlay    time.Time  `json:"start_play"`
	LastPlay     time.Time  `json:"last_play"`
	EndPlay      *time.Time `json:"end_play,omitempty"`
	Winner       string     `json:"winner_player,omitempty"`
	LastRoundID  string     `json:"last_round_id,omitempty"`
	LastRoundSeq int        `json:"last_round_seq,omitempty"`
}

type RoundDTO struct {
	ID            string   `json:"round_id"`
	GameID        string   `json:"game_id"`
	Seq           int      `json:"seq"`
	StarterPlayer string   `json:"starter_player"`
	Stake         int      `json:"score"`
	TrumpCard     string   `json:"trump_card"`
	Cards         []string `json:"cards"`
	Finished      bool     `json:"finished"`
	Winner        string   `json:"winner_player,omitempty"`
}

type TurnDTO struct {
	ID           string    `json:"turn_id"`
	Seq          int       `json:"seq"`
	PlayerID     string    `json:"player_id"`
	CardOrAction string    `json:"card_or_action"`
	When         time.Time `json:"when"`
}

type TrickDTO struct {
	Player1Card string `json:"player1_card"`
	Player2Card string `json:"player2_card"`
	Winner      string `json:"winner_player,omitempty"`
}

type RoundViewDTO struct {
	RoundID       string     `json:"round_id"`
	GameID        string     `json:"game_id"`
	Seq           int        `json:"seq"`
	Player1       PlayerDTO  `json:"player1"`
	Player2       PlayerDTO  `json:"player2"`
	StarterPlayer string     `json:"starter_player"`
	NextPlayer    string     `json:"next_player,omitempty"`
	Stake         int        `json:"score"`
	TrumpCard     string     `json:"trump_card"`
	Cards         []string   `json:"cards"`
	Remaining     []string   `json:"remaining"`
	Turns         []TurnDTO  `json:"turns"`
	Tricks        []TrickDTO `json:"tricks"`
	Winner        string     `json:"winner_player,omitempty"`
	EndReason     string     `json:"end_reason,omitempty"`
	Finished      bool       `json:"finished"`
	LastSeq       int        `json:"last_seq"`
	Legal         []string   `json:"legal"`
}

type DealtRoundDTO struct {
	RoundID       string   `json:"round_id"`
	Seq           int      `json:"seq"`
	StarterPlayer string   `json:"starter_player"`
	TrumpCard     string   `json:"trump_card"`
	Cards         []string `json:"cards"`
}

type FinishDTO struct {
	RoundID   string         `json:"round_id"`
	Winner    string         `json:"winner_player"`
	Stake     int            `json:"score"`
	Reason    string         `json:"reason"`
	GameOver  bool           `json:"game_over"`
	Game      GameDTO        `json:"game"`
	NextRound *DealtRoundDTO `json:"next_round,omitempty"`
}

type TurnResultDTO struct {
	TurnID     string     `json:"turn_id"`
	Seq        int        `json:"seq"`
	NextPlayer string     `json:"next_player,omitempty"`
	Stake      int        `json:"score"`
	Winner     string     `json:"round_winner,omitempty"`
	Legal      []string   `json:"legal"`
	Finish     *FinishDTO `json:"finish,omitempty"`
}

type NewGameDTO struct {
	Game        GameDTO       `json:"game"`
	Round       DealtRoundDTO `json:"round"`
	Player1Link string        `json:"player1_link,omitempty"`
	Player2Link string        `json:"player2_link,omitempty"`
}

type LinkGrantDTO struct {
	Game          GameDTO `json:"game"`
	PlayerID      string  `json:"player_id"`
	Username      string  `json:"username"`
	Session       string  `json:"session"`
	SessionExpiry int64   `json:"session_expiry"`
	FirstUse      bool    `json:"first_use"`
}

type LinkResetDTO struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	Cleared  bool   `json:"cleared"`
}

func gameToDTO(g app.GameSummary) GameDTO {
	return GameDTO{
		ID:           g.ID,
		Player1:      PlayerDTO{ID: g.Player1.ID, Username: g.Player1.Username, Score: g.Player1.Score},
		Player2:      PlayerDTO{ID: g.Player2.ID, Username: g.Player2.Username, Score: g.Player2.Score},
		StartPlay:    g.StartPlay,
		LastPlay:     g.LastPlay,
		EndPlay:      g.EndPlay,
		Winner:       g.Winner,
		LastRoundID:  g.LastRoundID,
		LastRoundSeq: g.LastRoundSeq,
	}
}

func gamesToDTO(games []app.GameSummary) []GameDTO {
	out := make([]GameDTO, 0, len(games))
	for _, g := range games {
		out = append(out, gameToDTO(g))
	}
	return out
}

func roundToDTO(r app.RoundSummary) RoundDTO {
	return RoundDTO{
		ID:            r.ID,
		GameID:        r.GameID,
		Seq:           r.Seq,
		StarterPlayer: r.StarterPlayer,
		Stake:         r.Stake,
		TrumpCard:     r.TrumpCard,
		Cards:         r.Cards,
		Finished:      r.Finished,
		Winner:        r.Winner,
	}
}

func roundsToDTO(rounds []app.RoundSummary) []RoundDTO {
	out := make([]RoundDTO, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, roundToDTO(r))
	}
	return out
}

func roundViewToDTO(v *app.RoundView) RoundViewDTO {
	dto := RoundViewDTO{
		RoundID:       v.RoundID,
		GameID:        v.GameID,
		Seq:           v.Seq,
		Player1:       PlayerDTO{ID: v.Player1.ID, Username: v.Player1.Username},
		Player2:       PlayerDTO{ID: v.Player2.ID, Username: v.Player2.Username},
		StarterPlayer: v.StarterPlayer,
		NextPlayer:    v.NextPlayer,
		Stake:         v.Stake,
		TrumpCard:     v.TrumpCard,
		Cards:         v.Cards,
		Remaining:     v.Remaining,
		Turns:         make([]TurnDTO, 0, len(v.Turns)),
		Tricks:        make([]TrickDTO, 0, len(v.Tricks)),
		Winner:        v.Winner,
		EndReason:     v.EndReason,
		Finished:      v.Finished,
		LastSeq:       v.LastSeq,
		Legal:         v.Legal,
	}
	for _, t := range v.Turns {
		dto.Turns = append(dto.Turns, TurnDTO{ID: t.ID, Seq: t.Seq, PlayerID: t.PlayerID, CardOrAction: t.Play, When: t.When})
	}
	for _, tr := range v.Tricks {
		dto.Tricks = append(dto.Tricks, TrickDTO{Player1Card: tr.Player1Card, Player2Card: tr.Player2Card, Winner: tr.Winner})
	}
	return dto
}

func dealtToDTO(d *app.DealtRound) *DealtRoundDTO {
	if d == nil {
		return nil
	}
	return &DealtRoundDTO{
		RoundID:       d.RoundID,
		Seq:           d.Seq,
		StarterPlayer: d.StarterPlayer,
		TrumpCard:     d.TrumpCard,
		Cards:         d.Cards,
	}
}

func finishToDTO(f *app.FinishResult) *FinishDTO {
	if f == nil {
		return nil
	}
	return &FinishDTO{
		RoundID:   f.RoundID,
		Winner:    f.Winner,
		Stake:     f.Stake,
		Reason:    f.Reason,
		GameOver:  f.GameOver,
		Game:      gameToDTO(f.Game),
		NextRound: dealtToDTO(f.NextRound),
	}
}

func turnResultToDTO(r *app.TurnResult) TurnResultDTO {
	return TurnResultDTO{
		TurnID:     r.TurnID,
		Seq:        r.Seq,
		NextPlayer: r.NextPlayer,
		Stake:      r.Stake,
		Winner:     r.Winner,
		Legal:      r.Legal,
		Finish:     finishToDTO(r.Finish),
	}
}
