package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"

	"truco/internal/domain"
	"truco/internal/ports"
)

// maxIndexRetries bounds optimistic retries on the per-player game index.
const maxIndexRetries = 5

// StorageEngine is the subset of runtime.NakamaModule the store needs.
type StorageEngine interface {
	StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error)
	StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error)
}

// StorageStore implements ports.GameStore on the Nakama storage engine.
// Games and rounds are system-owned documents; each player owns an index
// of their game ids. Every mutation is a version-guarded write.
type StorageStore struct {
	nk StorageEngine
}

// NewStorageStore creates a storage-engine backed game store.
func NewStorageStore(nk StorageEngine) *StorageStore {
	return &StorageStore{nk: nk}
}

type gameDocument struct {
	ID           string     `json:"id"`
	Player1      string     `json:"player1"`
	Player2      string     `json:"player2"`
	Player1Score int        `json:"player1_score"`
	Player2Score int        `json:"player2_score"`
	StartPlay    time.Time  `json:"start_play"`
	LastPlay     time.Time  `json:"last_play"`
	EndPlay      *time.Time `json:"end_play,omitempty"`
	Winner       string     `json:"winner_player,omitempty"`
	RoundIDs     []string   `json:"round_ids"`
}

type turnDocument struct {
	ID       string    `json:"id"`
	Seq      int       `json:"seq"`
	PlayerID string    `json:"player_id"`
	Play     string    `json:"card_or_action"`
	When     time.Time `json:"when"`
}

type roundDocument struct {
	ID            string         `json:"id"`
	GameID        string         `json:"game_id"`
	Seq           int            `json:"seq"`
	Player1       string         `json:"player1"`
	Player2       string         `json:"player2"`
	Player1Cards  string         `json:"player1_cards"`
	Player2Cards  string         `json:"player2_cards"`
	TrumpCard     string         `json:"trump_card"`
	StarterPlayer string         `json:"starter_player"`
	Score         int            `json:"score"`
	Finished      bool           `json:"finished"`
	Winner        string         `json:"winner_player,omitempty"`
	Turns         []turnDocument `json:"turns"`
}

type indexDocument struct {
	GameIDs []string `json:"game_ids"`
}

type storedObject struct {
	value   string
	version string
	updated time.Time
}

// CreateGame writes the game, its first round and both players' indexes in one batch.
func (s *StorageStore) CreateGame(ctx context.Context, g *domain.Game, first *domain.Round) error {
	gameValue, err := json.Marshal(gameToDocument(g, []string{first.ID}))
	if err != nil {
		return fmt.Errorf("failed to marshal game: %w", err)
	}
	roundValue, err := json.Marshal(roundToDocument(first))
	if err != nil {
		return fmt.Errorf("failed to marshal round: %w", err)
	}

	for attempt := 0; attempt < maxIndexRetries; attempt++ {
		writes := []*runtime.StorageWrite{
			systemWrite(collectionGames, g.ID, string(gameValue), "*"),
			systemWrite(collectionRounds, first.ID, string(roundValue), "*"),
		}
		for _, playerID := range []string{g.Player1, g.Player2} {
			w, err := s.indexWrite(ctx, playerID, g.ID)
			if err != nil {
				return err
			}
			writes = append(writes, w)
		}

		_, err := s.nk.StorageWrite(ctx, writes)
		if err == nil {
			return nil
		}
		if !errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return fmt.Errorf("failed to write game: %w", err)
		}
		// Either an index moved underneath us or the game id is taken.
		if _, ok, rerr := s.read(ctx, collectionGames, g.ID, ""); rerr == nil && ok {
			return fmt.Errorf("game %s already exists", g.ID)
		}
	}
	return fmt.Errorf("failed to write game %s: player index kept changing", g.ID)
}

func (s *StorageStore) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	doc, obj, err := s.readGame(ctx, id)
	if err != nil {
		return nil, err
	}
	return documentToGame(doc, obj), nil
}

func (s *StorageStore) ListGamesByPlayer(ctx context.Context, playerID string, filter ports.GameFilter) ([]*domain.Game, error) {
	idx, _, err := s.readIndex(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if len(idx.GameIDs) == 0 {
		return []*domain.Game{}, nil
	}

	reads := make([]*runtime.StorageRead, 0, len(idx.GameIDs))
	for _, id := range idx.GameIDs {
		reads = append(reads, &runtime.StorageRead{Collection: collectionGames, Key: id})
	}
	objects, err := s.nk.StorageRead(ctx, reads)
	if err != nil {
		return nil, fmt.Errorf("failed to read games: %w", err)
	}

	games := make([]*domain.Game, 0, len(objects))
	for _, o := range objects {
		var doc gameDocument
		if err := json.Unmarshal([]byte(o.GetValue()), &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal game %s: %w", o.GetKey(), err)
		}
		g := documentToGame(&doc, toStored(o))
		if filter.Match(g) {
			games = append(games, g)
		}
	}
	sort.Slice(games, func(i, j int) bool { return games[i].StartPlay.After(games[j].StartPlay) })
	return games, nil
}

func (s *StorageStore) GetRound(ctx context.Context, id string) (*domain.Round, []domain.Turn, error) {
	doc, obj, err := s.readRound(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return documentToRound(doc, obj)
}

func (s *StorageStore) ListRounds(ctx context.Context, gameID string) ([]*domain.Round, error) {
	game, _, err := s.readGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(game.RoundIDs) == 0 {
		return []*domain.Round{}, nil
	}

	reads := make([]*runtime.StorageRead, 0, len(game.RoundIDs))
	for _, id := range game.RoundIDs {
		reads = append(reads, &runtime.StorageRead{Collection: collectionRounds, Key: id})
	}
	objects, err := s.nk.StorageRead(ctx, reads)
	if err != nil {
		return nil, fmt.Errorf("failed to read rounds: %w", err)
	}

	rounds := make([]*domain.Round, 0, len(objects))
	for _, o := range objects {
		var doc roundDocument
		if err := json.Unmarshal([]byte(o.GetValue()), &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal round %s: %w", o.GetKey(), err)
		}
		r, _, err := documentToRound(&doc, toStored(o))
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Seq < rounds[j].Seq })
	return rounds, nil
}

func (s *StorageStore) LastRound(ctx context.Context, gameID string) (*domain.Round, error) {
	game, _, err := s.readGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(game.RoundIDs) == 0 {
		return nil, ports.ErrNotFound
	}
	r, _, err := s.GetRound(ctx, game.RoundIDs[len(game.RoundIDs)-1])
	return r, err
}

// AppendTurn rewrites the round document with the new turn, guarded by the
// version read alongside the prevSeq check.
func (s *StorageStore) AppendTurn(ctx context.Context, r *domain.Round, t domain.Turn, prevSeq int) error {
	doc, obj, err := s.readRound(ctx, r.ID)
	if err != nil {
		return err
	}
	if doc.Finished || len(doc.Turns)-1 != prevSeq {
		return ports.ErrSequenceConflict
	}

	doc.Score = r.Score
	doc.Turns = append(doc.Turns, turnToDocument(t))
	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal round: %w", err)
	}

	_, err = s.nk.StorageWrite(ctx, []*runtime.StorageWrite{
		systemWrite(collectionRounds, r.ID, string(value), obj.version),
	})
	if errors.Is(err, runtime.ErrStorageRejectedVersion) {
		return ports.ErrSequenceConflict
	}
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// FinishRound updates round and game and creates the next round in one batch.
// The game write is guarded by g.Version when set, so scores computed from a
// stale read are rejected.
func (s *StorageStore) FinishRound(ctx context.Context, r *domain.Round, g *domain.Game, next *domain.Round) error {
	roundDoc, roundObj, err := s.readRound(ctx, r.ID)
	if err != nil {
		return err
	}
	if roundDoc.Finished {
		return ports.ErrSequenceConflict
	}
	gameDoc, gameObj, err := s.readGame(ctx, g.ID)
	if err != nil {
		return err
	}

	roundDoc.Finished = true
	roundDoc.Winner = r.WinnerPlayer
	roundDoc.Score = r.Score

	roundIDs := gameDoc.RoundIDs
	if next != nil {
		roundIDs = append(roundIDs, next.ID)
	}
	updatedGame := gameToDocument(g, roundIDs)

	roundValue, err := json.Marshal(roundDoc)
	if err != nil {
		return fmt.Errorf("failed to marshal round: %w", err)
	}
	gameValue, err := json.Marshal(updatedGame)
	if err != nil {
		return fmt.Errorf("failed to marshal game: %w", err)
	}
	gameVersion := gameObj.version
	if g.Version != "" {
		gameVersion = g.Version
	}
	writes := []*runtime.StorageWrite{
		systemWrite(collectionRounds, r.ID, string(roundValue), roundObj.version),
		systemWrite(collectionGames, g.ID, string(gameValue), gameVersion),
	}
	if next != nil {
		nextValue, err := json.Marshal(roundToDocument(next))
		if err != nil {
			return fmt.Errorf("failed to marshal round: %w", err)
		}
		writes = append(writes, systemWrite(collectionRounds, next.ID, string(nextValue), "*"))
	}

	_, err = s.nk.StorageWrite(ctx, writes)
	if errors.Is(err, runtime.ErrStorageRejectedVersion) {
		return ports.ErrSequenceConflict
	}
	if err != nil {
		return fmt.Errorf("failed to finish round: %w", err)
	}
	return nil
}

func (s *StorageStore) indexWrite(ctx context.Context, playerID, gameID string) (*runtime.StorageWrite, error) {
	idx, obj, err := s.readIndex(ctx, playerID)
	if err != nil {
		return nil, err
	}
	version := "*"
	if obj != nil {
		version = obj.version
	}
	idx.GameIDs = append(idx.GameIDs, gameID)
	value, err := json.Marshal(idx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal game index: %w", err)
	}
	return &runtime.StorageWrite{
		Collection:      collectionPlayerGames,
		Key:             playerGamesKey,
		UserID:          playerID,
		Value:           string(value),
		Version:         version,
		PermissionRead:  runtime.STORAGE_PERMISSION_OWNER_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}, nil
}

func (s *StorageStore) readIndex(ctx context.Context, playerID string) (*indexDocument, *storedObject, error) {
	obj, ok, err := s.read(ctx, collectionPlayerGames, playerGamesKey, playerID)
	if err != nil {
		return nil, nil, err
	}
	idx := &indexDocument{}
	if !ok {
		return idx, nil, nil
	}
	if err := json.Unmarshal([]byte(obj.value), idx); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal game index: %w", err)
	}
	return idx, obj, nil
}

func (s *StorageStore) readGame(ctx context.Context, id string) (*gameDocument, *storedObject, error) {
	obj, ok, err := s.read(ctx, collectionGames, id, "")
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ports.ErrNotFound
	}
	var doc gameDocument
	if err := json.Unmarshal([]byte(obj.value), &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal game %s: %w", id, err)
	}
	return &doc, obj, nil
}

func (s *StorageStore) readRound(ctx context.Context, id string) (*roundDocument, *storedObject, error) {
	obj, ok, err := s.read(ctx, collectionRounds, id, "")
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ports.ErrNotFound
	}
	var doc roundDocument
	if err := json.Unmarshal([]byte(obj.value), &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal round %s: %w", id, err)
	}
	return &doc, obj, nil
}

func (s *StorageStore) read(ctx context.Context, collection, key, userID string) (*storedObject, bool, error) {
	objects, err := s.nk.StorageRead(ctx, []*runtime.StorageRead{
		{Collection: collection, Key: key, UserID: userID},
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s/%s: %w", collection, key, err)
	}
	if len(objects) == 0 {
		return nil, false, nil
	}
	return toStored(objects[0]), true, nil
}

func toStored(o *api.StorageObject) *storedObject {
	obj := &storedObject{value: o.GetValue(), version: o.GetVersion()}
	if ts := o.GetUpdateTime(); ts != nil {
		obj.updated = ts.AsTime()
	}
	return obj
}

func systemWrite(collection, key, value, version string) *runtime.StorageWrite {
	return &runtime.StorageWrite{
		Collection:      collection,
		Key:             key,
		Value:           value,
		Version:         version,
		PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}
}

func gameToDocument(g *domain.Game, roundIDs []string) gameDocument {
	return gameDocument{
		ID:           g.ID,
		Player1:      g.Player1,
		Player2:      g.Player2,
		Player1Score: g.Player1Score,
		Player2Score: g.Player2Score,
		StartPlay:    g.StartPlay,
		LastPlay:     g.LastPlay,
		EndPlay:      g.EndPlay,
		Winner:       g.WinnerPlayer,
		RoundIDs:     roundIDs,
	}
}

func documentToGame(doc *gameDocument, obj *storedObject) *domain.Game {
	g := &domain.Game{
		ID:           doc.ID,
		Player1:      doc.Player1,
		Player2:      doc.Player2,
		Player1Score: doc.Player1Score,
		Player2Score: doc.Player2Score,
		StartPlay:    doc.StartPlay,
		LastPlay:     doc.LastPlay,
		EndPlay:      doc.EndPlay,
		WinnerPlayer: doc.Winner,
		Version:      obj.version,
	}
	if g.LastPlay.IsZero() {
		g.LastPlay = obj.updated
	}
	return g
}

func roundToDocument(r *domain.Round) roundDocument {
	return roundDocument{
		ID:            r.ID,
		GameID:        r.GameID,
		Seq:           r.Seq,
		Player1:       r.Player1,
		Player2:       r.Player2,
		Player1Cards:  domain.FormatHand(r.Player1Cards),
		Player2Cards:  domain.FormatHand(r.Player2Cards),
		TrumpCard:     r.TrumpCard.String(),
		StarterPlayer: r.StarterPlayer,
		Score:         r.Score,
		Finished:      r.Finished,
		Winner:        r.WinnerPlayer,
		Turns:         []turnDocument{},
	}
}

func turnToDocument(t domain.Turn) turnDocument {
	return turnDocument{ID: t.ID, Seq: t.Seq, PlayerID: t.PlayerID, Play: t.Play, When: t.When}
}

func documentToRound(doc *roundDocument, obj *storedObject) (*domain.Round, []domain.Turn, error) {
	p1, err := domain.ParseHand(doc.Player1Cards)
	if err != nil {
		return nil, nil, fmt.Errorf("round %s: %w", doc.ID, err)
	}
	p2, err := domain.ParseHand(doc.Player2Cards)
	if err != nil {
		return nil, nil, fmt.Errorf("round %s: %w", doc.ID, err)
	}
	trump, err := domain.ParseCard(doc.TrumpCard)
	if err != nil {
		return nil, nil, fmt.Errorf("round %s: %w", doc.ID, err)
	}

	r := &domain.Round{
		ID:            doc.ID,
		GameID:        doc.GameID,
		Seq:           doc.Seq,
		Player1:       doc.Player1,
		Player2:       doc.Player2,
		Player1Cards:  p1,
		Player2Cards:  p2,
		TrumpCard:     trump,
		StarterPlayer: doc.StarterPlayer,
		Score:         doc.Score,
		Finished:      doc.Finished,
		WinnerPlayer:  doc.Winner,
		Version:       obj.version,
	}
	turns := make([]domain.Turn, 0, len(doc.Turns))
	for _, t := range doc.Turns {
		turns = append(turns, domain.Turn{ID: t.ID, RoundID: doc.ID, Seq: t.Seq, PlayerID: t.PlayerID, Play: t.Play, When: t.When})
	}
	return r, turns, nil
}

var _ ports.GameStore = (*StorageStore)(nil)
