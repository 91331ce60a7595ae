package nakama

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/heroiclabs/nakama-common/runtime"

	"truco/internal/app"
	"truco/internal/ports"
)

// rpcFunc is the Nakama RPC handler signature.
type rpcFunc = func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error)

// Module holds the wired service behind the RPC handlers.
type Module struct {
	service    *app.Service
	publishers []ports.EventPublisher
}

// NewModule builds the RPC surface over service. Events returned by the
// service are handed to every publisher after the request succeeds.
func NewModule(service *app.Service, publishers ...ports.EventPublisher) *Module {
	return &Module{service: service, publishers: publishers}
}

// RegisterRPCs registers Nakama RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer, m *Module) error {
	rpcs := []struct {
		id string
		fn rpcFunc
	}{
		{RpcGameNew, m.rpcGameNew},
		{RpcGameInfo, m.rpcGameInfo},
		{RpcGameList, m.rpcGameList},
		{RpcRoundAll, m.rpcRoundAll},
		{RpcRoundLast, m.rpcRoundLast},
		{RpcRoundFinish, m.rpcRoundFinish},
		{RpcTurnCheck, m.rpcTurnCheck},
		{RpcTurnPlay, m.rpcTurnPlay},
		{RpcLinkConsume, m.rpcLinkConsume},
		{RpcLinkReset, m.rpcLinkReset},
	}
	for _, rpc := range rpcs {
		if err := initializer.RegisterRpc(rpc.id, rpc.fn); err != nil {
			return err
		}
	}
	return nil
}

// rpcGameNew starts a game against another player.
// Payload: {"opponent_username": "..."}
func (m *Module) rpcGameNew(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return "", err
	}
	var req gameNewRequest
	if err := decodePayload(payload, &req); err != nil || req.OpponentUsername == "" {
		return "", errInvalidPayload
	}

	res, events, err := m.service.CreateGame(ctx, caller, req.OpponentUsername)
	if err != nil {
		return "", toRuntimeError(logger, "RpcGameNew", err)
	}
	logger.WithField("user_id", caller.ID).Info("RpcGameNew: created game %s", res.Game.ID)
	m.publish(ctx, logger, "RpcGameNew", events)

	return encodeResponse(NewGameDTO{
		Game:        gameToDTO(res.Game),
		Round:       *dealtToDTO(&res.Round),
		Player1Link: res.Player1Link,
		Player2Link: res.Player2Link,
	})
}

// rpcGameInfo returns one game. Payload: {"game_id": "..."}
func (m *Module) rpcGameInfo(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return "", err
	}
	var req gameRequest
	if err := decodePayload(payload, &req); err != nil || req.GameID == "" {
		return "", errInvalidPayload
	}

	game, err := m.service.GameInfo(ctx, caller, req.GameID)
	if err != nil {
		return "", toRuntimeError(logger, "RpcGameInfo", err)
	}
	return encodeResponse(gameToDTO(*game))
}

// rpcGameList returns the caller's games. Payload: {"status": "active" | "finished" | ""}
func (m *Module) rpcGameList(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return "", err
	}
	var req gameListRequest
	if err := decodePayload(payload, &req); err != nil {
		return "", errInvalidPayload
	}
	filter := ports.GameFilter(req.Status)
	if !filter.Valid() {
		return "", errInvalidPayload
	}

	games, err := m.service.ListGames(ctx, caller, filter)
	if err != nil {
		return "", toRuntimeError(logger, "RpcGameList", err)
	}
	return encodeResponse(map[string]interface{}{"games": gamesToDTO(games)})
}

// rpcRoundAll returns every round of a game. Payload: {"game_id": "..."}
func (m *Module) rpcRoundAll(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return "", err
	}
	var req gameRequest
	if err := decodePayload(payload, &req); err != nil || req.GameID == "" {
		return "", errInvalidPayload
	}

	rounds, err := m.service.Rounds(ctx, caller, req.GameID)
	if err != nil {
		return "", toRuntimeError(logger, "RpcRoundAll", err)
	}
	return encodeResponse(map[string]interface{}{"rounds": roundsToDTO(rounds)})
}

// rpcRoundLast returns the current round of a game. Payload: {"game_id": "..."}
func (m *Module) rpcRoundLast(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return "", err
	}
	var req gameRequest
	if err := decodePayload(payload, &req); err != nil || req.GameID == "" {
		return "", errInvalidPayload
	}

	round, err := m.service.LastRound(ctx, caller, req.GameID)
	if err != nil {
		return "", toRuntimeError(logger, "RpcRoundLast", err)
	}
	return encodeResponse(roundToDTO(*round))
}

// rpcRoundFinish credits a concluded round. Payload: {"round_id": "..."}
func (m *Module) rpcRoundFinish(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return "", err
	}
	var req roundRequest
	if err := decodePayload(payload, &req); err != nil || req.RoundID == "" {
		return "", errInvalidPayload
	}

	res, events, err := m.service.FinishRound(ctx, caller, req.RoundID)
	if err != nil {
		return "", toRuntimeError(logger, "RpcRoundFinish", err)
	}
	logger.WithFields(map[string]interface{}{
		"user_id":  caller.ID,
		"round_id": req.RoundID,
	}).Info("RpcRoundFinish: round won by %s for %d, game over: %v", res.Winner, res.Stake, res.GameOver)
	m.publish(ctx, logger, "RpcRoundFinish", events)

	return encodeResponse(finishToDTO(res))
}

// rpcTurnCheck returns the replayed state of a round. Payload: {"round_id": "..."}
func (m *Module) rpcTurnCheck(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return "", err
	}
	var req roundRequest
	if err := decodePayload(payload, &req); err != nil || req.RoundID == "" {
		return "", errInvalidPayload
	}

	view, err := m.service.CheckRound(ctx, caller, req.RoundID)
	if err != nil {
		return "", toRuntimeError(logger, "RpcTurnCheck", err)
	}
	return encodeResponse(roundViewToDTO(view))
}

// rpcTurnPlay submits a card or action.
// Payload: {"round_id": "...", "prev_seq": -1, "card_or_action": "5♠"}
func (m *Module) rpcTurnPlay(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return "", err
	}
	var req turnPlayRequest
	if err := decodePayload(payload, &req); err != nil || req.RoundID == "" || req.PrevSeq == nil || req.CardOrAction == "" {
		return "", errInvalidPayload
	}

	res, events, err := m.service.SubmitTurn(ctx, caller, req.RoundID, *req.PrevSeq, req.CardOrAction)
	if err != nil {
		return "", toRuntimeError(logger.WithField("user_id", caller.ID), "RpcTurnPlay", err)
	}
	logger.WithFields(map[string]interface{}{
		"user_id":  caller.ID,
		"round_id": req.RoundID,
		"seq":      res.Seq,
	}).Debug("RpcTurnPlay: %s played %s", caller.ID, req.CardOrAction)
	if res.FinishErr != nil {
		logger.WithField("round_id", req.RoundID).Warn("RpcTurnPlay: turn stored but round not finished: %v", res.FinishErr)
	}
	m.publish(ctx, logger, "RpcTurnPlay", events)

	return encodeResponse(turnResultToDTO(res))
}

// rpcLinkConsume redeems a game link. Payload: {"token": "...", "device_id": "..."}
// Callable with a user session or with the server key; the link names the player.
func (m *Module) rpcLinkConsume(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	caller, _ := sessionCaller(ctx)
	var req linkConsumeRequest
	if err := decodePayload(payload, &req); err != nil || req.Token == "" || req.DeviceID == "" {
		return "", errInvalidPayload
	}

	grant, err := m.service.ConsumeLink(ctx, caller, req.Token, req.DeviceID)
	if err != nil {
		return "", toRuntimeError(logger.WithField("user_id", caller.ID), "RpcLinkConsume", err)
	}
	logger.WithField("user_id", grant.PlayerID).Info("RpcLinkConsume: link for game %s consumed, first use: %v", grant.Game.ID, grant.FirstUse)

	return encodeResponse(LinkGrantDTO{
		Game:          gameToDTO(grant.Game),
		PlayerID:      grant.PlayerID,
		Username:      grant.Username,
		Session:       grant.Session,
		SessionExpiry: grant.SessionExpiry,
		FirstUse:      grant.FirstUse,
	})
}

// rpcLinkReset clears the device bound to a game link. Server key only.
// Payload: {"token": "..."}
func (m *Module) rpcLinkReset(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	if _, ok := sessionCaller(ctx); ok {
		return "", errServerOnly
	}
	var req linkResetRequest
	if err := decodePayload(payload, &req); err != nil || req.Token == "" {
		return "", errInvalidPayload
	}

	reset, err := m.service.ResetLink(ctx, req.Token)
	if err != nil {
		return "", toRuntimeError(logger, "RpcLinkReset", err)
	}
	logger.WithFields(map[string]interface{}{
		"game_id":   reset.GameID,
		"player_id": reset.PlayerID,
	}).Info("RpcLinkReset: device binding cleared: %v", reset.Cleared)

	return encodeResponse(LinkResetDTO{GameID: reset.GameID, PlayerID: reset.PlayerID, Cleared: reset.Cleared})
}

func (m *Module) publish(ctx context.Context, logger runtime.Logger, op string, events []ports.Event) {
	if err := app.PublishAll(ctx, events, m.publishers...); err != nil {
		logger.Warn("%s: failed to publish events: %v", op, err)
	}
}

// callerFrom reads the session identity Nakama attaches to the context.
func callerFrom(ctx context.Context) (app.Caller, error) {
	caller, ok := sessionCaller(ctx)
	if !ok {
		return app.Caller{}, errUnauthenticated
	}
	return caller, nil
}

// sessionCaller reports ok=false for requests made with the server key,
// which carry no user id.
func sessionCaller(ctx context.Context) (app.Caller, bool) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return app.Caller{}, false
	}
	caller := app.Caller{ID: userID}
	if vars, ok := ctx.Value(runtime.RUNTIME_CTX_VARS).(map[string]string); ok {
		caller.GameScope = vars[app.SessionVarGameID]
	}
	return caller, true
}

func decodePayload(payload string, v interface{}) error {
	if payload == "" {
		payload = "{}"
	}
	return json.Unmarshal([]byte(payload), v)
}

func encodeResponse(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", runtime.NewError("failed to encode response", codeInternal)
	}
	return string(b), nil
}
