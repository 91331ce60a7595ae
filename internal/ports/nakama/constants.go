package nakama

// RPC ids registered with Nakama.
const (
	RpcGameNew     = "truco_game_new"
	RpcGameInfo    = "truco_game_info"
	RpcGameList    = "truco_game_list"
	RpcRoundAll    = "truco_round_all"
	RpcRoundLast   = "truco_round_last"
	RpcRoundFinish = "truco_round_finish"
	RpcTurnCheck   = "truco_turn_check"
	RpcTurnPlay    = "truco_turn_play"
	RpcLinkConsume = "truco_link_consume"
	RpcLinkReset   = "truco_link_reset"
)

// Storage collections.
const (
	collectionGames       = "truco_games"
	collectionRounds      = "truco_rounds"
	collectionPlayerGames = "truco_player_games"
	collectionLinks       = "truco_links"

	playerGamesKey = "index"
)

// Notification codes for game events.
const (
	NotifyGameCreated   = 1001
	NotifyTurnPlayed    = 1002
	NotifyRoundFinished = 1003
	NotifyRoundDealt    = 1004 // sent privately
	NotifyGameEnded     = 1005
)

// gRPC status codes used in runtime errors.
const (
	codeInvalidArgument    = 3
	codeNotFound           = 5
	codePermissionDenied   = 7
	codeFailedPrecondition = 9
	codeAborted            = 10
	codeInternal           = 13
	codeUnauthenticated    = 16
)
