package app

import "time"

// SessionVarGameID is the session variable that scopes a link-issued session to one game.
const SessionVarGameID = "truco_game_id"

// DefaultSessionTTL is the lifetime of sessions minted when a game link is consumed.
const DefaultSessionTTL = 24 * time.Hour
