package app

import (
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
)

// LinkService issues and verifies pre-authorized game links: HS256 tokens
// that let one player open one game.
type LinkService struct {
	linkSecret string
	linkIssuer string
	linkTTL    time.Duration
	now        func() time.Time
}

// LinkClaims is the verified content of a game link.
type LinkClaims struct {
	PlayerID  string
	GameID    string
	ExpiresAt time.Time
}

const (
	linkClaimGame = "gid"
)

func NewLinkService(secret, issuer string, ttl time.Duration) *LinkService {
	return &LinkService{
		linkSecret: secret,
		linkIssuer: issuer,
		linkTTL:    ttl,
		now:        time.Now,
	}
}

// Issue signs a link granting playerID access to gameID.
func (s *LinkService) Issue(gameID, playerID string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("link service is nil")
	}
	if gameID == "" || playerID == "" {
		return "", fmt.Errorf("game and player are required")
	}
	if s.linkSecret == "" || s.linkIssuer == "" {
		return "", fmt.Errorf("link config is incomplete")
	}

	now := s.now()
	claims := jwt.MapClaims{
		"iss":         s.linkIssuer,
		"sub":         playerID,
		"iat":         now.Unix(),
		"exp":         now.Add(s.linkTTL).Unix(),
		linkClaimGame: gameID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.linkSecret))
}

// Verify checks signature, issuer and expiry and returns the link claims.
// Every failure wraps ErrLinkInvalid.
func (s *LinkService) Verify(tokenString string) (LinkClaims, error) {
	if s == nil || s.linkSecret == "" {
		return LinkClaims{}, fmt.Errorf("%w: links disabled", ErrLinkInvalid)
	}

	// Expiry is checked below against s.now.
	parser := jwt.Parser{
		ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
		SkipClaimsValidation: true,
	}
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.linkSecret), nil
	})
	if err != nil {
		return LinkClaims{}, fmt.Errorf("%w: %v", ErrLinkInvalid, err)
	}
	if !token.Valid {
		return LinkClaims{}, fmt.Errorf("%w: token is invalid", ErrLinkInvalid)
	}
	if !claims.VerifyIssuer(s.linkIssuer, true) {
		return LinkClaims{}, fmt.Errorf("%w: unexpected issuer", ErrLinkInvalid)
	}
	if !claims.VerifyExpiresAt(s.now().Unix(), true) {
		return LinkClaims{}, fmt.Errorf("%w: expired", ErrLinkInvalid)
	}

	sub, _ := claims["sub"].(string)
	gid, _ := claims[linkClaimGame].(string)
	if sub == "" || gid == "" {
		return LinkClaims{}, fmt.Errorf("%w: missing subject or game", ErrLinkInvalid)
	}

	var exp time.Time
	if v, ok := claims["exp"].(float64); ok {
		exp = time.Unix(int64(v), 0)
	}
	return LinkClaims{PlayerID: sub, GameID: gid, ExpiresAt: exp}, nil
}
