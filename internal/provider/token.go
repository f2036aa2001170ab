package provider

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the grant embedded in a provider access token: the
// caller's identity plus the one room it may join.
type AccessClaims struct {
	Identity string `json:"identity"`
	RoomName string `json:"room_name"`
	jwt.RegisteredClaims
}

// IssueAccessToken mints a short-lived room access token for one identity.
// The provider validates it against the shared API secret.
func (c *Client) IssueAccessToken(identity, roomName string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Identity: identity,
		RoomName: roomName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.apiKey,
			Subject:   identity,
			ExpiresAt: jwt.NewNumericDate(now.Add(c.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.apiSecret))
}
