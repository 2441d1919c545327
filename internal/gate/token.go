package gate

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sharecast/relay/internal/domain"
)

var errBadToken = errors.New("invalid token")

// HMACVerifier validates HS256 access tokens issued by the auth service.
// The subject claim is the member id, "username" carries the display name.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(token string) (domain.Identity, string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", "", errBadToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errBadToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", "", errBadToken
	}
	username, _ := claims["username"].(string)
	if username == "" {
		username = "Unknown"
	}
	return domain.Identity(sub), username, nil
}
