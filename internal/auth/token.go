package auth

import (
	"errors"
	"time"

	"github.com/abenezerw/gebeya/internal/models"
	"github.com/golang-jwt/jwt/v4"
)

const tokenDuration = 24 * time.Hour

var errInvalidToken = errors.New("invalid auth token")

// AuthToken creates and verifies JWT auth tokens carrying the buyer id
type AuthToken struct {
	key []byte
}

// NewAuthToken creates new AuthToken instance
func NewAuthToken(key []byte) *AuthToken {
	return &AuthToken{key: key}
}

// CreateToken creates signed token for user
func (at *AuthToken) CreateToken(user *models.User) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenDuration)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(at.key)
}

// VerifyToken verifies token and extracts its payload
func (at *AuthToken) VerifyToken(tokenString string) (*models.TokenPayload, error) {
	claims := jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return at.key, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, errInvalidToken
	}

	return &models.TokenPayload{BuyerID: claims.Subject}, nil
}
