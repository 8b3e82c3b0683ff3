package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/omero-biomero/tusgate/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the principal next to the standard claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID string   `json:"user_id"`
	Name   string   `json:"name,omitempty"`
	Admin  bool     `json:"admin,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// JWTResolver reads an HS256 bearer token.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret []byte) *JWTResolver {
	return &JWTResolver{secret: secret}
}

func (resolver *JWTResolver) Resolve(r *http.Request) (*model.Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, nil
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return resolver.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return &model.Principal{
		ID:     claims.UserID,
		Name:   claims.Name,
		Admin:  claims.Admin,
		Groups: claims.Groups,
	}, nil
}

// GenerateToken signs a token for principal, used by the token command and tests.
func GenerateToken(principal model.Principal, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: principal.ID,
		Name:   principal.Name,
		Admin:  principal.Admin,
		Groups: principal.Groups,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}
