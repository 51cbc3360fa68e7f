package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims содержимое токена оператора
type Claims struct {
	jwt.RegisteredClaims
	Username string   `json:"preferred_username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// JWTManager выпускает и проверяет токены операторов, подписанные общим секретом
type JWTManager struct {
	secret     []byte
	expiration time.Duration
	issuer     string
	now        func() time.Time
}

func NewJWTManager(secret string, expiration time.Duration, issuer string) *JWTManager {
	return &JWTManager{
		secret:     []byte(secret),
		expiration: expiration,
		issuer:     issuer,
		now:        time.Now,
	}
}

// Generate выпускает токен, используется для служебных клиентов и тестов
func (m *JWTManager) Generate(subject, username string, roles []string) (string, error) {
	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   subject,
		},
		Username: username,
		Roles:    roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify реализует interfaces.AuthPort
func (m *JWTManager) Verify(_ context.Context, tokenString string) (*interfaces.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(m.now)}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return &interfaces.Principal{
		Subject:  claims.Subject,
		Username: claims.Username,
		Roles:    claims.Roles,
	}, nil
}
