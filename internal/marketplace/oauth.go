package marketplace

import (
	"context"
	"errors"
	"net/http"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"golang.org/x/oauth2"
)

// ErrMissingRefreshCredentials у подключения нет refresh token или ключей приложения
var ErrMissingRefreshCredentials = errors.New("missing refresh token or client credentials")

// TokenRefresher обменивает refresh token подключения на новый access token
type TokenRefresher interface {
	Refresh(ctx context.Context, conn *models.Connection) (*oauth2.Token, error)
}

// Refresh выполняет grant_type=refresh_token на token endpoint площадки.
// Если площадка не вернула новый refresh token, в ответе остается прежний.
func (r *Registry) Refresh(ctx context.Context, conn *models.Connection) (*oauth2.Token, error) {
	cfg, err := r.oauthConfig(conn)
	if err != nil {
		return nil, err
	}
	creds := conn.Credentials
	if creds.RefreshToken == "" || creds.APIKey == "" || creds.APISecret == "" {
		return nil, ErrMissingRefreshCredentials
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	// токен без access token считается просроченным, источник сразу идет за новым
	token, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	if err != nil {
		kind := KindTransport
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			kind = kindForStatus(retrieveErr.Response.StatusCode)
			if retrieveErr.Response.StatusCode == http.StatusBadRequest {
				kind = KindAuth
			}
		}
		return nil, &Error{Marketplace: conn.Marketplace, Op: "refresh token", Kind: kind, Err: err}
	}
	if token.RefreshToken == "" {
		token.RefreshToken = creds.RefreshToken
	}
	return token, nil
}
