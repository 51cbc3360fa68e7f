package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// restClient общий JSON-клиент адаптеров с ограничением частоты запросов
type restClient struct {
	marketplace models.Marketplace
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	authorize   func(ctx context.Context, req *http.Request) error
}

func (c *restClient) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.fail(op, 0, KindTransport, err)
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return c.fail(op, 0, KindValidation, fmt.Errorf("failed to marshal request body: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return c.fail(op, 0, KindTransport, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authorize != nil {
		if err := c.authorize(ctx, req); err != nil {
			return c.fail(op, 0, KindAuth, err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(op, 0, KindTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{
			Marketplace: c.marketplace,
			Op:          op,
			StatusCode:  resp.StatusCode,
			Kind:        kindForStatus(resp.StatusCode),
			Message:     strings.TrimSpace(string(raw)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.fail(op, resp.StatusCode, KindTransport, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *restClient) fail(op string, status int, kind ErrorKind, err error) *Error {
	return &Error{Marketplace: c.marketplace, Op: op, StatusCode: status, Kind: kind, Err: err}
}
