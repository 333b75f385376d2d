package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxResponseBytes = 1 << 20

// StatusError is a non-2xx response from a remote service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// httpClient is the shared transport for the service clients: one base URL,
// JSON in and out, a bounded timeout, optional bearer auth via TokenSource,
// and request/response logging.
type httpClient struct {
	base   string
	hc     *http.Client
	tokens *TokenSource
	logger zerolog.Logger
}

func newHTTPClient(base string, timeout time.Duration, tokens *TokenSource, logger zerolog.Logger) *httpClient {
	return &httpClient{
		base:   strings.TrimRight(base, "/"),
		hc:     &http.Client{Timeout: timeout},
		tokens: tokens,
		logger: logger,
	}
}

func (c *httpClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *httpClient) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *httpClient) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *httpClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := c.base + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("acquire token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug().Str("method", method).Str("url", url).Msg("outbound request")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, url, err)
	}

	c.logger.Debug().Str("method", method).Str("url", url).Int("status", resp.StatusCode).Msg("outbound response")

	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, url, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// flexID tolerates remote services returning ids as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	*f = flexID(data)
	return nil
}

// idEnvelope unwraps create/lookup responses that either carry the id at the
// top level or nest the entity under a data key.
type idEnvelope struct {
	ID   flexID `json:"id"`
	Data struct {
		ID flexID `json:"id"`
	} `json:"data"`
}

func (e idEnvelope) id() string {
	if e.Data.ID != "" {
		return string(e.Data.ID)
	}
	return string(e.ID)
}
