package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// refreshWindow is how close to the token's exp claim a refresh is forced.
const refreshWindow = 5 * time.Minute

// Credentials seeds a TokenSource with the initial service token pair.
type Credentials struct {
	Token        string
	RefreshToken string
}

// TokenSource hands out the bearer token used on outbound service calls,
// refreshing it against the auth service before it expires. It is safe for
// concurrent use and is injected into every client that needs auth, so tests
// can swap in a fixed pair without touching process state.
type TokenSource struct {
	mu           sync.Mutex
	hc           *http.Client
	authURL      string
	token        string
	refreshToken string
	logger       zerolog.Logger
	now          func() time.Time
}

func NewTokenSource(authURL string, creds Credentials, timeout time.Duration, logger zerolog.Logger) *TokenSource {
	return &TokenSource{
		hc:           &http.Client{Timeout: timeout},
		authURL:      authURL,
		token:        creds.Token,
		refreshToken: creds.RefreshToken,
		logger:       logger,
		now:          time.Now,
	}
}

// Token returns a bearer token that is valid for at least the refresh window.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && !s.expiringSoon() {
		return s.token, nil
	}
	if err := s.refresh(ctx); err != nil {
		return "", err
	}
	return s.token, nil
}

func (s *TokenSource) expiringSoon() bool {
	exp, err := tokenExpiry(s.token)
	if err != nil {
		// A token we cannot decode is not worth sending.
		return true
	}
	return exp.Sub(s.now()) <= refreshWindow
}

func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("decode token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return exp.Time, nil
}

func (s *TokenSource) refresh(ctx context.Context) error {
	if s.refreshToken == "" {
		return fmt.Errorf("clients: no refresh token available")
	}

	body, err := json.Marshal(map[string]string{"refreshToken": s.refreshToken})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL+"/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("clients: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("clients: refresh token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("clients: refresh token: status %d: %s", resp.StatusCode, data)
	}

	var out struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("clients: decode refresh response: %w", err)
	}
	if out.Token == "" {
		return fmt.Errorf("clients: refresh response missing token")
	}

	s.token = out.Token
	if out.RefreshToken != "" {
		s.refreshToken = out.RefreshToken
	}
	s.logger.Info().Msg("service token refreshed")
	return nil
}
