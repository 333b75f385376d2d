package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AuditValidation summarizes the audit service's pass over a guide's
// procedures.
type AuditValidation struct {
	Success bool `json:"success"`
	Data    struct {
		ValidatedProcedures int `json:"procedimentosValidados"`
		PendingIssues       int `json:"totalPendencias"`
	} `json:"data"`
	Message string `json:"message"`
}

// AuditClient talks to the audit service.
type AuditClient struct {
	api    *httpClient
	logger zerolog.Logger
}

func NewAuditClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *AuditClient {
	return &AuditClient{
		api:    newHTTPClient(baseURL, timeout, nil, logger),
		logger: logger,
	}
}

func (c *AuditClient) Health(ctx context.Context) error {
	return c.api.get(ctx, "/health", nil)
}

// ValidateGuide asks the audit service to validate every procedure of an
// imported guide.
func (c *AuditClient) ValidateGuide(ctx context.Context, guideID, operatorID string) (*AuditValidation, error) {
	body := map[string]string{
		"guiaId":      guideID,
		"operadoraId": operatorID,
	}
	var out AuditValidation
	if err := c.api.post(ctx, "/audits/guias/validate", body, &out); err != nil {
		return nil, fmt.Errorf("audit guide %s: %w", guideID, err)
	}
	return &out, nil
}
