package clients

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// PorteValidation is the registry's verdict on a reported participation
// grade (porte).
type PorteValidation struct {
	IsValid       bool   `json:"isValid"`
	ExpectedPorte string `json:"expectedPorte"`
	ReportedPorte string `json:"reportedPorte"`
	Severity      string `json:"severity"`
	Message       string `json:"message"`
}

// ProcedureCreate is the payload for registering one executed procedure.
type ProcedureCreate struct {
	PatientID       string           `json:"patientId,omitempty"`
	GuideID         string           `json:"guiaId,omitempty"`
	Code            string           `json:"code"`
	Description     string           `json:"description,omitempty"`
	Quantity        int              `json:"quantity"`
	UnitPrice       float64          `json:"unitPrice"`
	TotalPrice      float64          `json:"totalPrice"`
	ExecutionDate   string           `json:"executionDate,omitempty"`
	ReportedPorte   string           `json:"reportedPorte,omitempty"`
	ValidatedPorte  string           `json:"validatedPorte,omitempty"`
	PorteValidation *PorteValidation `json:"porteValidation,omitempty"`
}

// ProceduresClient talks to the procedure registry service.
type ProceduresClient struct {
	api    *httpClient
	health *httpClient
	logger zerolog.Logger
}

func NewProceduresClient(baseURL, healthURL string, timeout time.Duration, tokens *TokenSource, logger zerolog.Logger) *ProceduresClient {
	return &ProceduresClient{
		api:    newHTTPClient(baseURL, timeout, tokens, logger),
		health: newHTTPClient(healthURL, timeout, nil, logger),
		logger: logger,
	}
}

func (c *ProceduresClient) Health(ctx context.Context) error {
	return c.health.get(ctx, "/health", nil)
}

// ValidatePorte checks a reported participation grade against the registry.
func (c *ProceduresClient) ValidatePorte(ctx context.Context, procedureCode, reportedPorte string) (*PorteValidation, error) {
	body := map[string]string{
		"procedureCode": procedureCode,
		"reportedPorte": reportedPorte,
	}
	var out PorteValidation
	if err := c.api.post(ctx, "/procedures/validate-porte", body, &out); err != nil {
		return nil, fmt.Errorf("validate porte for %s: %w", procedureCode, err)
	}
	return &out, nil
}

// Create registers a procedure and returns the remote id.
func (c *ProceduresClient) Create(ctx context.Context, p ProcedureCreate) (string, error) {
	var env idEnvelope
	if err := c.api.post(ctx, "/procedures", p, &env); err != nil {
		return "", fmt.Errorf("create procedure %s: %w", p.Code, err)
	}
	id := env.id()
	if id == "" {
		return "", fmt.Errorf("create procedure %s: response carried no id", p.Code)
	}
	return id, nil
}

// Delete removes a procedure. Used only to compensate a create from the same
// import.
func (c *ProceduresClient) Delete(ctx context.Context, procedureID string) error {
	return c.api.delete(ctx, "/procedures/"+url.PathEscape(procedureID))
}
