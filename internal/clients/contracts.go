package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ContractDivergence is one way a charged procedure strays from the contract.
type ContractDivergence struct {
	Type     string  `json:"tipo"`
	Message  string  `json:"mensagem"`
	Severity string  `json:"severidade"`
	Expected float64 `json:"valorEsperado,omitempty"`
	Observed float64 `json:"valorEncontrado,omitempty"`
}

// ContractValidation is the contract service's verdict on a charged
// procedure.
type ContractValidation struct {
	Conforming    bool                 `json:"conforme"`
	Divergences   []ContractDivergence `json:"divergencias"`
	ContractValue *float64             `json:"valorContrato"`
	ChargedValue  float64              `json:"valorCobrado"`
	Difference    float64              `json:"diferenca"`
	Message       string               `json:"mensagem"`
}

// ContractValidationRequest asks whether one charged procedure conforms to
// the operator's contract.
type ContractValidationRequest struct {
	OperatorID   string  `json:"operadoraId"`
	TUSSCode     string  `json:"codigoTUSS"`
	ChargedValue float64 `json:"valorCobrado"`
	Quantity     int     `json:"quantidade,omitempty"`
}

// ContractsClient talks to the contract validation service.
type ContractsClient struct {
	api    *httpClient
	health *httpClient
	logger zerolog.Logger
}

func NewContractsClient(baseURL, healthURL string, timeout time.Duration, logger zerolog.Logger) *ContractsClient {
	// Contract validation is internal traffic; no auth.
	return &ContractsClient{
		api:    newHTTPClient(baseURL, timeout, nil, logger),
		health: newHTTPClient(healthURL, timeout, nil, logger),
		logger: logger,
	}
}

func (c *ContractsClient) Health(ctx context.Context) error {
	if err := c.health.get(ctx, "/health", nil); err != nil {
		return fmt.Errorf("contracts health check failed: %w", err)
	}
	return nil
}

// ValidateProcedure checks one charged procedure against the contract. The
// caller decides what a failure means; the importer records it as an issue
// rather than failing the guide.
func (c *ContractsClient) ValidateProcedure(ctx context.Context, req ContractValidationRequest) (*ContractValidation, error) {
	var out ContractValidation
	if err := c.api.post(ctx, "/validations/procedimento", req, &out); err != nil {
		return nil, fmt.Errorf("validate contract for %s: %w", req.TUSSCode, err)
	}
	return &out, nil
}
