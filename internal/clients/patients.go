package clients

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PatientSeed carries the beneficiary fields a guide contributes to a new
// patient. Everything is optional except InsuranceNumber; normalization fills
// the rest with placeholders.
type PatientSeed struct {
	InsuranceNumber string
	FullName        string
	BirthDate       string
	Gender          string
	CPF             string
	NewbornCare     string
}

// PatientsClient talks to the patient directory service.
type PatientsClient struct {
	api    *httpClient
	health *httpClient
	logger zerolog.Logger
}

func NewPatientsClient(baseURL, healthURL string, timeout time.Duration, tokens *TokenSource, logger zerolog.Logger) *PatientsClient {
	return &PatientsClient{
		api:    newHTTPClient(baseURL, timeout, tokens, logger),
		health: newHTTPClient(healthURL, timeout, nil, logger),
		logger: logger,
	}
}

func (c *PatientsClient) Health(ctx context.Context) error {
	return c.health.get(ctx, "/health", nil)
}

// FindByInsurance resolves an insurance card number to a patient id. A remote
// 404 means "no such patient" and returns an empty id with no error; any other
// failure is an error.
func (c *PatientsClient) FindByInsurance(ctx context.Context, insuranceNumber string) (string, error) {
	var env idEnvelope
	err := c.api.get(ctx, "/patients/insurance/"+url.PathEscape(insuranceNumber), &env)
	if IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find patient by insurance %s: %w", insuranceNumber, err)
	}
	return env.id(), nil
}

// CreateFromGuide registers a patient from guide beneficiary data and returns
// the new patient id.
func (c *PatientsClient) CreateFromGuide(ctx context.Context, seed PatientSeed) (string, error) {
	payload := buildPatientPayload(seed)

	var env idEnvelope
	if err := c.api.post(ctx, "/patients/from-xml", payload, &env); err != nil {
		return "", fmt.Errorf("create patient: %w", err)
	}
	id := env.id()
	if id == "" {
		return "", fmt.Errorf("create patient: response carried no id")
	}
	c.logger.Info().Str("patient_id", id).Str("insurance_number", seed.InsuranceNumber).Msg("patient created")
	return id, nil
}

// Delete removes a patient. Used only to compensate a create from the same
// import.
func (c *PatientsClient) Delete(ctx context.Context, patientID string) error {
	return c.api.delete(ctx, "/patients/"+url.PathEscape(patientID))
}

// buildPatientPayload normalizes guide beneficiary data to the directory's
// registration contract.
func buildPatientPayload(seed PatientSeed) map[string]interface{} {
	fullName := strings.TrimSpace(seed.FullName)
	if fullName == "" {
		fullName = "NOME PENDENTE"
	}
	parts := strings.Fields(fullName)
	firstName := parts[0]
	lastName := strings.Join(parts[1:], " ")
	if lastName == "" {
		lastName = "SOBRENOME"
	}

	payload := map[string]interface{}{
		"firstName":         firstName,
		"lastName":          lastName,
		"fullName":          fullName,
		"cpf":               normalizeCPF(seed.CPF),
		"gender":            normalizeGender(seed.Gender),
		"phone":             "(00) 00000-0000",
		"email":             "nao-informado@email.com",
		"address":           "Não informado",
		"insuranceNumber":   seed.InsuranceNumber,
		"accommodationType": "STANDARD",
	}
	if birth := normalizeBirthDate(seed.BirthDate); birth != "" {
		payload["birthDate"] = birth
	}
	if seed.NewbornCare != "" {
		payload["atendimentoRN"] = seed.NewbornCare
	}
	return payload
}

func normalizeGender(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "F", "FEMALE":
		return "FEMALE"
	case "M", "MALE":
		return "MALE"
	default:
		return "OTHER"
	}
}

func normalizeBirthDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return raw
}

// normalizeCPF replaces a missing or zeroed document with an 11-digit
// placeholder so registration never stalls on it.
func normalizeCPF(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "" && raw != "00000000000" {
		return raw
	}
	return placeholderCPF()
}

func placeholderCPF() string {
	raw := uuid.New()
	var b strings.Builder
	for i := 0; i < 11; i++ {
		b.WriteByte('0' + raw[i]%10)
	}
	return b.String()
}
