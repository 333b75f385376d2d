package guide

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Guide maps to the guides table: one imported TISS claim guide header.
// ProviderGuideNumber is the business key; at most one row may exist per
// number.
type Guide struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	ProviderGuideNumber string          `db:"provider_guide_number" json:"provider_guide_number"`
	OperatorGuideNumber *string         `db:"operator_guide_number" json:"operator_guide_number,omitempty"`
	InsuranceNumber     *string         `db:"insurance_number" json:"insurance_number,omitempty"`
	PatientID           *string         `db:"patient_id" json:"patient_id,omitempty"`
	Password            *string         `db:"password" json:"password,omitempty"`
	PasswordExpiry      *time.Time      `db:"password_expiry" json:"password_expiry,omitempty"`
	AuthorizationDate   *time.Time      `db:"authorization_date" json:"authorization_date,omitempty"`
	NewbornCare         *string         `db:"newborn_care" json:"newborn_care,omitempty"`
	TransactionType     *string         `db:"transaction_type" json:"transaction_type,omitempty"`
	LotNumber           *string         `db:"lot_number" json:"lot_number,omitempty"`
	AdmissionCharacter  *string         `db:"admission_character" json:"admission_character,omitempty"`
	BillingType         *string         `db:"billing_type" json:"billing_type,omitempty"`
	BillingStart        *time.Time      `db:"billing_start" json:"billing_start,omitempty"`
	BillingEnd          *time.Time      `db:"billing_end" json:"billing_end,omitempty"`
	AdmissionType       *string         `db:"admission_type" json:"admission_type,omitempty"`
	AdmissionRegime     *string         `db:"admission_regime" json:"admission_regime,omitempty"`
	Diagnosis           *string         `db:"diagnosis" json:"diagnosis,omitempty"`
	AccidentIndicator   *string         `db:"accident_indicator" json:"accident_indicator,omitempty"`
	ClosureReason       *string         `db:"closure_reason" json:"closure_reason,omitempty"`
	Observation         *string         `db:"observation" json:"observation,omitempty"`
	OtherExpenses       json.RawMessage `db:"other_expenses" json:"other_expenses,omitempty"`
	TotalProcedures     float64         `db:"total_procedures" json:"total_procedures"`
	TotalDailyRates     float64         `db:"total_daily_rates" json:"total_daily_rates"`
	TotalTaxesRentals   float64         `db:"total_taxes_rentals" json:"total_taxes_rentals"`
	TotalMaterials      float64         `db:"total_materials" json:"total_materials"`
	TotalDrugs          float64         `db:"total_drugs" json:"total_drugs"`
	TotalOPME           float64         `db:"total_opme" json:"total_opme"`
	TotalMedicinalGases float64         `db:"total_medicinal_gases" json:"total_medicinal_gases"`
	TotalOverall        float64         `db:"total_overall" json:"total_overall"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
}

// Procedure maps to the procedures table: one consolidated procedure row per
// (guide, procedure code). Items sharing a code are summed before this row is
// written, so Quantity and TotalValue are aggregates.
type Procedure struct {
	ID               uuid.UUID `db:"id" json:"id"`
	GuideID          uuid.UUID `db:"guide_id" json:"guide_id"`
	Sequence         *string   `db:"sequence" json:"sequence,omitempty"`
	TableCode        *string   `db:"table_code" json:"table_code,omitempty"`
	Code             *string   `db:"code" json:"code,omitempty"`
	Description      *string   `db:"description" json:"description,omitempty"`
	Quantity         int       `db:"quantity" json:"quantity"`
	UnitValue        float64   `db:"unit_value" json:"unit_value"`
	TotalValue       float64   `db:"total_value" json:"total_value"`
	AccessRoute      *string   `db:"access_route" json:"access_route,omitempty"`
	Technique        *string   `db:"technique" json:"technique,omitempty"`
	ProfessionalName *string   `db:"professional_name" json:"professional_name,omitempty"`
	ExecutionDate    *string   `db:"execution_date" json:"execution_date,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// ValidationIssue maps to the validation_issues table: one recorded non-fatal
// divergence found while importing a guide. Rows are append-only.
type ValidationIssue struct {
	ID            uuid.UUID `db:"id" json:"id"`
	GuideID       uuid.UUID `db:"guide_id" json:"guide_id"`
	Kind          string    `db:"kind" json:"kind"`
	Severity      string    `db:"severity" json:"severity"`
	Message       string    `db:"message" json:"message"`
	ProcedureCode *string   `db:"procedure_code" json:"procedure_code,omitempty"`
	Expected      *string   `db:"expected" json:"expected,omitempty"`
	Observed      *string   `db:"observed" json:"observed,omitempty"`
	ChargedValue  *float64  `db:"charged_value" json:"charged_value,omitempty"`
	ContractValue *float64  `db:"contract_value" json:"contract_value,omitempty"`
	Difference    *float64  `db:"difference" json:"difference,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
