package importer

// Issue kinds recorded during an import. None of them fail the guide.
const (
	IssuePorteDivergence         = "porte-divergence"
	IssueContractDivergence      = "contract-divergence"
	IssueContractValidationError = "contract-validation-error"
)

// Issue is one non-fatal divergence found while importing a guide.
type Issue struct {
	Kind          string   `json:"kind"`
	Subtype       string   `json:"subtype,omitempty"`
	ProcedureCode string   `json:"procedureCode,omitempty"`
	Severity      string   `json:"severity,omitempty"`
	Message       string   `json:"message,omitempty"`
	Reported      string   `json:"reported,omitempty"`
	Expected      string   `json:"expected,omitempty"`
	ChargedValue  float64  `json:"chargedValue,omitempty"`
	ContractValue *float64 `json:"contractValue,omitempty"`
	Difference    float64  `json:"difference,omitempty"`
}

// Result is the terminal outcome of one guide import. Exactly one of three
// shapes comes back: success, duplicate (not an error, nothing rolled back),
// or failure with best-effort compensation already performed.
type Result struct {
	Success             bool    `json:"success"`
	ProviderGuideNumber string  `json:"providerGuideNumber,omitempty"`
	GuideID             string  `json:"guideId,omitempty"`
	PatientID           string  `json:"patientId,omitempty"`
	ProceduresCreated   int     `json:"proceduresCreated,omitempty"`
	ValidationIssues    []Issue `json:"validationIssues,omitempty"`
	Error               string  `json:"error,omitempty"`
	RollbackPerformed   bool    `json:"rollbackPerformed,omitempty"`
	Duplicate           bool    `json:"duplicate,omitempty"`
}
