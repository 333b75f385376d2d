package guide

import (
	"encoding/json"
	"sort"
	"time"
)

// AllowedFields is the closed set of field names the guides table accepts.
// The importer builds its insert payload as a field map and runs it through
// Sanitize first, so a parser that starts emitting fields the store does not
// know about degrades to a logged drop instead of a failed insert.
var AllowedFields = map[string]bool{
	"provider_guide_number": true,
	"operator_guide_number": true,
	"insurance_number":      true,
	"patient_id":            true,
	"password":              true,
	"password_expiry":       true,
	"authorization_date":    true,
	"newborn_care":          true,
	"transaction_type":      true,
	"lot_number":            true,
	"admission_character":   true,
	"billing_type":          true,
	"billing_start":         true,
	"billing_end":           true,
	"admission_type":        true,
	"admission_regime":      true,
	"diagnosis":             true,
	"accident_indicator":    true,
	"closure_reason":        true,
	"observation":           true,
	"other_expenses":        true,
	"total_procedures":      true,
	"total_daily_rates":     true,
	"total_taxes_rentals":   true,
	"total_materials":       true,
	"total_drugs":           true,
	"total_opme":            true,
	"total_medicinal_gases": true,
	"total_overall":         true,
}

// Sanitize splits a guide field map into the entries AllowedFields knows and
// the sorted names of everything it dropped. The input map is not modified.
func Sanitize(fields map[string]interface{}) (map[string]interface{}, []string) {
	clean := make(map[string]interface{}, len(fields))
	var dropped []string
	for key, value := range fields {
		if AllowedFields[key] {
			clean[key] = value
			continue
		}
		dropped = append(dropped, key)
	}
	sort.Strings(dropped)
	return clean, dropped
}

// NewFromFields builds a Guide from a sanitized field map. Unknown keys are
// ignored; callers are expected to have run Sanitize first so drops are
// logged, not silent.
func NewFromFields(fields map[string]interface{}) *Guide {
	g := &Guide{
		ProviderGuideNumber: stringField(fields, "provider_guide_number"),
		OperatorGuideNumber: stringPtrField(fields, "operator_guide_number"),
		InsuranceNumber:     stringPtrField(fields, "insurance_number"),
		PatientID:           stringPtrField(fields, "patient_id"),
		Password:            stringPtrField(fields, "password"),
		PasswordExpiry:      timeField(fields, "password_expiry"),
		AuthorizationDate:   timeField(fields, "authorization_date"),
		NewbornCare:         stringPtrField(fields, "newborn_care"),
		TransactionType:     stringPtrField(fields, "transaction_type"),
		LotNumber:           stringPtrField(fields, "lot_number"),
		AdmissionCharacter:  stringPtrField(fields, "admission_character"),
		BillingType:         stringPtrField(fields, "billing_type"),
		BillingStart:        timeField(fields, "billing_start"),
		BillingEnd:          timeField(fields, "billing_end"),
		AdmissionType:       stringPtrField(fields, "admission_type"),
		AdmissionRegime:     stringPtrField(fields, "admission_regime"),
		Diagnosis:           stringPtrField(fields, "diagnosis"),
		AccidentIndicator:   stringPtrField(fields, "accident_indicator"),
		ClosureReason:       stringPtrField(fields, "closure_reason"),
		Observation:         stringPtrField(fields, "observation"),
		TotalProcedures:     floatField(fields, "total_procedures"),
		TotalDailyRates:     floatField(fields, "total_daily_rates"),
		TotalTaxesRentals:   floatField(fields, "total_taxes_rentals"),
		TotalMaterials:      floatField(fields, "total_materials"),
		TotalDrugs:          floatField(fields, "total_drugs"),
		TotalOPME:           floatField(fields, "total_opme"),
		TotalMedicinalGases: floatField(fields, "total_medicinal_gases"),
		TotalOverall:        floatField(fields, "total_overall"),
	}
	if raw, ok := fields["other_expenses"].(json.RawMessage); ok {
		g.OtherExpenses = raw
	}
	return g
}

func stringField(fields map[string]interface{}, key string) string {
	s, _ := fields[key].(string)
	return s
}

func stringPtrField(fields map[string]interface{}, key string) *string {
	s, ok := fields[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func timeField(fields map[string]interface{}, key string) *time.Time {
	t, _ := fields[key].(*time.Time)
	return t
}

func floatField(fields map[string]interface{}, key string) float64 {
	f, _ := fields[key].(float64)
	return f
}
