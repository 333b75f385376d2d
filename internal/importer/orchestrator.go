package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lazarus/tiss-importer/internal/clients"
	"github.com/lazarus/tiss-importer/internal/domain/guide"
	"github.com/lazarus/tiss-importer/internal/tiss"
)

// PatientDirectory is the remote patient service as the importer needs it.
type PatientDirectory interface {
	Health(ctx context.Context) error
	FindByInsurance(ctx context.Context, insuranceNumber string) (string, error)
	CreateFromGuide(ctx context.Context, seed clients.PatientSeed) (string, error)
	Delete(ctx context.Context, patientID string) error
}

// ProcedureRegistry is the remote procedure service as the importer needs it.
type ProcedureRegistry interface {
	Health(ctx context.Context) error
	ValidatePorte(ctx context.Context, procedureCode, reportedPorte string) (*clients.PorteValidation, error)
	Create(ctx context.Context, p clients.ProcedureCreate) (string, error)
	Delete(ctx context.Context, procedureID string) error
}

// ContractValidator checks charged procedures against operator contracts.
type ContractValidator interface {
	Health(ctx context.Context) error
	ValidateProcedure(ctx context.Context, req clients.ContractValidationRequest) (*clients.ContractValidation, error)
}

// AuditValidator runs the post-import audit pass over a guide.
type AuditValidator interface {
	Health(ctx context.Context) error
	ValidateGuide(ctx context.Context, guideID, operatorID string) (*clients.AuditValidation, error)
}

// GuideStore is the slice of the local store the importer uses. Satisfied by
// *guide.Service.
type GuideStore interface {
	GetByProviderNumber(ctx context.Context, number string) (*guide.Guide, error)
	CreateGuide(ctx context.Context, g *guide.Guide) error
	DeleteGuide(ctx context.Context, id uuid.UUID) error
	CreateProcedure(ctx context.Context, p *guide.Procedure) error
	CreateIssue(ctx context.Context, issue *guide.ValidationIssue) error
}

// Orchestrator imports one guide at a time across the patient directory, the
// procedure registry and the local store, compensating in reverse creation
// order when a critical step fails. Contract and audit validation are
// advisory and never fail an import.
type Orchestrator struct {
	patients   PatientDirectory
	procedures ProcedureRegistry
	contracts  ContractValidator
	audit      AuditValidator
	store      GuideStore
	operatorID string
	logger     zerolog.Logger
}

func NewOrchestrator(
	patients PatientDirectory,
	procedures ProcedureRegistry,
	contracts ContractValidator,
	audit AuditValidator,
	store GuideStore,
	operatorID string,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		patients:   patients,
		procedures: procedures,
		contracts:  contracts,
		audit:      audit,
		store:      store,
		operatorID: operatorID,
		logger:     logger,
	}
}

// ImportGuide runs the full import saga for one parsed guide.
func (o *Orchestrator) ImportGuide(ctx context.Context, rec tiss.GuideRecord) Result {
	log := o.logger.With().Str("guide_number", rec.ProviderGuideNumber).Logger()
	log.Info().Msg("importing guide")

	var (
		createdPatientID    string
		createdGuide        *guide.Guide
		createdProcedureIDs []string
	)

	fail := func(err error) Result {
		log.Error().Err(err).Msg("import failed, compensating")
		o.compensate(ctx, createdProcedureIDs, createdGuide, createdPatientID)
		return Result{
			Success:             false,
			ProviderGuideNumber: rec.ProviderGuideNumber,
			Error:               err.Error(),
			RollbackPerformed:   true,
		}
	}

	// Preflight: both critical services must answer before anything is
	// created.
	if unavailable := o.preflight(ctx); len(unavailable) > 0 {
		return fail(fmt.Errorf("services unavailable: %s", strings.Join(unavailable, ", ")))
	}

	// Duplicate check on the business key. A hit is a skip, not a failure,
	// and nothing needs compensating.
	existing, err := o.store.GetByProviderNumber(ctx, rec.ProviderGuideNumber)
	if err != nil && !errors.Is(err, guide.ErrNotFound) {
		return fail(fmt.Errorf("check existing guide: %w", err))
	}
	if existing != nil {
		log.Warn().Msg("guide already exists, skipping")
		return Result{
			Success:             false,
			ProviderGuideNumber: rec.ProviderGuideNumber,
			Error:               "guide already exists",
			Duplicate:           true,
		}
	}

	// Resolve or create the patient.
	var patientID string
	if rec.InsuranceNumber != "" {
		patientID, err = o.patients.FindByInsurance(ctx, rec.InsuranceNumber)
		if err != nil {
			return fail(err)
		}
		if patientID == "" {
			patientID, err = o.patients.CreateFromGuide(ctx, clients.PatientSeed{
				InsuranceNumber: rec.InsuranceNumber,
				FullName:        rec.BeneficiaryName,
				BirthDate:       rec.BirthDate,
				Gender:          rec.Gender,
				CPF:             rec.CPF,
				NewbornCare:     rec.NewbornCare,
			})
			if err != nil {
				return fail(fmt.Errorf("create patient: %w", err))
			}
			createdPatientID = patientID
		} else {
			log.Info().Str("patient_id", patientID).Msg("patient found")
		}
	}

	// A guide without procedures has nothing to audit.
	if len(rec.Procedures) == 0 {
		return fail(fmt.Errorf("guide has no procedures"))
	}

	// Persist the guide header through the field allow-list, so anything the
	// parser collected that the store does not know is dropped loudly.
	fields := buildGuideFields(rec, patientID)
	clean, dropped := guide.Sanitize(fields)
	for _, name := range dropped {
		log.Warn().Str("field", name).Msg("dropping unknown guide field")
	}
	g := guide.NewFromFields(clean)
	if err := o.store.CreateGuide(ctx, g); err != nil {
		return fail(fmt.Errorf("persist guide: %w", err))
	}
	createdGuide = g
	log.Info().Str("guide_id", g.ID.String()).Msg("guide persisted")

	// Register every procedure remotely. Porte validation runs first when
	// both code and grade are present; its failure is advisory, but a failed
	// create aborts the saga.
	var issues []Issue
	for i, proc := range rec.Procedures {
		var porte *clients.PorteValidation
		if proc.Code != "" && proc.ParticipationGrade != "" {
			porte, err = o.procedures.ValidatePorte(ctx, proc.Code, proc.ParticipationGrade)
			if err != nil {
				log.Warn().Err(err).Str("code", proc.Code).Msg("porte validation unavailable, continuing")
				porte = nil
			} else if !porte.IsValid {
				issues = append(issues, Issue{
					Kind:          IssuePorteDivergence,
					ProcedureCode: proc.Code,
					Reported:      proc.ParticipationGrade,
					Expected:      porte.ExpectedPorte,
					Severity:      porte.Severity,
				})
				log.Warn().Str("code", proc.Code).Str("reported", proc.ParticipationGrade).
					Str("expected", porte.ExpectedPorte).Msg("porte divergence")
			}
		}

		payload := clients.ProcedureCreate{
			PatientID:     patientID,
			GuideID:       g.ID.String(),
			Code:          proc.Code,
			Description:   proc.Description,
			Quantity:      proc.Quantity,
			UnitPrice:     proc.UnitValue,
			TotalPrice:    proc.TotalValue,
			ExecutionDate: proc.ExecutionDate,
			ReportedPorte: proc.ParticipationGrade,
		}
		if porte != nil {
			payload.ValidatedPorte = porte.ExpectedPorte
			payload.PorteValidation = porte
		}
		id, err := o.procedures.Create(ctx, payload)
		if err != nil {
			return fail(fmt.Errorf("create procedure %d/%d (code %s): %w", i+1, len(rec.Procedures), proc.Code, err))
		}
		createdProcedureIDs = append(createdProcedureIDs, id)
	}

	// Consolidated local rows. The remote registrations already exist, so a
	// failed row is logged and skipped.
	consolidated := Consolidate(rec.Procedures)
	for _, item := range consolidated {
		if err := o.store.CreateProcedure(ctx, procedureRow(g, item)); err != nil {
			log.Error().Err(err).Str("code", item.Code).Msg("saving local procedure row failed")
		}
	}
	log.Info().Int("items", len(rec.Procedures)).Int("consolidated", len(consolidated)).Msg("local procedure rows saved")

	// Contract validation, gated on its own health check and fully advisory.
	issues = append(issues, o.validateContracts(ctx, log, rec)...)

	// Audit pass over the stored guide; advisory as well.
	if _, err := o.audit.ValidateGuide(ctx, g.ID.String(), o.operatorID); err != nil {
		log.Warn().Err(err).Msg("audit validation unavailable, continuing")
	}

	// Issue rows are the local trace of the advisory findings.
	for _, issue := range issues {
		if err := o.store.CreateIssue(ctx, issueRow(g, issue)); err != nil {
			log.Error().Err(err).Str("kind", issue.Kind).Msg("saving validation issue failed")
		}
	}

	log.Info().
		Str("guide_id", g.ID.String()).
		Str("patient_id", patientID).
		Int("procedures_created", len(createdProcedureIDs)).
		Int("validation_issues", len(issues)).
		Msg("guide imported")

	return Result{
		Success:             true,
		ProviderGuideNumber: rec.ProviderGuideNumber,
		GuideID:             g.ID.String(),
		PatientID:           patientID,
		ProceduresCreated:   len(createdProcedureIDs),
		ValidationIssues:    issues,
	}
}

// ImportAll processes guides sequentially in input order. A duplicate does
// not stop the batch; a failure that triggered compensation does, since later
// guides would likely hit the same broken collaborator.
func (o *Orchestrator) ImportAll(ctx context.Context, records []tiss.GuideRecord) []Result {
	results := make([]Result, 0, len(records))
	for _, rec := range records {
		result := o.ImportGuide(ctx, rec)
		results = append(results, result)
		if !result.Success && result.RollbackPerformed {
			o.logger.Warn().Str("guide_number", rec.ProviderGuideNumber).Msg("stopping batch after failed import")
			break
		}
	}
	return results
}

// preflight returns the names of critical services that did not answer their
// health check.
func (o *Orchestrator) preflight(ctx context.Context) []string {
	var unavailable []string
	if err := o.patients.Health(ctx); err != nil {
		o.logger.Error().Err(err).Msg("patients service unavailable")
		unavailable = append(unavailable, "patients")
	}
	if err := o.procedures.Health(ctx); err != nil {
		o.logger.Error().Err(err).Msg("procedures service unavailable")
		unavailable = append(unavailable, "procedures")
	}
	return unavailable
}

// validateContracts checks every coded procedure against the contract
// service. A failed health check skips the stage; a failed validation call
// becomes an issue on that procedure.
func (o *Orchestrator) validateContracts(ctx context.Context, log zerolog.Logger, rec tiss.GuideRecord) []Issue {
	if err := o.contracts.Health(ctx); err != nil {
		log.Warn().Err(err).Msg("contracts service unavailable, skipping contract validation")
		return nil
	}

	var issues []Issue
	for _, proc := range rec.Procedures {
		if proc.Code == "" {
			continue
		}
		quantity := proc.Quantity
		if quantity == 0 {
			quantity = 1
		}
		validation, err := o.contracts.ValidateProcedure(ctx, clients.ContractValidationRequest{
			OperatorID:   o.operatorID,
			TUSSCode:     proc.Code,
			ChargedValue: proc.TotalValue,
			Quantity:     quantity,
		})
		if err != nil {
			log.Warn().Err(err).Str("code", proc.Code).Msg("contract validation failed, continuing")
			issues = append(issues, Issue{
				Kind:          IssueContractValidationError,
				ProcedureCode: proc.Code,
				Severity:      "BAIXA",
				Message:       fmt.Sprintf("contract validation failed: %v", err),
			})
			continue
		}
		if validation.Conforming {
			continue
		}
		for _, div := range validation.Divergences {
			issues = append(issues, Issue{
				Kind:          IssueContractDivergence,
				Subtype:       div.Type,
				ProcedureCode: proc.Code,
				Severity:      div.Severity,
				Message:       div.Message,
				ChargedValue:  validation.ChargedValue,
				ContractValue: validation.ContractValue,
				Difference:    validation.Difference,
			})
		}
	}
	return issues
}

// compensate undoes created resources in reverse creation order. Every step
// is best-effort: a failed deletion is logged and never masks the original
// error.
func (o *Orchestrator) compensate(ctx context.Context, procedureIDs []string, g *guide.Guide, patientID string) {
	for i := len(procedureIDs) - 1; i >= 0; i-- {
		if err := o.procedures.Delete(ctx, procedureIDs[i]); err != nil {
			o.logger.Error().Err(err).Str("procedure_id", procedureIDs[i]).Msg("compensation: delete procedure failed")
		}
	}
	if g != nil {
		if err := o.store.DeleteGuide(ctx, g.ID); err != nil {
			o.logger.Error().Err(err).Str("guide_id", g.ID.String()).Msg("compensation: delete guide failed")
		}
	}
	if patientID != "" {
		if err := o.patients.Delete(ctx, patientID); err != nil {
			o.logger.Error().Err(err).Str("patient_id", patientID).Msg("compensation: delete patient failed")
		}
	}
}

// buildGuideFields flattens a parsed record into the field map the store
// sanitizer understands. Extra parser fields ride along under their original
// names so Sanitize can report them.
func buildGuideFields(rec tiss.GuideRecord, patientID string) map[string]interface{} {
	fields := map[string]interface{}{
		"provider_guide_number": rec.ProviderGuideNumber,
		"operator_guide_number": rec.OperatorGuideNumber,
		"insurance_number":      rec.InsuranceNumber,
		"password":              rec.Password,
		"password_expiry":       rec.PasswordExpiry,
		"authorization_date":    rec.AuthorizationDate,
		"newborn_care":          rec.NewbornCare,
		"transaction_type":      rec.TransactionType,
		"lot_number":            rec.LotNumber,
		"admission_character":   rec.AdmissionCharacter,
		"billing_type":          rec.BillingType,
		"billing_start":         rec.BillingStart,
		"billing_end":           rec.BillingEnd,
		"admission_type":        rec.AdmissionType,
		"admission_regime":      rec.AdmissionRegime,
		"diagnosis":             rec.Diagnosis,
		"accident_indicator":    rec.AccidentIndicator,
		"closure_reason":        rec.ClosureReason,
		"observation":           rec.Observation,
		"total_procedures":      rec.TotalProcedures,
		"total_daily_rates":     rec.TotalDailyRates,
		"total_taxes_rentals":   rec.TotalTaxesRentals,
		"total_materials":       rec.TotalMaterials,
		"total_drugs":           rec.TotalDrugs,
		"total_opme":            rec.TotalOPME,
		"total_medicinal_gases": rec.TotalMedicinalGases,
		"total_overall":         rec.TotalOverall,
	}
	if patientID != "" {
		fields["patient_id"] = patientID
	}
	if len(rec.OtherExpenses) > 0 {
		if raw, err := json.Marshal(rec.OtherExpenses); err == nil {
			fields["other_expenses"] = json.RawMessage(raw)
		}
	}
	for name, value := range rec.Extra {
		fields[name] = value
	}
	return fields
}

func procedureRow(g *guide.Guide, item tiss.ProcedureItem) *guide.Procedure {
	return &guide.Procedure{
		GuideID:          g.ID,
		Sequence:         strPtr(item.Sequence),
		TableCode:        strPtr(item.TableCode),
		Code:             strPtr(item.Code),
		Description:      strPtr(item.Description),
		Quantity:         item.Quantity,
		UnitValue:        item.UnitValue,
		TotalValue:       item.TotalValue,
		AccessRoute:      strPtr(item.AccessRoute),
		Technique:        strPtr(item.Technique),
		ProfessionalName: strPtr(item.ProfessionalName),
		ExecutionDate:    strPtr(item.ExecutionDate),
	}
}

func issueRow(g *guide.Guide, issue Issue) *guide.ValidationIssue {
	row := &guide.ValidationIssue{
		GuideID:       g.ID,
		Kind:          issue.Kind,
		Severity:      issue.Severity,
		Message:       issue.Message,
		ProcedureCode: strPtr(issue.ProcedureCode),
		Expected:      strPtr(issue.Expected),
		Observed:      strPtr(issue.Reported),
		ContractValue: issue.ContractValue,
	}
	if issue.Kind == IssueContractDivergence {
		charged, diff := issue.ChargedValue, issue.Difference
		row.ChargedValue = &charged
		row.Difference = &diff
	}
	return row
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
