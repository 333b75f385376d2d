package guide

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lazarus/tiss-importer/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Guide Repository ===========

type guideRepoPG struct{ pool *pgxpool.Pool }

func NewGuideRepoPG(pool *pgxpool.Pool) GuideRepository { return &guideRepoPG{pool: pool} }

func (r *guideRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const guideCols = `id, provider_guide_number, operator_guide_number, insurance_number,
	patient_id, password, password_expiry, authorization_date, newborn_care,
	transaction_type, lot_number, admission_character, billing_type,
	billing_start, billing_end, admission_type, admission_regime,
	diagnosis, accident_indicator, closure_reason, observation, other_expenses,
	total_procedures, total_daily_rates, total_taxes_rentals, total_materials,
	total_drugs, total_opme, total_medicinal_gases, total_overall, created_at`

func (r *guideRepoPG) scanGuide(row pgx.Row) (*Guide, error) {
	var g Guide
	err := row.Scan(&g.ID, &g.ProviderGuideNumber, &g.OperatorGuideNumber, &g.InsuranceNumber,
		&g.PatientID, &g.Password, &g.PasswordExpiry, &g.AuthorizationDate, &g.NewbornCare,
		&g.TransactionType, &g.LotNumber, &g.AdmissionCharacter, &g.BillingType,
		&g.BillingStart, &g.BillingEnd, &g.AdmissionType, &g.AdmissionRegime,
		&g.Diagnosis, &g.AccidentIndicator, &g.ClosureReason, &g.Observation, &g.OtherExpenses,
		&g.TotalProcedures, &g.TotalDailyRates, &g.TotalTaxesRentals, &g.TotalMaterials,
		&g.TotalDrugs, &g.TotalOPME, &g.TotalMedicinalGases, &g.TotalOverall, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *guideRepoPG) Create(ctx context.Context, g *Guide) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO guides (id, provider_guide_number, operator_guide_number, insurance_number,
			patient_id, password, password_expiry, authorization_date, newborn_care,
			transaction_type, lot_number, admission_character, billing_type,
			billing_start, billing_end, admission_type, admission_regime,
			diagnosis, accident_indicator, closure_reason, observation, other_expenses,
			total_procedures, total_daily_rates, total_taxes_rentals, total_materials,
			total_drugs, total_opme, total_medicinal_gases, total_overall)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30)`,
		g.ID, g.ProviderGuideNumber, g.OperatorGuideNumber, g.InsuranceNumber,
		g.PatientID, g.Password, g.PasswordExpiry, g.AuthorizationDate, g.NewbornCare,
		g.TransactionType, g.LotNumber, g.AdmissionCharacter, g.BillingType,
		g.BillingStart, g.BillingEnd, g.AdmissionType, g.AdmissionRegime,
		g.Diagnosis, g.AccidentIndicator, g.ClosureReason, g.Observation, g.OtherExpenses,
		g.TotalProcedures, g.TotalDailyRates, g.TotalTaxesRentals, g.TotalMaterials,
		g.TotalDrugs, g.TotalOPME, g.TotalMedicinalGases, g.TotalOverall)
	return err
}

func (r *guideRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Guide, error) {
	return r.scanGuide(r.conn(ctx).QueryRow(ctx, `SELECT `+guideCols+` FROM guides WHERE id = $1`, id))
}

func (r *guideRepoPG) GetByProviderNumber(ctx context.Context, number string) (*Guide, error) {
	return r.scanGuide(r.conn(ctx).QueryRow(ctx, `SELECT `+guideCols+` FROM guides WHERE provider_guide_number = $1`, number))
}

func (r *guideRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM guides WHERE id = $1`, id)
	return err
}

// =========== Procedure Repository ===========

type procedureRepoPG struct{ pool *pgxpool.Pool }

func NewProcedureRepoPG(pool *pgxpool.Pool) ProcedureRepository { return &procedureRepoPG{pool: pool} }

func (r *procedureRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const procCols = `id, guide_id, sequence, table_code, code, description,
	quantity, unit_value, total_value, access_route, technique,
	professional_name, execution_date, created_at`

func (r *procedureRepoPG) Create(ctx context.Context, p *Procedure) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO procedures (id, guide_id, sequence, table_code, code, description,
			quantity, unit_value, total_value, access_route, technique,
			professional_name, execution_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.GuideID, p.Sequence, p.TableCode, p.Code, p.Description,
		p.Quantity, p.UnitValue, p.TotalValue, p.AccessRoute, p.Technique,
		p.ProfessionalName, p.ExecutionDate)
	return err
}

func (r *procedureRepoPG) ListByGuide(ctx context.Context, guideID uuid.UUID) ([]*Procedure, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+procCols+` FROM procedures WHERE guide_id = $1 ORDER BY created_at`, guideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Procedure
	for rows.Next() {
		var p Procedure
		if err := rows.Scan(&p.ID, &p.GuideID, &p.Sequence, &p.TableCode, &p.Code, &p.Description,
			&p.Quantity, &p.UnitValue, &p.TotalValue, &p.AccessRoute, &p.Technique,
			&p.ProfessionalName, &p.ExecutionDate, &p.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}

// =========== Validation Issue Repository ===========

type issueRepoPG struct{ pool *pgxpool.Pool }

func NewIssueRepoPG(pool *pgxpool.Pool) IssueRepository { return &issueRepoPG{pool: pool} }

func (r *issueRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const issueCols = `id, guide_id, kind, severity, message, procedure_code,
	expected, observed, charged_value, contract_value, difference, created_at`

func (r *issueRepoPG) Create(ctx context.Context, issue *ValidationIssue) error {
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO validation_issues (id, guide_id, kind, severity, message, procedure_code,
			expected, observed, charged_value, contract_value, difference)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		issue.ID, issue.GuideID, issue.Kind, issue.Severity, issue.Message, issue.ProcedureCode,
		issue.Expected, issue.Observed, issue.ChargedValue, issue.ContractValue, issue.Difference)
	return err
}

func (r *issueRepoPG) ListByGuide(ctx context.Context, guideID uuid.UUID) ([]*ValidationIssue, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+issueCols+` FROM validation_issues WHERE guide_id = $1 ORDER BY created_at`, guideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ValidationIssue
	for rows.Next() {
		var v ValidationIssue
		if err := rows.Scan(&v.ID, &v.GuideID, &v.Kind, &v.Severity, &v.Message, &v.ProcedureCode,
			&v.Expected, &v.Observed, &v.ChargedValue, &v.ContractValue, &v.Difference, &v.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &v)
	}
	return items, rows.Err()
}
