package guide

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound reports a lookup that matched no row.
var ErrNotFound = errors.New("guide: not found")

// Service fronts the local guide store. It owns the row-level validation the
// importer relies on; everything else is delegated to the repositories.
type Service struct {
	guides     GuideRepository
	procedures ProcedureRepository
	issues     IssueRepository
}

func NewService(g GuideRepository, p ProcedureRepository, i IssueRepository) *Service {
	return &Service{guides: g, procedures: p, issues: i}
}

// GetByProviderNumber looks a guide up by its business key. Returns
// ErrNotFound when no row matches, so callers can distinguish "free to
// import" from a real store failure.
func (s *Service) GetByProviderNumber(ctx context.Context, number string) (*Guide, error) {
	if number == "" {
		return nil, fmt.Errorf("provider guide number is required")
	}
	return s.guides.GetByProviderNumber(ctx, number)
}

func (s *Service) CreateGuide(ctx context.Context, g *Guide) error {
	if g.ProviderGuideNumber == "" {
		return fmt.Errorf("provider guide number is required")
	}
	return s.guides.Create(ctx, g)
}

func (s *Service) GetGuide(ctx context.Context, id uuid.UUID) (*Guide, error) {
	return s.guides.GetByID(ctx, id)
}

// DeleteGuide removes the guide row; procedure and issue rows go with it via
// the guide_id cascade.
func (s *Service) DeleteGuide(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("guide id is required")
	}
	return s.guides.Delete(ctx, id)
}

func (s *Service) CreateProcedure(ctx context.Context, p *Procedure) error {
	if p.GuideID == uuid.Nil {
		return fmt.Errorf("guide_id is required")
	}
	return s.procedures.Create(ctx, p)
}

func (s *Service) ListProcedures(ctx context.Context, guideID uuid.UUID) ([]*Procedure, error) {
	return s.procedures.ListByGuide(ctx, guideID)
}

func (s *Service) CreateIssue(ctx context.Context, issue *ValidationIssue) error {
	if issue.GuideID == uuid.Nil {
		return fmt.Errorf("guide_id is required")
	}
	if issue.Kind == "" {
		return fmt.Errorf("issue kind is required")
	}
	if issue.Severity == "" {
		issue.Severity = "low"
	}
	return s.issues.Create(ctx, issue)
}

func (s *Service) ListIssues(ctx context.Context, guideID uuid.UUID) ([]*ValidationIssue, error) {
	return s.issues.ListByGuide(ctx, guideID)
}
