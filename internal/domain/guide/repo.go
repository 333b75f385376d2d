package guide

import (
	"context"

	"github.com/google/uuid"
)

type GuideRepository interface {
	Create(ctx context.Context, g *Guide) error
	GetByID(ctx context.Context, id uuid.UUID) (*Guide, error)
	GetByProviderNumber(ctx context.Context, number string) (*Guide, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ProcedureRepository interface {
	Create(ctx context.Context, p *Procedure) error
	ListByGuide(ctx context.Context, guideID uuid.UUID) ([]*Procedure, error)
}

type IssueRepository interface {
	Create(ctx context.Context, issue *ValidationIssue) error
	ListByGuide(ctx context.Context, guideID uuid.UUID) ([]*ValidationIssue, error)
}
