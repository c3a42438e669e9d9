// internal/workers/review/run-takeoff-review/models.go
package runtakeoffreview

import (
	"context"

	audittakeoffitems "takeoff-workers/internal/workers/review/audit-takeoff-items"
	rescanplanpages "takeoff-workers/internal/workers/review/rescan-plan-pages"
	validatequantities "takeoff-workers/internal/workers/review/validate-quantities"

	"takeoff-workers/internal/models"
)

type Input struct {
	TakeoffID         string               `json:"takeoffId"`
	Items             []models.TakeoffItem `json:"items"`
	Pages             []models.PlanPage    `json:"pages"`
	CostCodeStandard  string               `json:"costCodeStandard"`
	CostCodeReference string               `json:"costCodeReference"`
	ProjectContext    string               `json:"projectContext,omitempty"`
}

type Output struct {
	ReviewReport models.ReviewReport `json:"reviewReport"`
}

// The three reviewer passes, as the orchestrator sees them. Each
// implementation returns a structurally valid result even on failure.

type Auditor interface {
	Execute(ctx context.Context, input *audittakeoffitems.Input) (*models.AuditResult, error)
}

type Rescanner interface {
	Execute(ctx context.Context, input *rescanplanpages.Input) (*models.RescanResult, error)
}

type Validator interface {
	Execute(ctx context.Context, input *validatequantities.Input) (*models.ValidationResult, error)
}
