// internal/workers/review/rescan-plan-pages/models.go
package rescanplanpages

import "takeoff-workers/internal/models"

type Input struct {
	TakeoffID         string               `json:"takeoffId"`
	Pages             []models.PlanPage    `json:"pages"`
	ExistingItems     []models.TakeoffItem `json:"existingItems"`
	CostCodeStandard  string               `json:"costCodeStandard"`
	CostCodeReference string               `json:"costCodeReference"`
	ProjectContext    string               `json:"projectContext,omitempty"`
}

type Output struct {
	RescanResult models.RescanResult `json:"rescanResult"`
}
