// internal/workers/takeoff/fetch-takeoff-items/models.go
package fetchtakeoffitems

import "takeoff-workers/internal/models"

type Input struct {
	TakeoffID string `json:"takeoffId"`
}

type Output struct {
	TakeoffID        string               `json:"takeoffId"`
	ProjectContext   string               `json:"projectContext,omitempty"`
	CostCodeStandard string               `json:"costCodeStandard,omitempty"`
	Items            []models.TakeoffItem `json:"items"`
	Pages            []models.PlanPage    `json:"pages"`
	PagesFromCache   bool                 `json:"pagesFromCache"`
}
