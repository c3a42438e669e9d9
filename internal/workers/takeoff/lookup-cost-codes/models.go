// internal/workers/takeoff/lookup-cost-codes/models.go
package lookupcostcodes

import "takeoff-workers/internal/models"

type Input struct {
	Standard string `json:"standard"`
	Query    string `json:"query"`
	Division string `json:"division,omitempty"`
	Size     int    `json:"size,omitempty"`
}

type Output struct {
	Entries           []models.CostCodeEntry `json:"entries"`
	ReferenceFragment string                 `json:"referenceFragment"`
	TotalHits         int                    `json:"totalHits"`
	FromCache         bool                   `json:"fromCache"`
}
