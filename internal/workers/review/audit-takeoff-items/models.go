// internal/workers/review/audit-takeoff-items/models.go
package audittakeoffitems

import "takeoff-workers/internal/models"

type Input struct {
	TakeoffID         string               `json:"takeoffId"`
	Items             []models.TakeoffItem `json:"items"`
	CostCodeStandard  string               `json:"costCodeStandard"`
	CostCodeReference string               `json:"costCodeReference"`
	ProjectContext    string               `json:"projectContext,omitempty"`
}

type Output struct {
	AuditResult models.AuditResult `json:"auditResult"`
}
