// internal/workers/review/validate-quantities/models.go
package validatequantities

import "takeoff-workers/internal/models"

type Input struct {
	TakeoffID         string               `json:"takeoffId"`
	Items             []models.TakeoffItem `json:"items"`
	AuditFindings     *models.AuditResult  `json:"auditFindings,omitempty"`
	CostCodeStandard  string               `json:"costCodeStandard"`
	CostCodeReference string               `json:"costCodeReference"`
	ProjectContext    string               `json:"projectContext,omitempty"`
}

type Output struct {
	ValidationResult models.ValidationResult `json:"validationResult"`
}
