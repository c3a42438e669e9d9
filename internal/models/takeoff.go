// internal/models/takeoff.go
package models

// TakeoffItem is one line of a quantity takeoff derived from construction
// plans. Items are read-only inputs to the review engine; workers never
// mutate them.
type TakeoffItem struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Quantity    float64  `json:"quantity"`
	Unit        string   `json:"unit"`
	Category    string   `json:"category"`
	CostCode    string   `json:"cost_code,omitempty"`
	Location    string   `json:"location,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// PlanPage is a handle to one rendered plan-sheet image. Rendering and
// storage belong to the plan pipeline; workers only pass handles around and
// resolve them through the page cache.
type PlanPage struct {
	PageNumber int    `json:"page_number"`
	ImageURL   string `json:"image_url"`
	MimeType   string `json:"mime_type,omitempty"`
}

// CostCodeEntry is one row of the cost-code catalog (CSI MasterFormat or a
// customer standard).
type CostCodeEntry struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Division    string `json:"division,omitempty"`
	Description string `json:"description,omitempty"`
}
