// internal/models/review.go
package models

import "strings"

// Enumerations shared by the review passes. Values arrive from free-text
// model output, so every constructor path goes through a Normalize helper
// instead of trusting the raw string.

// MissingInfoCategory classifies what kind of data is missing for an item.
type MissingInfoCategory string

const (
	CategoryMeasurement   MissingInfoCategory = "measurement"
	CategoryQuantity      MissingInfoCategory = "quantity"
	CategorySpecification MissingInfoCategory = "specification"
	CategoryDetail        MissingInfoCategory = "detail"
	CategoryOther         MissingInfoCategory = "other"
)

// ImpactLevel ranks how badly a gap affects the bid.
type ImpactLevel string

const (
	ImpactCritical ImpactLevel = "critical"
	ImpactHigh     ImpactLevel = "high"
	ImpactMedium   ImpactLevel = "medium"
	ImpactLow      ImpactLevel = "low"
)

// Provenance marks which discovery pass produced a missing-item candidate.
type Provenance string

const (
	SourceReviewer1 Provenance = "reviewer1"
	SourceReviewer2 Provenance = "reviewer2"
	SourceBoth      Provenance = "both"
)

// NormalizeCategory maps arbitrary model output onto the category enum,
// defaulting to "other".
func NormalizeCategory(s string) MissingInfoCategory {
	switch MissingInfoCategory(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryMeasurement, CategoryQuantity, CategorySpecification, CategoryDetail:
		return MissingInfoCategory(strings.ToLower(strings.TrimSpace(s)))
	default:
		return CategoryOther
	}
}

// NormalizeImpact maps arbitrary model output onto the impact enum,
// defaulting to "medium".
func NormalizeImpact(s string) ImpactLevel {
	switch ImpactLevel(strings.ToLower(strings.TrimSpace(s))) {
	case ImpactCritical, ImpactHigh, ImpactLow:
		return ImpactLevel(strings.ToLower(strings.TrimSpace(s)))
	default:
		return ImpactMedium
	}
}

// MissingInformationEntry is one flattened finding in the final report:
// a concrete piece of data the estimator has to chase down.
type MissingInformationEntry struct {
	ItemIndex   int                 `json:"item_index,omitempty"` // 1-based position in the takeoff, 0 for new items
	ItemName    string              `json:"item_name"`
	Category    MissingInfoCategory `json:"category"`
	MissingData string              `json:"missing_data"`
	WhyNeeded   string              `json:"why_needed,omitempty"`
	WhereToFind string              `json:"where_to_find,omitempty"`
	Impact      ImpactLevel         `json:"impact"`
}

// MissingInfoDetail is the raw per-item gap as emitted by a model, before
// normalization. Every field is optional by construction.
type MissingInfoDetail struct {
	Category    string `json:"category,omitempty"`
	MissingData string `json:"missing_data,omitempty"`
	WhyNeeded   string `json:"why_needed,omitempty"`
	WhereToFind string `json:"where_to_find,omitempty"`
	Impact      string `json:"impact,omitempty"`
}

// MissingItem is a candidate line item absent from the original takeoff,
// deduplicated across the two discovery passes and tagged with provenance.
type MissingItem struct {
	Name       string      `json:"name"`
	Category   string      `json:"category"`
	Reason     string      `json:"reason,omitempty"`
	Location   string      `json:"location,omitempty"`
	CostCode   string      `json:"cost_code,omitempty"`
	Impact     ImpactLevel `json:"impact"`
	PageNumber int         `json:"page_number,omitempty"`
	Confidence *float64    `json:"confidence,omitempty"`
	Source     Provenance  `json:"source"`
}

// --- Reviewer 1: item audit ---

type ReviewedItem struct {
	ItemIndex          int                 `json:"item_index"` // 1-based
	ItemName           string              `json:"item_name,omitempty"`
	Status             string              `json:"status,omitempty"`
	MissingInformation []MissingInfoDetail `json:"missing_information,omitempty"`
	CostCodeIssues     string              `json:"cost_code_issues,omitempty"`
	QuantityCalculable *bool               `json:"quantity_calculable,omitempty"`
}

type AuditMissingItem struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Location string `json:"location,omitempty"`
	CostCode string `json:"cost_code,omitempty"`
	Impact   string `json:"impact,omitempty"`
}

type AuditSummary struct {
	TotalItems      int    `json:"total_items"`
	ItemsWithIssues int    `json:"items_with_issues"`
	Notes           string `json:"notes,omitempty"`
}

// AuditResult is Reviewer 1's output. A degraded result has empty slices
// and the failure reason in Summary.Notes.
type AuditResult struct {
	ReviewedItems []ReviewedItem     `json:"reviewed_items"`
	MissingItems  []AuditMissingItem `json:"missing_items"`
	Summary       AuditSummary       `json:"summary"`
}

// Normalize clamps the audit result to the invariant
// 0 <= len(ReviewedItems) <= itemCount and guarantees non-nil slices.
func (r *AuditResult) Normalize(itemCount int) {
	if r.ReviewedItems == nil {
		r.ReviewedItems = []ReviewedItem{}
	}
	if len(r.ReviewedItems) > itemCount {
		r.ReviewedItems = r.ReviewedItems[:itemCount]
	}
	if r.MissingItems == nil {
		r.MissingItems = []AuditMissingItem{}
	}
	if r.Summary.TotalItems == 0 {
		r.Summary.TotalItems = len(r.ReviewedItems)
	}
}

// --- Reviewer 2: plan rescan ---

type RescanMissingItem struct {
	Name               string              `json:"name"`
	Category           string              `json:"category,omitempty"`
	Reason             string              `json:"reason,omitempty"`
	Location           string              `json:"location,omitempty"`
	CostCode           string              `json:"cost_code,omitempty"`
	Impact             string              `json:"impact,omitempty"`
	PageNumber         int                 `json:"page_number,omitempty"`
	Region             string              `json:"region,omitempty"`
	Confidence         *float64            `json:"confidence,omitempty"`
	MissingInformation []MissingInfoDetail `json:"missing_information,omitempty"`
}

type RescanFlaggedItem struct {
	ItemIndex          int                 `json:"item_index,omitempty"` // 1-based
	ItemName           string              `json:"item_name,omitempty"`
	MissingInformation []MissingInfoDetail `json:"missing_information,omitempty"`
}

type RescanSummary struct {
	PagesScanned int    `json:"pages_scanned"`
	Notes        string `json:"notes,omitempty"`
}

// RescanResult is Reviewer 2's output.
type RescanResult struct {
	MissingItems         []RescanMissingItem `json:"missing_items"`
	ItemsWithMissingData []RescanFlaggedItem `json:"items_with_missing_data"`
	Summary              RescanSummary       `json:"summary"`
}

func (r *RescanResult) Normalize(pageCount int) {
	if r.MissingItems == nil {
		r.MissingItems = []RescanMissingItem{}
	}
	if r.ItemsWithMissingData == nil {
		r.ItemsWithMissingData = []RescanFlaggedItem{}
	}
	if r.Summary.PagesScanned == 0 {
		r.Summary.PagesScanned = pageCount
	}
}

// --- Reviewer 3: quantity validation ---

type ValidatedItem struct {
	ItemIndex             int      `json:"item_index"` // 1-based
	ItemName              string   `json:"item_name,omitempty"`
	QuantityValid         *bool    `json:"quantity_valid,omitempty"`
	CostCodeValid         *bool    `json:"cost_code_valid,omitempty"`
	CalculationPossible   *bool    `json:"calculation_possible,omitempty"`
	MissingForCalculation []string `json:"missing_for_calculation,omitempty"`
	Discrepancies         []string `json:"discrepancies,omitempty"`
	Recommendation        string   `json:"recommendation,omitempty"`
}

type ImpossibleCalculation struct {
	ItemIndex   int      `json:"item_index,omitempty"` // 1-based
	ItemName    string   `json:"item_name,omitempty"`
	MissingData []string `json:"missing_data,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

type ValidationSummary struct {
	TotalValidated int    `json:"total_validated"`
	Notes          string `json:"notes,omitempty"`
}

// ValidationResult is Reviewer 3's output.
type ValidationResult struct {
	ValidatedItems         []ValidatedItem         `json:"validated_items"`
	ImpossibleCalculations []ImpossibleCalculation `json:"impossible_calculations"`
	Summary                ValidationSummary       `json:"summary"`
}

func (r *ValidationResult) Normalize(itemCount int) {
	if r.ValidatedItems == nil {
		r.ValidatedItems = []ValidatedItem{}
	}
	if len(r.ValidatedItems) > itemCount {
		r.ValidatedItems = r.ValidatedItems[:itemCount]
	}
	if r.ImpossibleCalculations == nil {
		r.ImpossibleCalculations = []ImpossibleCalculation{}
	}
	if r.Summary.TotalValidated == 0 {
		r.Summary.TotalValidated = len(r.ValidatedItems)
	}
}

// ReviewReport aggregates one complete review run. It is built fresh per
// invocation and handed to the caller; this package never stores it.
type ReviewReport struct {
	ReviewID              string                    `json:"review_id"`
	Audit                 AuditResult               `json:"audit"`
	Rescan                RescanResult              `json:"rescan"`
	Validation            ValidationResult          `json:"validation"`
	MergedMissingItems    []MissingItem             `json:"merged_missing_items"`
	AllMissingInformation []MissingInformationEntry `json:"all_missing_information"`
}
