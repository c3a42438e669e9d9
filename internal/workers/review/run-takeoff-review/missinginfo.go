// internal/workers/review/run-takeoff-review/missinginfo.go
package runtakeoffreview

import "takeoff-workers/internal/models"

const calculationHint = "provide missing measurement/spec to enable calculation"

// CollectMissingInformation flattens the three passes' findings into one
// list: the auditor's per-item gaps, the rescanner's gaps on newly
// discovered items, and the validator's impossible calculations (one entry
// per missing datum).
func CollectMissingInformation(
	items []models.TakeoffItem,
	audit *models.AuditResult,
	rescan *models.RescanResult,
	validation *models.ValidationResult,
) []models.MissingInformationEntry {
	entries := []models.MissingInformationEntry{}

	itemName := func(index int, fallback string) string {
		if index >= 1 && index <= len(items) {
			return items[index-1].Name
		}
		return fallback
	}

	if audit != nil {
		for _, ri := range audit.ReviewedItems {
			for _, mi := range ri.MissingInformation {
				entries = append(entries, models.MissingInformationEntry{
					ItemIndex:   ri.ItemIndex,
					ItemName:    itemName(ri.ItemIndex, ri.ItemName),
					Category:    models.NormalizeCategory(mi.Category),
					MissingData: mi.MissingData,
					WhyNeeded:   mi.WhyNeeded,
					WhereToFind: mi.WhereToFind,
					Impact:      models.NormalizeImpact(mi.Impact),
				})
			}
		}
	}

	if rescan != nil {
		for _, item := range rescan.MissingItems {
			for _, mi := range item.MissingInformation {
				entries = append(entries, models.MissingInformationEntry{
					ItemName:    item.Name,
					Category:    models.NormalizeCategory(mi.Category),
					MissingData: mi.MissingData,
					WhyNeeded:   mi.WhyNeeded,
					WhereToFind: mi.WhereToFind,
					Impact:      models.NormalizeImpact(mi.Impact),
				})
			}
		}
	}

	if validation != nil {
		for _, calc := range validation.ImpossibleCalculations {
			for _, missing := range calc.MissingData {
				entries = append(entries, models.MissingInformationEntry{
					ItemIndex:   calc.ItemIndex,
					ItemName:    itemName(calc.ItemIndex, calc.ItemName),
					Category:    models.CategoryMeasurement,
					MissingData: missing,
					WhyNeeded:   calculationHint,
					Impact:      models.ImpactHigh,
				})
			}
		}
	}

	return entries
}
