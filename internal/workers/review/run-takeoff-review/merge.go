// internal/workers/review/run-takeoff-review/merge.go
package runtakeoffreview

import (
	"strings"

	"takeoff-workers/internal/models"
)

// MergeMissingItems deduplicates the missing-item candidates from the two
// discovery passes. The dedup key is the lower-cased (name, category) pair;
// a candidate found by both passes is emitted once, tagged "both",
// regardless of which pass is passed first. Where both passes describe the
// same candidate the audit fields win and the rescan contributes its
// page locator and confidence.
func MergeMissingItems(audit []models.AuditMissingItem, rescan []models.RescanMissingItem) []models.MissingItem {
	type slot struct {
		item  models.MissingItem
		order int
	}

	key := func(name, category string) string {
		return strings.ToLower(strings.TrimSpace(name)) + "\x00" + strings.ToLower(strings.TrimSpace(category))
	}

	merged := make(map[string]*slot, len(audit)+len(rescan))
	order := 0

	for _, a := range audit {
		k := key(a.Name, a.Category)
		if _, ok := merged[k]; ok {
			continue
		}
		merged[k] = &slot{
			order: order,
			item: models.MissingItem{
				Name:     a.Name,
				Category: a.Category,
				Reason:   a.Reason,
				Location: a.Location,
				CostCode: a.CostCode,
				Impact:   models.NormalizeImpact(a.Impact),
				Source:   models.SourceReviewer1,
			},
		}
		order++
	}

	for _, r := range rescan {
		k := key(r.Name, r.Category)
		if existing, ok := merged[k]; ok {
			existing.item.Source = models.SourceBoth
			existing.item.PageNumber = r.PageNumber
			existing.item.Confidence = r.Confidence
			if existing.item.CostCode == "" {
				existing.item.CostCode = r.CostCode
			}
			if existing.item.Location == "" {
				existing.item.Location = r.Location
			}
			continue
		}
		merged[k] = &slot{
			order: order,
			item: models.MissingItem{
				Name:       r.Name,
				Category:   r.Category,
				Reason:     r.Reason,
				Location:   r.Location,
				CostCode:   r.CostCode,
				Impact:     models.NormalizeImpact(r.Impact),
				PageNumber: r.PageNumber,
				Confidence: r.Confidence,
				Source:     models.SourceReviewer2,
			},
		}
		order++
	}

	out := make([]models.MissingItem, len(merged))
	for _, s := range merged {
		out[s.order] = s.item
	}
	return out
}
