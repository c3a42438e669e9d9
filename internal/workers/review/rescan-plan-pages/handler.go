// internal/workers/review/rescan-plan-pages/handler.go
package rescanplanpages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"takeoff-workers/internal/common/genai"
	"takeoff-workers/internal/common/jsonrepair"
	"takeoff-workers/internal/common/logger"
	"takeoff-workers/internal/common/metrics"
	"takeoff-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "rescan-plan-pages"
	passName = "rescan"
)

var (
	ErrPartialData = errors.New("PARTIAL_DATA")
	ErrNoPages     = errors.New("PAGE_IMAGE_MISSING")
)

type Handler struct {
	config   *Config
	provider genai.Provider
	logger   logger.Logger
}

func NewHandler(config *Config, provider genai.Provider, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		provider: provider,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	result, err := h.Execute(ctx, &input)
	if err != nil {
		h.logger.Warn("rescan pass degraded", map[string]interface{}{
			"takeoffId": input.TakeoffID,
			"error":     err.Error(),
		})
	}

	h.completeJob(client, job, &Output{RescanResult: *result})
}

// Execute runs the vision rescan pass over the plan pages. Like the audit
// pass it always hands back a structurally valid result.
func (h *Handler) Execute(ctx context.Context, input *Input) (*models.RescanResult, error) {
	result := &models.RescanResult{}

	pages := input.Pages
	if len(pages) == 0 {
		result.Summary.Notes = "rescan skipped: no plan pages supplied"
		result.Normalize(0)
		return result, ErrNoPages
	}
	if h.config.MaxPages > 0 && len(pages) > h.config.MaxPages {
		pages = pages[:h.config.MaxPages]
	}

	images := make([]genai.ImageInput, 0, len(pages))
	for _, p := range pages {
		images = append(images, genai.ImageInput{URL: p.ImageURL, MimeType: p.MimeType})
	}

	text, err := h.provider.Generate(ctx, &genai.Request{
		Model:        h.config.Model,
		SystemPrompt: systemPrompt,
		UserPrompt:   buildPrompt(input, pages),
		Images:       images,
		MaxTokens:    h.config.MaxTokens,
		Temperature:  h.config.Temperature,
		ForceJSON:    true,
	})
	if err != nil {
		metrics.ProviderCallsTotal.WithLabelValues(h.config.Model, "error").Inc()
		result.Summary.Notes = fmt.Sprintf("rescan pass failed: %v", err)
		result.Normalize(len(pages))
		return result, err
	}
	metrics.ProviderCallsTotal.WithLabelValues(h.config.Model, "ok").Inc()

	repaired, err := jsonrepair.DecodeRepaired(text, result)
	if repaired {
		outcome := "recovered"
		if err != nil {
			outcome = "failed"
		}
		metrics.ResponseRepairsTotal.WithLabelValues(passName, outcome).Inc()
	}
	if err != nil {
		*result = models.RescanResult{}
		result.Summary.Notes = fmt.Sprintf("rescan response unparseable: %v", err)
		result.Normalize(len(pages))
		return result, err
	}

	if result.MissingItems == nil && result.ItemsWithMissingData == nil {
		notes := result.Summary.Notes
		*result = models.RescanResult{}
		result.Summary.Notes = fmt.Sprintf("rescan response missing expected keys (notes: %q)", notes)
		result.Normalize(len(pages))
		return result, ErrPartialData
	}

	result.Normalize(len(pages))

	h.logger.Info("rescan pass complete", map[string]interface{}{
		"takeoffId":    input.TakeoffID,
		"pagesScanned": len(pages),
		"missingItems": len(result.MissingItems),
		"flaggedItems": len(result.ItemsWithMissingData),
	})
	return result, nil
}

const systemPrompt = "You are a senior construction estimator re-scanning plan sheets for scope an " +
	"automated takeoff missed. The attached images are the rendered plan pages, in order. " +
	"Respond with JSON only."

func buildPrompt(input *Input, pages []models.PlanPage) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Re-scan the %d attached plan pages for line items absent from the takeoff below", len(pages))
	if input.ProjectContext != "" {
		b.WriteString(" (project context: " + input.ProjectContext + ")")
	}
	b.WriteString(".\n\nItems already in the takeoff (do not flag these again):\n")
	for i, item := range input.ExistingItems {
		fmt.Fprintf(&b, "%d. %s | qty: %g %s | category: %s\n", i+1, item.Name, item.Quantity, item.Unit, item.Category)
	}

	if input.CostCodeStandard != "" {
		fmt.Fprintf(&b, "\nCost code standard: %s\n", input.CostCodeStandard)
	}
	if input.CostCodeReference != "" {
		b.WriteString("Cost code reference:\n" + input.CostCodeReference + "\n")
	}

	b.WriteString(`
For every item visible on the plans but absent from the list above, report where you saw it (page number and region), a suggested cost code, your confidence, and any information still missing for it. Also flag existing items whose plans reveal missing data.

Respond with JSON of this shape:
{
  "missing_items": [
    {"name": "...", "category": "...", "reason": "...", "location": "...",
     "cost_code": "...", "impact": "critical|high|medium|low",
     "page_number": 1, "region": "...", "confidence": 0.8,
     "missing_information": [{"category": "measurement|quantity|specification|detail|other",
       "missing_data": "...", "why_needed": "...", "where_to_find": "...",
       "impact": "critical|high|medium|low"}]}
  ],
  "items_with_missing_data": [
    {"item_index": 1, "item_name": "...",
     "missing_information": [{"category": "...", "missing_data": "...", "impact": "..."}]}
  ],
  "summary": {"pages_scanned": 0, "notes": "..."}
}
`)
	return b.String()
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err})
		return
	}
	if _, err = cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{"error": err})
	}
}
