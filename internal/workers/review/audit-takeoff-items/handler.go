// internal/workers/review/audit-takeoff-items/handler.go
package audittakeoffitems

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
	TaskType = "audit-takeoff-items"
	passName = "audit"
)

// ErrPartialData marks a response that parsed as JSON but carried none of
// the expected keys.
var ErrPartialData = errors.New("PARTIAL_DATA")

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

	// Provider and parse failures degrade inside Execute; the job itself
	// completes either way so the review flow keeps moving.
	result, err := h.Execute(ctx, &input)
	if err != nil {
		h.logger.Warn("audit pass degraded", map[string]interface{}{
			"takeoffId": input.TakeoffID,
			"error":     err.Error(),
		})
	}

	h.completeJob(client, job, &Output{AuditResult: *result})
}

// Execute runs the audit pass. It always returns a structurally valid
// result; the error reports why a degraded result carries empty findings.
func (h *Handler) Execute(ctx context.Context, input *Input) (*models.AuditResult, error) {
	result := &models.AuditResult{}

	text, err := h.provider.Generate(ctx, &genai.Request{
		Model:        h.config.Model,
		SystemPrompt: systemPrompt,
		UserPrompt:   buildPrompt(input),
		MaxTokens:    h.config.MaxTokens,
		Temperature:  h.config.Temperature,
		ForceJSON:    true,
	})
	if err != nil {
		metrics.ProviderCallsTotal.WithLabelValues(h.config.Model, "error").Inc()
		result.Summary.Notes = fmt.Sprintf("audit pass failed: %v", err)
		result.Normalize(len(input.Items))
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
		*result = models.AuditResult{}
		result.Summary.Notes = fmt.Sprintf("audit response unparseable: %v", err)
		result.Normalize(len(input.Items))
		return result, err
	}

	if result.ReviewedItems == nil && result.MissingItems == nil {
		notes := result.Summary.Notes
		*result = models.AuditResult{}
		result.Summary.Notes = fmt.Sprintf("audit response missing expected keys (notes: %q)", notes)
		result.Normalize(len(input.Items))
		return result, ErrPartialData
	}

	result.Normalize(len(input.Items))

	h.logger.Info("audit pass complete", map[string]interface{}{
		"takeoffId":     input.TakeoffID,
		"reviewedItems": len(result.ReviewedItems),
		"missingItems":  len(result.MissingItems),
	})
	return result, nil
}

const systemPrompt = "You are a senior construction estimator reviewing an AI-generated quantity takeoff. " +
	"Audit every line item for completeness and correctness. Respond with JSON only."

func buildPrompt(input *Input) string {
	var b strings.Builder

	b.WriteString("Review the following quantity takeoff")
	if input.ProjectContext != "" {
		b.WriteString(" for project context: " + input.ProjectContext)
	}
	b.WriteString(".\n\nTakeoff items:\n")
	for i, item := range input.Items {
		fmt.Fprintf(&b, "%d. %s", i+1, item.Name)
		if item.Description != "" {
			fmt.Fprintf(&b, " — %s", item.Description)
		}
		fmt.Fprintf(&b, " | qty: %g %s | category: %s", item.Quantity, item.Unit, item.Category)
		if item.CostCode != "" {
			fmt.Fprintf(&b, " | cost code: %s", item.CostCode)
		}
		if item.Location != "" {
			fmt.Fprintf(&b, " | location: %s", item.Location)
		}
		b.WriteString("\n")
	}

	if input.CostCodeStandard != "" {
		fmt.Fprintf(&b, "\nCost code standard: %s\n", input.CostCodeStandard)
	}
	if input.CostCodeReference != "" {
		b.WriteString("Cost code reference:\n" + input.CostCodeReference + "\n")
	}

	b.WriteString(`
For each item report status, missing information, cost code issues and whether the quantity is calculable. Also list items the takeoff appears to be missing entirely.

Respond with JSON of this shape:
{
  "reviewed_items": [
    {"item_index": 1, "item_name": "...", "status": "ok|needs_info|incorrect",
     "missing_information": [{"category": "measurement|quantity|specification|detail|other",
       "missing_data": "...", "why_needed": "...", "where_to_find": "...",
       "impact": "critical|high|medium|low"}],
     "cost_code_issues": "...", "quantity_calculable": true}
  ],
  "missing_items": [
    {"name": "...", "category": "...", "reason": "...", "location": "...",
     "cost_code": "...", "impact": "critical|high|medium|low"}
  ],
  "summary": {"total_items": 0, "items_with_issues": 0, "notes": "..."}
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
