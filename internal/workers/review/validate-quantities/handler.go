// internal/workers/review/validate-quantities/handler.go
package validatequantities

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
	TaskType = "validate-quantities"
	passName = "validation"
)

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

	result, err := h.Execute(ctx, &input)
	if err != nil {
		h.logger.Warn("validation pass degraded", map[string]interface{}{
			"takeoffId": input.TakeoffID,
			"error":     err.Error(),
		})
	}

	h.completeJob(client, job, &Output{ValidationResult: *result})
}

// Execute runs the validation pass over the full takeoff, using the audit
// pass findings when available. Always returns a structurally valid result.
func (h *Handler) Execute(ctx context.Context, input *Input) (*models.ValidationResult, error) {
	result := &models.ValidationResult{}

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
		result.Summary.Notes = fmt.Sprintf("validation pass failed: %v", err)
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
		*result = models.ValidationResult{}
		result.Summary.Notes = fmt.Sprintf("validation response unparseable: %v", err)
		result.Normalize(len(input.Items))
		return result, err
	}

	if result.ValidatedItems == nil && result.ImpossibleCalculations == nil {
		notes := result.Summary.Notes
		*result = models.ValidationResult{}
		result.Summary.Notes = fmt.Sprintf("validation response missing expected keys (notes: %q)", notes)
		result.Normalize(len(input.Items))
		return result, ErrPartialData
	}

	result.Normalize(len(input.Items))

	h.logger.Info("validation pass complete", map[string]interface{}{
		"takeoffId":      input.TakeoffID,
		"validatedItems": len(result.ValidatedItems),
		"impossibleCalc": len(result.ImpossibleCalculations),
	})
	return result, nil
}

const systemPrompt = "You are a senior construction estimator checking the arithmetic of a quantity takeoff: " +
	"quantity plausibility, cost code assignment, and whether each quantity is actually derivable from the " +
	"available measurements. Respond with JSON only."

func buildPrompt(input *Input) string {
	var b strings.Builder

	b.WriteString("Validate the quantities and cost codes of the following takeoff")
	if input.ProjectContext != "" {
		b.WriteString(" (project context: " + input.ProjectContext + ")")
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
		b.WriteString("\n")
	}

	if input.AuditFindings != nil && len(input.AuditFindings.ReviewedItems) > 0 {
		b.WriteString("\nFindings from a prior completeness audit:\n")
		for _, ri := range input.AuditFindings.ReviewedItems {
			if len(ri.MissingInformation) == 0 && ri.CostCodeIssues == "" {
				continue
			}
			fmt.Fprintf(&b, "- item %d (%s): ", ri.ItemIndex, ri.ItemName)
			for j, mi := range ri.MissingInformation {
				if j > 0 {
					b.WriteString("; ")
				}
				fmt.Fprintf(&b, "missing %s (%s)", mi.MissingData, mi.Category)
			}
			if ri.CostCodeIssues != "" {
				fmt.Fprintf(&b, " | cost code issue: %s", ri.CostCodeIssues)
			}
			b.WriteString("\n")
		}
	}

	if input.CostCodeStandard != "" {
		fmt.Fprintf(&b, "\nCost code standard: %s\n", input.CostCodeStandard)
	}
	if input.CostCodeReference != "" {
		b.WriteString("Cost code reference:\n" + input.CostCodeReference + "\n")
	}

	b.WriteString(`
For each item report whether the quantity and cost code are valid, whether the quantity can be calculated from available data, what is missing for the calculation, any discrepancies, and a recommendation. List items whose quantities cannot be calculated at all under impossible_calculations.

Respond with JSON of this shape:
{
  "validated_items": [
    {"item_index": 1, "item_name": "...", "quantity_valid": true, "cost_code_valid": true,
     "calculation_possible": true, "missing_for_calculation": ["..."],
     "discrepancies": ["..."], "recommendation": "..."}
  ],
  "impossible_calculations": [
    {"item_index": 1, "item_name": "...", "missing_data": ["..."], "reason": "..."}
  ],
  "summary": {"total_validated": 0, "notes": "..."}
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
