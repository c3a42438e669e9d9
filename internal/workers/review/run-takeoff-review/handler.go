// internal/workers/review/run-takeoff-review/handler.go
package runtakeoffreview

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	stderrors "takeoff-workers/internal/common/errors"
	"takeoff-workers/internal/common/logger"
	"takeoff-workers/internal/common/metrics"
	"takeoff-workers/internal/common/observability"
	"takeoff-workers/internal/common/validation"
	"takeoff-workers/internal/models"

	audittakeoffitems "takeoff-workers/internal/workers/review/audit-takeoff-items"
	rescanplanpages "takeoff-workers/internal/workers/review/rescan-plan-pages"
	validatequantities "takeoff-workers/internal/workers/review/validate-quantities"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const TaskType = "run-takeoff-review"

// Handler orchestrates one complete review: the two discovery passes run
// concurrently, the validator follows with the auditor's findings, then
// merge and collection assemble the report. The report is always complete
// and structurally valid; failed passes contribute empty findings with an
// explanatory note.
type Handler struct {
	config    *Config
	auditor   Auditor
	rescanner Rescanner
	validator Validator
	obs       *observability.Observability
	logger    logger.Logger
}

func NewHandler(config *Config, auditor Auditor, rescanner Rescanner, validator Validator, obs *observability.Observability, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		auditor:   auditor,
		rescanner: rescanner,
		validator: validator,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, "PARSE_ERROR").Inc()
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err))
		return
	}

	if err := validateInput(job.Variables); err != nil {
		bpmnErr := stderrors.ConvertToBPMNError(stderrors.NewReviewInputInvalidError(err.Error()))
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
		h.failJob(client, job, bpmnErr.Code, bpmnErr.Message+": "+bpmnErr.Details)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.JobTimeout())
	defer cancel()

	report := h.Execute(ctx, &input)

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())

	h.completeJob(client, job, &Output{ReviewReport: *report})
}

// inputSchema is the contract the BPMN process must satisfy before a
// review starts. Items may be empty (a rescan-only review is legal) but
// the takeoff id is not optional.
var inputSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"takeoffId"},
	"properties": map[string]interface{}{
		"takeoffId": map[string]interface{}{"type": "string", "minLength": 1},
		"items":     map[string]interface{}{"type": "array"},
		"pages":     map[string]interface{}{"type": "array"},
	},
}

func validateInput(variables string) error {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &payload); err != nil {
		return err
	}
	return validation.MustValidate(inputSchema, payload)
}

// Execute runs the full review. It never fails: every pass degrades behind
// its own error boundary, so callers only need count-based checks on the
// returned report.
func (h *Handler) Execute(ctx context.Context, input *Input) *models.ReviewReport {
	report := &models.ReviewReport{ReviewID: uuid.New().String()}

	h.logger.Info("review started", map[string]interface{}{
		"reviewId":  report.ReviewID,
		"takeoffId": input.TakeoffID,
		"items":     len(input.Items),
		"pages":     len(input.Pages),
	})

	// Discovery passes are independent: read-only inputs, no shared state.
	var (
		wg     sync.WaitGroup
		audit  *models.AuditResult
		rescan *models.RescanResult
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		audit = h.runAudit(ctx, input)
	}()
	go func() {
		defer wg.Done()
		rescan = h.runRescan(ctx, input)
	}()
	wg.Wait()

	// The validator depends on the auditor's findings, so it runs after
	// both discovery passes settle.
	validation := h.runValidation(ctx, input, audit)

	report.Audit = *audit
	report.Rescan = *rescan
	report.Validation = *validation
	report.MergedMissingItems = MergeMissingItems(audit.MissingItems, rescan.MissingItems)
	report.AllMissingInformation = CollectMissingInformation(input.Items, audit, rescan, validation)

	h.logger.Info("review complete", map[string]interface{}{
		"reviewId":           report.ReviewID,
		"takeoffId":          input.TakeoffID,
		"mergedMissingItems": len(report.MergedMissingItems),
		"missingInformation": len(report.AllMissingInformation),
	})
	return report
}

func (h *Handler) runAudit(ctx context.Context, input *Input) *models.AuditResult {
	passCtx, cancel := context.WithTimeout(ctx, h.config.PassTimeout)
	defer cancel()

	start := time.Now()
	result, err := h.auditor.Execute(passCtx, &audittakeoffitems.Input{
		TakeoffID:         input.TakeoffID,
		Items:             input.Items,
		CostCodeStandard:  input.CostCodeStandard,
		CostCodeReference: input.CostCodeReference,
		ProjectContext:    input.ProjectContext,
	})
	h.recordPass(ctx, "audit", err, time.Since(start))
	return result
}

func (h *Handler) runRescan(ctx context.Context, input *Input) *models.RescanResult {
	passCtx, cancel := context.WithTimeout(ctx, h.config.PassTimeout)
	defer cancel()

	start := time.Now()
	result, err := h.rescanner.Execute(passCtx, &rescanplanpages.Input{
		TakeoffID:         input.TakeoffID,
		Pages:             input.Pages,
		ExistingItems:     input.Items,
		CostCodeStandard:  input.CostCodeStandard,
		CostCodeReference: input.CostCodeReference,
		ProjectContext:    input.ProjectContext,
	})
	h.recordPass(ctx, "rescan", err, time.Since(start))
	return result
}

func (h *Handler) runValidation(ctx context.Context, input *Input, audit *models.AuditResult) *models.ValidationResult {
	passCtx, cancel := context.WithTimeout(ctx, h.config.PassTimeout)
	defer cancel()

	start := time.Now()
	result, err := h.validator.Execute(passCtx, &validatequantities.Input{
		TakeoffID:         input.TakeoffID,
		Items:             input.Items,
		AuditFindings:     audit,
		CostCodeStandard:  input.CostCodeStandard,
		CostCodeReference: input.CostCodeReference,
		ProjectContext:    input.ProjectContext,
	})
	h.recordPass(ctx, "validation", err, time.Since(start))
	return result
}

func (h *Handler) recordPass(ctx context.Context, pass string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "degraded"
		h.logger.Warn("review pass degraded", map[string]interface{}{
			"pass":  pass,
			"error": err.Error(),
		})
	}
	if h.obs != nil {
		h.obs.RecordReviewPass(ctx, pass, status, elapsed)
	}
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
