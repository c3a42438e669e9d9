// internal/workers/bid/create-bid-record/handler.go
package createbidrecord

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"takeoff-workers/internal/common/logger"
)

const (
	TaskType = "create-bid-record"
)

var (
	ErrBidInsertFailed = errors.New("BID_INSERT_FAILED")
	ErrDuplicateBid    = errors.New("DUPLICATE_BID")
)

type Handler struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
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

	output, err := h.Execute(ctx, &input)
	if err != nil {
		errorCode := "BID_INSERT_FAILED"
		if errors.Is(err, ErrDuplicateBid) {
			errorCode = "DUPLICATE_BID"
		}
		h.failJob(client, job, errorCode, err.Error())
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	// One open bid per takeoff.
	var exists bool
	err := h.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM bids
			WHERE takeoff_id = $1 AND status NOT IN ('rejected', 'expired')
		)`, input.TakeoffID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("%w: duplicate check failed: %v", ErrBidInsertFailed, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: open bid already exists for takeoff %s", ErrDuplicateBid, input.TakeoffID)
	}

	bidID := uuid.New().String()
	createdAt := time.Now().UTC().Format(time.RFC3339)

	reviewSummaryJSON, err := json.Marshal(map[string]interface{}{
		"reviewId":           input.ReviewReport.ReviewID,
		"mergedMissingItems": len(input.ReviewReport.MergedMissingItems),
		"missingInformation": len(input.ReviewReport.AllMissingInformation),
		"auditNotes":         input.ReviewReport.Audit.Summary.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal review summary: %v", ErrBidInsertFailed, err)
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO bids (
			id, takeoff_id, customer_id, project_name,
			review_summary, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		bidID,
		input.TakeoffID,
		input.CustomerID,
		input.ProjectName,
		reviewSummaryJSON,
		"draft",
		createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert failed: %v", ErrBidInsertFailed, err)
	}

	h.logger.Info("bid record created", map[string]interface{}{
		"bidId":     bidID,
		"takeoffId": input.TakeoffID,
		"reviewId":  input.ReviewReport.ReviewID,
	})

	return &Output{
		BidID:     bidID,
		BidStatus: "draft",
		CreatedAt: createdAt,
	}, nil
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
