// internal/workers/takeoff/fetch-takeoff-items/handler.go
package fetchtakeoffitems

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"takeoff-workers/internal/common/cache"
	"takeoff-workers/internal/common/logger"
	"takeoff-workers/internal/models"
)

const (
	TaskType = "fetch-takeoff-items"
)

var (
	ErrTakeoffNotFound = errors.New("TAKEOFF_NOT_FOUND")
	ErrQueryFailed     = errors.New("QUERY_EXECUTION_FAILED")
)

type Handler struct {
	config *Config
	db     *sql.DB
	pages  *cache.PageImageCache
	logger logger.Logger
}

// NewHandler wires the takeoff loader. pages may be nil; plan pages are
// then always read from the database.
func NewHandler(config *Config, db *sql.DB, pages *cache.PageImageCache, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		pages:  pages,
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
		errorCode := "QUERY_EXECUTION_FAILED"
		if errors.Is(err, ErrTakeoffNotFound) {
			errorCode = "TAKEOFF_NOT_FOUND"
		}
		h.failJob(client, job, errorCode, err.Error())
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.TakeoffID == "" {
		return nil, fmt.Errorf("%w: empty takeoff id", ErrTakeoffNotFound)
	}

	output := &Output{TakeoffID: input.TakeoffID}

	err := h.db.QueryRowContext(ctx, `
		SELECT project_context, cost_code_standard
		FROM takeoffs
		WHERE id = $1`, input.TakeoffID).
		Scan(&output.ProjectContext, &output.CostCodeStandard)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: takeoff %s", ErrTakeoffNotFound, input.TakeoffID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: takeoff lookup: %v", ErrQueryFailed, err)
	}

	items, err := h.loadItems(ctx, input.TakeoffID)
	if err != nil {
		return nil, err
	}
	output.Items = items

	pages, fromCache, err := h.loadPages(ctx, input.TakeoffID)
	if err != nil {
		return nil, err
	}
	output.Pages = pages
	output.PagesFromCache = fromCache

	h.logger.Info("takeoff loaded", map[string]interface{}{
		"takeoffId":      input.TakeoffID,
		"items":          len(items),
		"pages":          len(pages),
		"pagesFromCache": fromCache,
	})
	return output, nil
}

func (h *Handler) loadItems(ctx context.Context, takeoffID string) ([]models.TakeoffItem, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT name, description, quantity, unit, category, cost_code, location, confidence
		FROM takeoff_items
		WHERE takeoff_id = $1
		ORDER BY position ASC`, takeoffID)
	if err != nil {
		return nil, fmt.Errorf("%w: item query: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	items := []models.TakeoffItem{}
	for rows.Next() {
		var item models.TakeoffItem
		var description, costCode, location sql.NullString
		var confidence sql.NullFloat64

		if err := rows.Scan(&item.Name, &description, &item.Quantity, &item.Unit,
			&item.Category, &costCode, &location, &confidence); err != nil {
			return nil, fmt.Errorf("%w: item scan: %v", ErrQueryFailed, err)
		}
		item.Description = description.String
		item.CostCode = costCode.String
		item.Location = location.String
		if confidence.Valid {
			item.Confidence = &confidence.Float64
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: item rows: %v", ErrQueryFailed, err)
	}
	return items, nil
}

func (h *Handler) loadPages(ctx context.Context, takeoffID string) ([]models.PlanPage, bool, error) {
	if h.pages != nil {
		if cached, err := h.pages.Get(ctx, takeoffID); err != nil {
			h.logger.Warn("page cache unavailable", map[string]interface{}{"error": err.Error()})
		} else if cached != nil {
			return cached, true, nil
		}
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT page_number, image_url, mime_type
		FROM plan_pages
		WHERE takeoff_id = $1
		ORDER BY page_number ASC`, takeoffID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: page query: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	pages := []models.PlanPage{}
	for rows.Next() {
		var page models.PlanPage
		var mimeType sql.NullString
		if err := rows.Scan(&page.PageNumber, &page.ImageURL, &mimeType); err != nil {
			return nil, false, fmt.Errorf("%w: page scan: %v", ErrQueryFailed, err)
		}
		page.MimeType = mimeType.String
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: page rows: %v", ErrQueryFailed, err)
	}

	if h.pages != nil && len(pages) > 0 {
		if err := h.pages.Set(ctx, takeoffID, pages); err != nil {
			h.logger.Warn("page cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return pages, false, nil
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
