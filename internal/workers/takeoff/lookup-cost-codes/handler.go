// internal/workers/takeoff/lookup-cost-codes/handler.go
package lookupcostcodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"takeoff-workers/internal/common/cache"
	"takeoff-workers/internal/common/logger"
	"takeoff-workers/internal/models"
)

const (
	TaskType = "lookup-cost-codes"
)

var (
	ErrCatalogSearchFailed = errors.New("CATALOG_SEARCH_FAILED")
	ErrCatalogTimeout      = errors.New("CATALOG_TIMEOUT")
	ErrMissingQuery        = errors.New("CATALOG_QUERY_MISSING")
)

type Handler struct {
	config *Config
	client *elasticsearch.Client
	cache  *cache.FragmentCache
	logger logger.Logger
}

// NewHandler wires the cost-code catalog lookup. cache may be nil; lookups
// then always hit the index.
func NewHandler(config *Config, client *elasticsearch.Client, fragments *cache.FragmentCache, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		client: client,
		cache:  fragments,
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
		errorCode := "CATALOG_SEARCH_FAILED"
		if errors.Is(err, ErrCatalogTimeout) {
			errorCode = "CATALOG_TIMEOUT"
		} else if errors.Is(err, ErrMissingQuery) {
			errorCode = "CATALOG_QUERY_MISSING"
		}
		h.failJob(client, job, errorCode, err.Error())
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, ErrMissingQuery
	}

	if h.cache != nil {
		if fragment, err := h.cache.Get(ctx, input.Standard, input.Query); err != nil {
			h.logger.Warn("fragment cache unavailable", map[string]interface{}{"error": err.Error()})
		} else if fragment != "" {
			return &Output{
				Entries:           []models.CostCodeEntry{},
				ReferenceFragment: fragment,
				FromCache:         true,
			}, nil
		}
	}

	size := input.Size
	if size <= 0 || size > h.config.MaxResults {
		size = h.config.MaxResults
	}

	queryBody := buildCatalogQuery(input)
	body, _ := json.Marshal(queryBody)

	req := esapi.SearchRequest{
		Index: []string{h.config.Index},
		Body:  strings.NewReader(string(body)),
		Size:  &size,
	}

	res, err := req.Do(ctx, h.client)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrCatalogTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrCatalogSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrCatalogSearchFailed, res.Status())
	}

	var envelope struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.CostCodeEntry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrCatalogSearchFailed, err)
	}

	entries := make([]models.CostCodeEntry, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		entries = append(entries, hit.Source)
	}

	fragment := renderFragment(input.Standard, entries)

	if h.cache != nil && fragment != "" {
		if err := h.cache.Set(ctx, input.Standard, input.Query, fragment); err != nil {
			h.logger.Warn("fragment cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}

	h.logger.Info("catalog lookup complete", map[string]interface{}{
		"standard":  input.Standard,
		"query":     input.Query,
		"totalHits": envelope.Hits.Total.Value,
	})

	return &Output{
		Entries:           entries,
		ReferenceFragment: fragment,
		TotalHits:         envelope.Hits.Total.Value,
	}, nil
}

func buildCatalogQuery(input *Input) map[string]interface{} {
	mustClauses := []interface{}{
		map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  input.Query,
				"fields": []string{"code^3", "title^2", "description"},
				"type":   "best_fields",
			},
		},
	}

	filterClauses := []interface{}{}
	if input.Division != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"division": input.Division},
		})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   mustClauses,
				"filter": filterClauses,
			},
		},
	}
}

// renderFragment formats catalog entries as the textual reference the
// review prompts embed.
func renderFragment(standard string, entries []models.CostCodeEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	if standard != "" {
		fmt.Fprintf(&b, "Standard: %s\n", standard)
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "%s — %s", e.Code, e.Title)
		if e.Division != "" {
			fmt.Fprintf(&b, " (division %s)", e.Division)
		}
		b.WriteString("\n")
	}
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
