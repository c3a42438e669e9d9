// internal/workers/review/rescan-plan-pages/handler_test.go
package rescanplanpages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takeoff-workers/internal/common/genai"
	"takeoff-workers/internal/common/logger"
	"takeoff-workers/internal/models"
)

type stubProvider struct {
	response string
	err      error
	lastReq  *genai.Request
}

func (s *stubProvider) Generate(ctx context.Context, req *genai.Request) (string, error) {
	s.lastReq = req
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func createTestConfig() *Config {
	return &Config{
		Model:       "gpt-4o",
		Timeout:     5 * time.Second,
		MaxTokens:   2048,
		Temperature: 0.2,
		MaxPages:    10,
	}
}

func testPages(n int) []models.PlanPage {
	pages := make([]models.PlanPage, 0, n)
	for i := 1; i <= n; i++ {
		pages = append(pages, models.PlanPage{
			PageNumber: i,
			ImageURL:   "https://plans.example.com/t-1/p" + string(rune('0'+i)) + ".png",
			MimeType:   "image/png",
		})
	}
	return pages
}

func TestExecute_Success(t *testing.T) {
	provider := &stubProvider{response: `{
		"missing_items": [
			{"name": "Egress Window", "category": "exterior", "reason": "shown on A-201 not in takeoff",
			 "cost_code": "08 50 00", "impact": "high", "page_number": 2, "region": "north elevation",
			 "confidence": 0.85,
			 "missing_information": [{"category": "specification", "missing_data": "window schedule mark", "impact": "medium"}]}
		],
		"items_with_missing_data": [
			{"item_index": 1, "item_name": "Concrete Slab",
			 "missing_information": [{"category": "measurement", "missing_data": "slab thickness", "impact": "high"}]}
		],
		"summary": {"pages_scanned": 3}
	}`}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	input := &Input{
		TakeoffID: "t-1",
		Pages:     testPages(3),
		ExistingItems: []models.TakeoffItem{
			{Name: "Concrete Slab", Quantity: 120, Unit: "SF", Category: "concrete"},
		},
		CostCodeStandard: "CSI MasterFormat",
	}

	result, err := handler.Execute(context.Background(), input)

	require.NoError(t, err)
	require.Len(t, result.MissingItems, 1)
	assert.Equal(t, "Egress Window", result.MissingItems[0].Name)
	assert.Equal(t, 2, result.MissingItems[0].PageNumber)
	require.Len(t, result.ItemsWithMissingData, 1)
	assert.Equal(t, 3, result.Summary.PagesScanned)

	require.NotNil(t, provider.lastReq)
	require.Len(t, provider.lastReq.Images, 3)
	assert.Equal(t, "image/png", provider.lastReq.Images[0].MimeType)
	assert.Contains(t, provider.lastReq.UserPrompt, "do not flag these again")
	assert.Contains(t, provider.lastReq.UserPrompt, "Concrete Slab")
}

func TestExecute_CapsPagesAtConfiguredMax(t *testing.T) {
	provider := &stubProvider{response: `{"missing_items": [], "items_with_missing_data": [], "summary": {}}`}

	config := createTestConfig()
	config.MaxPages = 2
	handler := NewHandler(config, provider, logger.NewNoOpLogger())

	result, err := handler.Execute(context.Background(), &Input{Pages: testPages(5)})

	require.NoError(t, err)
	assert.Len(t, provider.lastReq.Images, 2)
	assert.Equal(t, 2, result.Summary.PagesScanned)
}

func TestExecute_NoPagesDegrades(t *testing.T) {
	provider := &stubProvider{response: "unused"}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{TakeoffID: "t-2"})

	assert.ErrorIs(t, err, ErrNoPages)
	assert.NotNil(t, result.MissingItems)
	assert.Empty(t, result.MissingItems)
	assert.Contains(t, result.Summary.Notes, "no plan pages")
	assert.Nil(t, provider.lastReq)
}

func TestExecute_ProviderFailureDegrades(t *testing.T) {
	provider := &stubProvider{err: genai.ErrGenerateFailed}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{Pages: testPages(2)})

	assert.ErrorIs(t, err, genai.ErrGenerateFailed)
	assert.Empty(t, result.MissingItems)
	assert.Empty(t, result.ItemsWithMissingData)
	assert.Contains(t, result.Summary.Notes, "rescan pass failed")
}

func TestExecute_RecoversTruncatedResponse(t *testing.T) {
	provider := &stubProvider{response: `{"missing_items": [` +
		`{"name": "Egress Window", "category": "exterior", "page_number": 2},` +
		`{"name": "Gutter Run", "cate`}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{Pages: testPages(2)})

	require.NoError(t, err)
	require.Len(t, result.MissingItems, 1)
	assert.Equal(t, "Egress Window", result.MissingItems[0].Name)
}

func TestExecute_MissingKeysDegrades(t *testing.T) {
	provider := &stubProvider{response: `{"summary": {"notes": "nothing found"}}`}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{Pages: testPages(1)})

	assert.ErrorIs(t, err, ErrPartialData)
	assert.Empty(t, result.MissingItems)
	assert.Contains(t, result.Summary.Notes, "missing expected keys")
}
