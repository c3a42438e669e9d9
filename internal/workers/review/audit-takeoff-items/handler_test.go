// internal/workers/review/audit-takeoff-items/handler_test.go
package audittakeoffitems

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takeoff-workers/internal/common/genai"
	"takeoff-workers/internal/common/jsonrepair"
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
		Model:       "gpt-4o-mini",
		Timeout:     5 * time.Second,
		MaxTokens:   2048,
		Temperature: 0.2,
	}
}

func testItems() []models.TakeoffItem {
	return []models.TakeoffItem{
		{Name: "Concrete Slab", Quantity: 120, Unit: "SF", Category: "concrete", CostCode: "03 30 00"},
		{Name: "Rebar #4", Quantity: 800, Unit: "LF", Category: "concrete"},
		{Name: "Exterior Wall Framing", Quantity: 240, Unit: "LF", Category: "framing", CostCode: "06 11 00"},
	}
}

func TestExecute_Success(t *testing.T) {
	provider := &stubProvider{response: `{
		"reviewed_items": [
			{"item_index": 1, "item_name": "Concrete Slab", "status": "ok", "quantity_calculable": true},
			{"item_index": 2, "item_name": "Rebar #4", "status": "needs_info",
			 "missing_information": [{"category": "measurement", "missing_data": "spacing", "impact": "high"}]},
			{"item_index": 3, "item_name": "Exterior Wall Framing", "status": "ok"}
		],
		"missing_items": [
			{"name": "Vapor Barrier", "category": "concrete", "reason": "slab on grade shown", "impact": "medium"}
		],
		"summary": {"total_items": 3, "items_with_issues": 1}
	}`}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	input := &Input{TakeoffID: "t-1", Items: testItems(), CostCodeStandard: "CSI MasterFormat"}

	result, err := handler.Execute(context.Background(), input)

	require.NoError(t, err)
	require.Len(t, result.ReviewedItems, 3)
	assert.Equal(t, "needs_info", result.ReviewedItems[1].Status)
	require.Len(t, result.MissingItems, 1)
	assert.Equal(t, "Vapor Barrier", result.MissingItems[0].Name)

	require.NotNil(t, provider.lastReq)
	assert.True(t, provider.lastReq.ForceJSON)
	assert.Contains(t, provider.lastReq.UserPrompt, "1. Concrete Slab")
	assert.Contains(t, provider.lastReq.UserPrompt, "CSI MasterFormat")
	assert.Empty(t, provider.lastReq.Images)
}

func TestExecute_ClampsReviewedItemsToInputCount(t *testing.T) {
	provider := &stubProvider{response: `{
		"reviewed_items": [
			{"item_index": 1}, {"item_index": 2}, {"item_index": 3},
			{"item_index": 4}, {"item_index": 5}
		],
		"missing_items": [],
		"summary": {}
	}`}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{Items: testItems()})

	require.NoError(t, err)
	assert.Len(t, result.ReviewedItems, 3)
}

func TestExecute_RecoversTruncatedResponse(t *testing.T) {
	// Token budget exhausted mid-array: the incomplete trailing element is
	// dropped, the complete ones survive.
	provider := &stubProvider{response: `{"reviewed_items": [` +
		`{"item_index": 1, "status": "ok"},` +
		`{"item_index": 2, "status": "needs_info"},` +
		`{"item_index": 3, "status": "incomp`}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{Items: testItems()})

	require.NoError(t, err)
	require.Len(t, result.ReviewedItems, 2)
	assert.Equal(t, "needs_info", result.ReviewedItems[1].Status)
}

func TestExecute_ProviderFailureDegrades(t *testing.T) {
	provider := &stubProvider{err: genai.ErrGenerateTimeout}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{TakeoffID: "t-2", Items: testItems()})

	assert.ErrorIs(t, err, genai.ErrGenerateTimeout)
	require.NotNil(t, result)
	assert.NotNil(t, result.ReviewedItems)
	assert.Empty(t, result.ReviewedItems)
	assert.NotNil(t, result.MissingItems)
	assert.Empty(t, result.MissingItems)
	assert.Contains(t, result.Summary.Notes, "audit pass failed")
}

func TestExecute_UnparseableResponseDegrades(t *testing.T) {
	provider := &stubProvider{response: "I could not find any issues with this takeoff."}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{Items: testItems()})

	assert.True(t, errors.Is(err, jsonrepair.ErrNotRecoverable))
	assert.Empty(t, result.ReviewedItems)
	assert.Contains(t, result.Summary.Notes, "unparseable")
}

func TestExecute_MissingKeysDegrades(t *testing.T) {
	provider := &stubProvider{response: `{"summary": {"notes": "looks fine"}}`}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{Items: testItems()})

	assert.ErrorIs(t, err, ErrPartialData)
	assert.Empty(t, result.ReviewedItems)
	assert.Contains(t, result.Summary.Notes, "missing expected keys")
}
