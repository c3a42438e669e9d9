// internal/workers/review/validate-quantities/handler_test.go
package validatequantities

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
		Model:       "gpt-4o-mini",
		Timeout:     5 * time.Second,
		MaxTokens:   2048,
		Temperature: 0.1,
	}
}

func testItems() []models.TakeoffItem {
	return []models.TakeoffItem{
		{Name: "Concrete Slab", Quantity: 120, Unit: "SF", Category: "concrete", CostCode: "03 30 00"},
		{Name: "Interior Partition", Quantity: 64, Unit: "LF", Category: "framing"},
	}
}

func TestExecute_Success(t *testing.T) {
	provider := &stubProvider{response: `{
		"validated_items": [
			{"item_index": 1, "item_name": "Concrete Slab", "quantity_valid": true,
			 "cost_code_valid": true, "calculation_possible": true},
			{"item_index": 2, "item_name": "Interior Partition", "quantity_valid": false,
			 "calculation_possible": false, "missing_for_calculation": ["wall height"],
			 "discrepancies": ["length does not match floor plan"],
			 "recommendation": "re-measure partition run"}
		],
		"impossible_calculations": [
			{"item_index": 2, "item_name": "Interior Partition",
			 "missing_data": ["wall height"], "reason": "no ceiling height on plans"}
		],
		"summary": {"total_validated": 2}
	}`}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	audit := &models.AuditResult{
		ReviewedItems: []models.ReviewedItem{
			{ItemIndex: 2, ItemName: "Interior Partition", MissingInformation: []models.MissingInfoDetail{
				{Category: "measurement", MissingData: "wall height", Impact: "high"},
			}},
		},
	}
	input := &Input{TakeoffID: "t-1", Items: testItems(), AuditFindings: audit}

	result, err := handler.Execute(context.Background(), input)

	require.NoError(t, err)
	require.Len(t, result.ValidatedItems, 2)
	require.NotNil(t, result.ValidatedItems[0].QuantityValid)
	assert.True(t, *result.ValidatedItems[0].QuantityValid)
	require.Len(t, result.ImpossibleCalculations, 1)
	assert.Equal(t, []string{"wall height"}, result.ImpossibleCalculations[0].MissingData)

	// The prior audit findings feed the prompt.
	require.NotNil(t, provider.lastReq)
	assert.Contains(t, provider.lastReq.UserPrompt, "prior completeness audit")
	assert.Contains(t, provider.lastReq.UserPrompt, "missing wall height")
}

func TestExecute_WithoutAuditFindings(t *testing.T) {
	provider := &stubProvider{response: `{"validated_items": [], "impossible_calculations": [], "summary": {}}`}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{Items: testItems()})

	require.NoError(t, err)
	assert.Empty(t, result.ValidatedItems)
	assert.NotContains(t, provider.lastReq.UserPrompt, "prior completeness audit")
}

func TestExecute_ClampsValidatedItemsToInputCount(t *testing.T) {
	provider := &stubProvider{response: `{
		"validated_items": [{"item_index": 1}, {"item_index": 2}, {"item_index": 3}],
		"impossible_calculations": [],
		"summary": {}
	}`}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{Items: testItems()})

	require.NoError(t, err)
	assert.Len(t, result.ValidatedItems, 2)
}

func TestExecute_ProviderFailureDegrades(t *testing.T) {
	provider := &stubProvider{err: genai.ErrGenerateTimeout}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{Items: testItems()})

	assert.ErrorIs(t, err, genai.ErrGenerateTimeout)
	assert.NotNil(t, result.ValidatedItems)
	assert.Empty(t, result.ValidatedItems)
	assert.NotNil(t, result.ImpossibleCalculations)
	assert.Contains(t, result.Summary.Notes, "validation pass failed")
}

func TestExecute_RecoversTruncatedResponse(t *testing.T) {
	provider := &stubProvider{response: `{"validated_items": [` +
		`{"item_index": 1, "quantity_valid": true},` +
		`{"item_index": 2, "quantity_va`}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{Items: testItems()})

	require.NoError(t, err)
	require.Len(t, result.ValidatedItems, 1)
	assert.Equal(t, 1, result.ValidatedItems[0].ItemIndex)
}

func TestExecute_MissingKeysDegrades(t *testing.T) {
	provider := &stubProvider{response: `{"summary": {"notes": "all good"}}`}

	handler := NewHandler(createTestConfig(), provider, logger.NewNoOpLogger())
	result, err := handler.Execute(context.Background(), &Input{Items: testItems()})

	assert.ErrorIs(t, err, ErrPartialData)
	assert.Empty(t, result.ValidatedItems)
	assert.Contains(t, result.Summary.Notes, "missing expected keys")
}
