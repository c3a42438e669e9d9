// internal/workers/takeoff/fetch-takeoff-items/handler_test.go
package fetchtakeoffitems

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takeoff-workers/internal/common/cache"
	"takeoff-workers/internal/common/logger"
	"takeoff-workers/internal/models"
)

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func expectTakeoffRow(mock sqlmock.Sqlmock, takeoffID string) {
	mock.ExpectQuery("SELECT project_context, cost_code_standard").
		WithArgs(takeoffID).
		WillReturnRows(sqlmock.NewRows([]string{"project_context", "cost_code_standard"}).
			AddRow("2-story residence", "CSI MasterFormat"))
}

func expectItemRows(mock sqlmock.Sqlmock, takeoffID string) {
	mock.ExpectQuery("SELECT name, description, quantity, unit, category, cost_code, location, confidence").
		WithArgs(takeoffID).
		WillReturnRows(sqlmock.NewRows([]string{
			"name", "description", "quantity", "unit", "category", "cost_code", "location", "confidence",
		}).
			AddRow("Concrete Slab", "4in slab on grade", 120.0, "SF", "concrete", "03 30 00", "garage", 0.92).
			AddRow("Rebar #4", nil, 800.0, "LF", "concrete", nil, nil, nil))
}

func expectPageRows(mock sqlmock.Sqlmock, takeoffID string) {
	mock.ExpectQuery("SELECT page_number, image_url, mime_type").
		WithArgs(takeoffID).
		WillReturnRows(sqlmock.NewRows([]string{"page_number", "image_url", "mime_type"}).
			AddRow(1, "https://plans.example.com/t-1/p1.png", "image/png").
			AddRow(2, "https://plans.example.com/t-1/p2.png", "image/png"))
}

func TestExecute_LoadsItemsAndPages(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectTakeoffRow(mock, "t-1")
	expectItemRows(mock, "t-1")
	expectPageRows(mock, "t-1")

	handler := NewHandler(createTestConfig(), db, nil, logger.NewNoOpLogger())
	output, err := handler.Execute(context.Background(), &Input{TakeoffID: "t-1"})

	require.NoError(t, err)
	assert.Equal(t, "2-story residence", output.ProjectContext)
	assert.Equal(t, "CSI MasterFormat", output.CostCodeStandard)

	require.Len(t, output.Items, 2)
	assert.Equal(t, "Concrete Slab", output.Items[0].Name)
	assert.Equal(t, "03 30 00", output.Items[0].CostCode)
	require.NotNil(t, output.Items[0].Confidence)
	assert.Equal(t, 0.92, *output.Items[0].Confidence)
	assert.Empty(t, output.Items[1].CostCode)
	assert.Nil(t, output.Items[1].Confidence)

	require.Len(t, output.Pages, 2)
	assert.Equal(t, 1, output.Pages[0].PageNumber)
	assert.False(t, output.PagesFromCache)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_UnknownTakeoff(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT project_context, cost_code_standard").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"project_context", "cost_code_standard"}))

	handler := NewHandler(createTestConfig(), db, nil, logger.NewNoOpLogger())
	_, err = handler.Execute(context.Background(), &Input{TakeoffID: "missing"})

	assert.ErrorIs(t, err, ErrTakeoffNotFound)
}

func TestExecute_PageCacheHitSkipsPageQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mr := miniredis.RunT(t)
	pages := cache.NewPageImageCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)

	cached := []models.PlanPage{{PageNumber: 1, ImageURL: "https://plans.example.com/t-2/p1.png", MimeType: "image/png"}}
	require.NoError(t, pages.Set(context.Background(), "t-2", cached))

	expectTakeoffRow(mock, "t-2")
	expectItemRows(mock, "t-2")
	// No page query expected: the cache satisfies it.

	handler := NewHandler(createTestConfig(), db, pages, logger.NewNoOpLogger())
	output, err := handler.Execute(context.Background(), &Input{TakeoffID: "t-2"})

	require.NoError(t, err)
	assert.True(t, output.PagesFromCache)
	assert.Equal(t, cached, output.Pages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_PopulatesPageCacheOnMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mr := miniredis.RunT(t)
	pages := cache.NewPageImageCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)

	expectTakeoffRow(mock, "t-3")
	expectItemRows(mock, "t-3")
	expectPageRows(mock, "t-3")

	handler := NewHandler(createTestConfig(), db, pages, logger.NewNoOpLogger())
	output, err := handler.Execute(context.Background(), &Input{TakeoffID: "t-3"})

	require.NoError(t, err)
	assert.False(t, output.PagesFromCache)

	cached, err := pages.Get(context.Background(), "t-3")
	require.NoError(t, err)
	assert.Equal(t, output.Pages, cached)
}
