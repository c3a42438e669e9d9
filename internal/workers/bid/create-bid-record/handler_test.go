// internal/workers/bid/create-bid-record/handler_test.go
package createbidrecord

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takeoff-workers/internal/common/logger"
	"takeoff-workers/internal/models"
)

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func testInput() *Input {
	return &Input{
		TakeoffID:   "t-1",
		ProjectName: "Maple St Residence",
		CustomerID:  "c-42",
		ReviewReport: models.ReviewReport{
			ReviewID: "r-1",
			MergedMissingItems: []models.MissingItem{
				{Name: "Egress Window", Category: "exterior", Source: models.SourceReviewer2},
			},
		},
	}
}

func TestExecute_CreatesBid(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO bids").
		WithArgs(sqlmock.AnyArg(), "t-1", "c-42", "Maple St Residence",
			sqlmock.AnyArg(), "draft", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	handler := NewHandler(createTestConfig(), db, logger.NewNoOpLogger())
	output, err := handler.Execute(context.Background(), testInput())

	require.NoError(t, err)
	assert.Equal(t, "draft", output.BidStatus)
	_, err = uuid.Parse(output.BidID)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_DuplicateBidRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	handler := NewHandler(createTestConfig(), db, logger.NewNoOpLogger())
	_, err = handler.Execute(context.Background(), testInput())

	assert.ErrorIs(t, err, ErrDuplicateBid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_InsertFailureSurfaces(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO bids").
		WillReturnError(assert.AnError)

	handler := NewHandler(createTestConfig(), db, logger.NewNoOpLogger())
	_, err = handler.Execute(context.Background(), testInput())

	assert.ErrorIs(t, err, ErrBidInsertFailed)
}
