// internal/workers/bid/notify-review-complete/handler_test.go
package notifyreviewcomplete

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takeoff-workers/internal/common/logger"
	"takeoff-workers/internal/models"
)

type stubEmail struct {
	input *ses.SendEmailInput
	err   error
}

func (s *stubEmail) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-123")}, nil
}

type stubPublisher struct {
	input *sns.PublishInput
	err   error
}

func (s *stubPublisher) Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &sns.PublishOutput{}, nil
}

func createTestConfig() *Config {
	return &Config{
		FromAddress: "reviews@takeoff.example.com",
		TopicARN:    "arn:aws:sns:us-east-1:000000000000:takeoff-reviews",
		Timeout:     5 * time.Second,
	}
}

func testInput() *Input {
	return &Input{
		TakeoffID:   "t-1",
		ProjectName: "Maple St Residence",
		Recipient:   "estimator@example.com",
		ReviewReport: models.ReviewReport{
			ReviewID: "r-1",
			MergedMissingItems: []models.MissingItem{
				{Name: "Egress Window", Category: "exterior", PageNumber: 2, Source: models.SourceReviewer2},
			},
			AllMissingInformation: []models.MissingInformationEntry{
				{ItemName: "Interior Partition", MissingData: "wall height", Impact: models.ImpactHigh},
			},
		},
	}
}

func TestExecute_SendsEmailAndPublishes(t *testing.T) {
	email := &stubEmail{}
	publisher := &stubPublisher{}

	handler := NewHandler(createTestConfig(), email, publisher, logger.NewNoOpLogger())
	output, err := handler.Execute(context.Background(), testInput())

	require.NoError(t, err)
	assert.True(t, output.EmailSent)
	assert.True(t, output.TopicPublished)
	assert.Equal(t, "msg-123", output.MessageID)

	require.NotNil(t, email.input)
	assert.Equal(t, "reviews@takeoff.example.com", *email.input.Source)
	assert.Equal(t, []string{"estimator@example.com"}, email.input.Destination.ToAddresses)
	assert.Contains(t, *email.input.Message.Subject.Data, "Maple St Residence")

	body := *email.input.Message.Body.Text.Data
	assert.Contains(t, body, "Egress Window (exterior, page 2) [reviewer2]")
	assert.Contains(t, body, "Interior Partition: wall height (high impact)")

	require.NotNil(t, publisher.input)
	assert.Contains(t, *publisher.input.Message, `"reviewId":"r-1"`)
}

func TestExecute_SNSFailureIsBestEffort(t *testing.T) {
	email := &stubEmail{}
	publisher := &stubPublisher{err: assert.AnError}

	handler := NewHandler(createTestConfig(), email, publisher, logger.NewNoOpLogger())
	output, err := handler.Execute(context.Background(), testInput())

	require.NoError(t, err)
	assert.True(t, output.EmailSent)
	assert.False(t, output.TopicPublished)
}

func TestExecute_NoPublisherConfigured(t *testing.T) {
	email := &stubEmail{}

	handler := NewHandler(createTestConfig(), email, nil, logger.NewNoOpLogger())
	output, err := handler.Execute(context.Background(), testInput())

	require.NoError(t, err)
	assert.False(t, output.TopicPublished)
}

func TestExecute_EmailFailureFails(t *testing.T) {
	email := &stubEmail{err: assert.AnError}

	handler := NewHandler(createTestConfig(), email, &stubPublisher{}, logger.NewNoOpLogger())
	_, err := handler.Execute(context.Background(), testInput())

	assert.ErrorIs(t, err, ErrNotificationSendFailed)
}

func TestExecute_MissingRecipientRejected(t *testing.T) {
	handler := NewHandler(createTestConfig(), &stubEmail{}, nil, logger.NewNoOpLogger())

	input := testInput()
	input.Recipient = " "
	_, err := handler.Execute(context.Background(), input)

	assert.ErrorIs(t, err, ErrMissingRecipient)
}

func TestBuildEmailBody_ReportsDegradedPasses(t *testing.T) {
	input := testInput()
	input.ReviewReport.Rescan.Summary.Notes = "rescan pass failed: PROVIDER_TIMEOUT"

	body := buildEmailBody(input)

	assert.Contains(t, body, "Passes with reduced coverage")
	assert.Contains(t, body, "rescan pass failed: PROVIDER_TIMEOUT")
}
