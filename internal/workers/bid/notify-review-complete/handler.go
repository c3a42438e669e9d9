// internal/workers/bid/notify-review-complete/handler.go
package notifyreviewcomplete

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"takeoff-workers/internal/common/logger"
	"takeoff-workers/internal/models"
)

const (
	TaskType = "notify-review-complete"
)

var (
	ErrNotificationSendFailed = errors.New("NOTIFICATION_SEND_FAILED")
	ErrMissingRecipient       = errors.New("NOTIFICATION_RECIPIENT_MISSING")
)

type Handler struct {
	config    *Config
	email     EmailSender
	publisher TopicPublisher
	logger    logger.Logger
}

// NewHandler wires the review-complete notification. publisher may be nil;
// the SNS fan-out is then skipped.
func NewHandler(config *Config, email EmailSender, publisher TopicPublisher, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		email:     email,
		publisher: publisher,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
		errorCode := "NOTIFICATION_SEND_FAILED"
		if errors.Is(err, ErrMissingRecipient) {
			errorCode = "NOTIFICATION_RECIPIENT_MISSING"
		}
		h.failJob(client, job, errorCode, err.Error())
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.Recipient) == "" {
		return nil, ErrMissingRecipient
	}

	subject := fmt.Sprintf("Takeoff review complete: %s", input.ProjectName)
	body := buildEmailBody(input)

	resp, err := h.email.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(h.config.FromAddress),
		Destination: &sestypes.Destination{
			ToAddresses: []string{input.Recipient},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ses send: %v", ErrNotificationSendFailed, err)
	}

	output := &Output{EmailSent: true}
	if resp.MessageId != nil {
		output.MessageID = *resp.MessageId
	}

	// SNS fan-out is best effort; a failed publish does not fail the job.
	if h.publisher != nil && h.config.TopicARN != "" {
		event, _ := json.Marshal(map[string]interface{}{
			"takeoffId":          input.TakeoffID,
			"reviewId":           input.ReviewReport.ReviewID,
			"mergedMissingItems": len(input.ReviewReport.MergedMissingItems),
			"missingInformation": len(input.ReviewReport.AllMissingInformation),
		})
		_, err := h.publisher.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(h.config.TopicARN),
			Subject:  aws.String("takeoff-review-complete"),
			Message:  aws.String(string(event)),
		})
		if err != nil {
			h.logger.Warn("sns publish failed", map[string]interface{}{
				"takeoffId": input.TakeoffID,
				"error":     err.Error(),
			})
		} else {
			output.TopicPublished = true
		}
	}

	h.logger.Info("review notification sent", map[string]interface{}{
		"takeoffId": input.TakeoffID,
		"recipient": input.Recipient,
		"messageId": output.MessageID,
	})
	return output, nil
}

func buildEmailBody(input *Input) string {
	report := &input.ReviewReport

	var b strings.Builder
	fmt.Fprintf(&b, "The automated review of the takeoff for %q has finished.\n\n", input.ProjectName)
	fmt.Fprintf(&b, "Items audited: %d\n", len(report.Audit.ReviewedItems))
	fmt.Fprintf(&b, "Candidate missing items: %d\n", len(report.MergedMissingItems))
	fmt.Fprintf(&b, "Open information requests: %d\n", len(report.AllMissingInformation))

	if len(report.MergedMissingItems) > 0 {
		b.WriteString("\nMissing items:\n")
		for _, item := range report.MergedMissingItems {
			fmt.Fprintf(&b, "- %s (%s", item.Name, item.Category)
			if item.PageNumber > 0 {
				fmt.Fprintf(&b, ", page %d", item.PageNumber)
			}
			fmt.Fprintf(&b, ") [%s]\n", item.Source)
		}
	}

	if len(report.AllMissingInformation) > 0 {
		b.WriteString("\nInformation needed:\n")
		for _, entry := range report.AllMissingInformation {
			fmt.Fprintf(&b, "- %s: %s (%s impact)\n", entry.ItemName, entry.MissingData, entry.Impact)
		}
	}

	if notes := degradedNotes(report); len(notes) > 0 {
		b.WriteString("\nPasses with reduced coverage:\n")
		for _, note := range notes {
			fmt.Fprintf(&b, "- %s\n", note)
		}
	}

	return b.String()
}

func degradedNotes(report *models.ReviewReport) []string {
	notes := []string{}
	if n := report.Audit.Summary.Notes; strings.Contains(n, "failed") || strings.Contains(n, "unparseable") {
		notes = append(notes, n)
	}
	if n := report.Rescan.Summary.Notes; strings.Contains(n, "failed") || strings.Contains(n, "unparseable") || strings.Contains(n, "skipped") {
		notes = append(notes, n)
	}
	if n := report.Validation.Summary.Notes; strings.Contains(n, "failed") || strings.Contains(n, "unparseable") {
		notes = append(notes, n)
	}
	return notes
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
