// internal/workers/bid/notify-review-complete/models.go
package notifyreviewcomplete

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"takeoff-workers/internal/models"
)

type Input struct {
	TakeoffID    string              `json:"takeoffId"`
	ProjectName  string              `json:"projectName"`
	Recipient    string              `json:"recipient"`
	ReviewReport models.ReviewReport `json:"reviewReport"`
}

type Output struct {
	EmailSent      bool   `json:"emailSent"`
	TopicPublished bool   `json:"topicPublished"`
	MessageID      string `json:"messageId,omitempty"`
}

// EmailSender and TopicPublisher are the slices of the AWS clients this
// worker needs; the common aws wrappers satisfy them.

type EmailSender interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

type TopicPublisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}
