package mailer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/tensormd/repops/internal/config"
)

// SESTransport submits mail through AWS SESv2 as an alternative to direct
// SMTP. Error types map onto the same typed-outcome taxonomy so the
// pipeline cannot tell the transports apart.
type SESTransport struct {
	client    *sesv2.Client
	fromEmail string
	fromName  string
}

// NewSESTransport creates an SES transport using the default AWS credential
// chain for the configured region.
func NewSESTransport(ctx context.Context, cfg config.SESConfig) (*SESTransport, error) {
	if cfg.FromEmail == "" {
		return nil, errors.New("ses: from_email not configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}
	return &SESTransport{
		client:    sesv2.NewFromConfig(awsCfg),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}, nil
}

// Send submits one message through SES.
func (t *SESTransport) Send(ctx context.Context, msg Message) (Outcome, error) {
	from := t.fromEmail
	if t.fromName != "" {
		from = fmt.Sprintf("%s <%s>", t.fromName, t.fromEmail)
	}

	_, err := t.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &sestypes.Destination{ToAddresses: []string{msg.To}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(msg.Subject)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(msg.Body)},
				},
			},
		},
	})
	if err == nil {
		return Outcome{Status: SendOK}, nil
	}

	log.Printf("[mailer] SES send to %s failed: %v", msg.To, err)
	return classifySESError(err), nil
}

func classifySESError(err error) Outcome {
	var (
		notFound    *sestypes.NotFoundException
		accountSusp *sestypes.AccountSuspendedException
		sendPaused  *sestypes.SendingPausedException
		tooMany     *sestypes.TooManyRequestsException
		limit       *sestypes.LimitExceededException
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &accountSusp):
		return Outcome{Status: SendHardBounce, Reason: truncateReason(err.Error())}
	case errors.As(err, &sendPaused), errors.As(err, &tooMany), errors.As(err, &limit):
		return Outcome{Status: SendSoftBounce, Reason: truncateReason(err.Error())}
	case strings.Contains(err.Error(), "MessageRejected"):
		return Outcome{Status: SendHardBounce, Reason: truncateReason(err.Error())}
	default:
		return Outcome{Status: SendTransientError, Reason: truncateReason(err.Error())}
	}
}
