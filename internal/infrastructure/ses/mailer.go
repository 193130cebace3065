package ses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rolegate/rolegate/internal/config"
)

// Mailer delivers verification codes by email.
type Mailer interface {
	SendCode(ctx context.Context, email, code string) error
}

// ErrSuppressed marks an address on the account suppression list
// (previously bounced or complained). Sending to it is refused.
var ErrSuppressed = errors.New("address is on the suppression list")

type mailer struct {
	client *sesv2.Client
	from   string
}

func NewMailer(cfg *config.Config) (Mailer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &mailer{client: sesv2.NewFromConfig(awsCfg), from: cfg.SESFromAddress}, nil
}

func (m *mailer) SendCode(ctx context.Context, email, code string) error {
	if suppressed := m.isSuppressed(ctx, email); suppressed {
		return fmt.Errorf("refusing to send to %s: %w", email, ErrSuppressed)
	}

	subject := "Your verification code"
	body := fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.\r\n\r\nIf you did not request this, you can ignore this email.", code)

	_, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination: &sestypes.Destination{
			ToAddresses: []string{email},
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subject)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(body)},
				},
			},
		},
	})
	return err
}

// isSuppressed consults the account-level suppression list. Errors other
// than not-found fail open: a broken suppression lookup must not lock out
// legitimate senders, the send itself will surface real delivery problems.
func (m *mailer) isSuppressed(ctx context.Context, email string) bool {
	_, err := m.client.GetSuppressedDestination(ctx, &sesv2.GetSuppressedDestinationInput{
		EmailAddress: aws.String(email),
	})
	if err == nil {
		return true
	}
	var notFound *sestypes.NotFoundException
	if errors.As(err, &notFound) {
		return false
	}
	slog.Warn("suppression list check failed, sending anyway", "err", err)
	return false
}
