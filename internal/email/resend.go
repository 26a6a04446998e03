package email

import (
	"fmt"

	"github.com/resend/resend-go/v3"

	"github.com/kuitang/hostdesk/internal/logutil"
	"github.com/kuitang/hostdesk/internal/obs"
)

// resendSender is the part of the Resend client this package calls.
type resendSender interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendEmailService implements EmailService using the Resend API.
type ResendEmailService struct {
	emails      resendSender
	fromAddress string
}

// NewResendEmailService creates a new Resend email service.
// fromAddress is the sender email address (must be verified in Resend).
func NewResendEmailService(apiKey, fromAddress string) *ResendEmailService {
	return &ResendEmailService{
		emails:      resend.NewClient(apiKey).Emails,
		fromAddress: fromAddress,
	}
}

// Send renders the template and delivers it via Resend. Each message is
// tagged with its template name so bounces can be grouped per flow.
func (r *ResendEmailService) Send(to, templateName string, data any) error {
	msg, err := Render(templateName, data)
	if err != nil {
		return err
	}

	resp, err := r.emails.Send(&resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      []string{to},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		Tags:    []resend.Tag{{Name: "template", Value: templateName}},
	})
	if err != nil {
		return fmt.Errorf("resend: send %s to %s: %w", templateName, logutil.MaskEmail(to), err)
	}

	attrs := []any{"to", logutil.MaskEmail(to), "template", templateName}
	if resp != nil {
		attrs = append(attrs, "resend_id", resp.Id)
	}
	obs.Pkg("email").Info("email_sent", attrs...)
	return nil
}
