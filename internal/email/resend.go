package email

import (
	"context"
	"fmt"
	"html"

	"github.com/resend/resend-go/v2"
)

// ResendSender sends review requests via the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender creates a sender with the given API key and from address
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// Send delivers a single review-request email
func (s *ResendSender) Send(ctx context.Context, req SendRequest) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{req.To},
		Subject: fmt.Sprintf("How was your experience with %s?", req.BusinessName),
		Html:    reviewRequestBody(req),
	}

	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}

	return nil
}

func reviewRequestBody(req SendRequest) string {
	greeting := "Hi"
	if req.CustomerName != "" {
		greeting = "Hi " + html.EscapeString(req.CustomerName)
	}

	return fmt.Sprintf(
		`<p>%s,</p>
<p>Thanks for visiting %s. Would you take a moment to leave us a review?</p>
<p><a href="%s">Leave a review</a></p>`,
		greeting,
		html.EscapeString(req.BusinessName),
		html.EscapeString(req.ReviewLink),
	)
}
