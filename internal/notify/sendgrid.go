package notify

import (
	"context"
	"fmt"
	"html"
	"net/url"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Mailer delivers verification links through SendGrid.
type Mailer struct {
	client    mailSender
	FromName  string
	FromMail  string
	VerifyURL string
}

func NewSendGridMailer(apiKey, fromName, fromMail, verifyURL string) *Mailer {
	return &Mailer{
		client:    sendgrid.NewSendClient(apiKey),
		FromName:  fromName,
		FromMail:  fromMail,
		VerifyURL: verifyURL,
	}
}

// SendVerification mails the verification link for ev.  It matches the
// Consumer.Handle signature.
func (m *Mailer) SendVerification(ctx context.Context, ev VerificationRequested) error {
	link, err := m.link(ev.Token)
	if err != nil {
		return err
	}
	from := mail.NewEmail(m.FromName, m.FromMail)
	to := mail.NewEmail(ev.TenantName, ev.Email)
	subject := "Confirm your agency email address"
	text := fmt.Sprintf("Confirm the contact address for %s by opening %s\n\nThe link expires at %s UTC.",
		ev.TenantName, link, ev.ExpiresAt.UTC().Format("2006-01-02 15:04"))
	// tenant names are user input
	body := fmt.Sprintf(`<p>Confirm the contact address for <strong>%s</strong>:</p><p><a href="%s">Verify email</a></p><p>The link expires at %s UTC.</p>`,
		html.EscapeString(ev.TenantName), html.EscapeString(link), ev.ExpiresAt.UTC().Format("2006-01-02 15:04"))

	resp, err := m.client.SendWithContext(ctx, mail.NewSingleEmail(from, subject, to, text, body))
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid API error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (m *Mailer) link(token string) (string, error) {
	u, err := url.Parse(m.VerifyURL)
	if err != nil {
		return "", fmt.Errorf("verify url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
