// Package notify delivers operator alerts raised by the inventory service.
package notify

import (
	"context"
	"fmt"
	"html"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridAlerter mails alerts to the shop operator
type SendGridAlerter struct {
	client sender
	from   string
	to     string
	logger cmtlog.Logger
}

func NewSendGridAlerter(apiKey, from, to string, logger cmtlog.Logger) (*SendGridAlerter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("sendgrid api key is empty")
	}
	if from == "" {
		return nil, fmt.Errorf("from address is empty")
	}
	if to == "" {
		return nil, fmt.Errorf("to address is empty")
	}
	return &SendGridAlerter{
		client: sendgrid.NewSendClient(apiKey),
		from:   from,
		to:     to,
		logger: logger.With("module", "notify"),
	}, nil
}

func (a *SendGridAlerter) Alert(ctx context.Context, subject, body string) error {
	message := mail.NewSingleEmail(
		mail.NewEmail("Ribon Matchalatte", a.from),
		subject,
		mail.NewEmail("", a.to),
		body,
		fmt.Sprintf("<pre>%s</pre>", html.EscapeString(body)),
	)

	response, err := a.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: status=%d, body=%s", response.StatusCode, response.Body)
	}

	a.logger.Info("Alert mailed", "status", response.StatusCode, "to", a.to, "subject", subject)
	return nil
}

// LogAlerter writes alerts to the log when no mail channel is configured
type LogAlerter struct {
	logger cmtlog.Logger
}

func NewLogAlerter(logger cmtlog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger.With("module", "notify")}
}

func (a *LogAlerter) Alert(_ context.Context, subject, body string) error {
	a.logger.Error("ALERT", "subject", subject, "body", body)
	return nil
}
