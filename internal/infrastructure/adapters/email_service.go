package adapters

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	"github.com/birdeye-sniper/sniper_service/pkg/security"
)

// EmailServiceConfig holds email service configuration
type EmailServiceConfig struct {
	Provider  string
	APIKey    string
	FromEmail string
	FromName  string
	ReplyTo   string
}

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailService sends mission report emails through SendGrid
type EmailService struct {
	logger *zap.Logger
	config EmailServiceConfig
	client sendClient
}

// NewEmailService creates a new email service
func NewEmailService(logger *zap.Logger, config EmailServiceConfig) (*EmailService, error) {
	provider := strings.ToLower(strings.TrimSpace(config.Provider))
	if provider != "sendgrid" {
		return nil, fmt.Errorf("unsupported email provider: %s", config.Provider)
	}
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(config.FromEmail) == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	return &EmailService{
		logger: logger,
		config: config,
		client: sendgrid.NewSendClient(config.APIKey),
	}, nil
}

// SendTransferReport emails the outcome of a transfer to the wallet owner
func (e *EmailService) SendTransferReport(ctx context.Context, to string, result *entities.TransferResult) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("recipient email is required")
	}

	subject := "Mission report: transfer executed"
	if !result.Succeeded() {
		subject = "Mission report: transfer failed"
	}

	return e.sendEmail(ctx, to, subject, buildTransferReportHTML(result), buildTransferReportText(result))
}

// sendEmail is a helper method to send emails via SendGrid
func (e *EmailService) sendEmail(ctx context.Context, to, subject, htmlContent, textContent string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	from := mail.NewEmail(e.config.FromName, e.config.FromEmail)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), textContent, htmlContent)
	if strings.TrimSpace(e.config.ReplyTo) != "" {
		message.SetReplyTo(mail.NewEmail(e.config.FromName, e.config.ReplyTo))
	}

	response, err := e.client.SendWithContext(ctx, message)
	if err != nil {
		e.logger.Error("Failed to send email",
			zap.String("to", security.MaskEmail(to)),
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		e.logger.Error("Email service returned error",
			zap.String("to", security.MaskEmail(to)),
			zap.Int("status_code", response.StatusCode),
			zap.String("response_body", security.MaskString(response.Body)))
		return fmt.Errorf("email service error: status %d, body: %s", response.StatusCode, response.Body)
	}

	e.logger.Info("Email sent successfully",
		zap.String("to", security.MaskEmail(to)),
		zap.String("subject", subject),
		zap.Int("status_code", response.StatusCode))
	return nil
}

func transferOutcome(result *entities.TransferResult) string {
	if result.Succeeded() {
		return "SUCCESSFUL"
	}
	return "FAILED"
}

func buildTransferReportHTML(result *entities.TransferResult) string {
	var b strings.Builder
	b.WriteString("<h2>Transfer ")
	b.WriteString(transferOutcome(result))
	b.WriteString("</h2><table>")
	row := func(label, value string) {
		fmt.Fprintf(&b, "<tr><td><strong>%s</strong></td><td>%s</td></tr>", label, html.EscapeString(value))
	}
	row("Type", string(result.Kind))
	row("Source", result.From)
	row("Target", result.To)
	row("Amount", result.Amount.StringFixed(4)+" SOL")
	if result.Signature != "" {
		row("Signature", result.Signature)
	}
	if result.Err != nil {
		row("Error", result.Err.Error())
	}
	row("Time", result.CompletedAt.UTC().Format(time.RFC1123))
	b.WriteString("</table>")
	return b.String()
}

func buildTransferReportText(result *entities.TransferResult) string {
	lines := []string{
		"Transfer " + transferOutcome(result),
		"Type: " + string(result.Kind),
		"Source: " + result.From,
		"Target: " + result.To,
		"Amount: " + result.Amount.StringFixed(4) + " SOL",
	}
	if result.Signature != "" {
		lines = append(lines, "Signature: "+result.Signature)
	}
	if result.Err != nil {
		lines = append(lines, "Error: "+result.Err.Error())
	}
	lines = append(lines, "Time: "+result.CompletedAt.UTC().Format(time.RFC1123))
	return strings.Join(lines, "\n")
}
