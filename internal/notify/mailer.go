package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/wolfman30/insurance-leads-platform/internal/leads"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

const defaultLeadSubject = "Novo lead pelo site"

var fieldLabels = map[string]string{
	"name":         "Nome",
	"email":        "E-mail",
	"phone":        "Telefone",
	"operator":     "Operadora",
	"subject":      "Assunto",
	"message":      "Mensagem",
	"status":       "Status",
	"priority":     "Prioridade",
	"source_page":  "Página de origem",
	"user_agent":   "Navegador",
	"utm_source":   "UTM source",
	"utm_medium":   "UTM medium",
	"utm_campaign": "UTM campaign",
	"client_ip":    "IP",
}

type row struct {
	Label string
	Value string
}

var textBody = template.Must(template.New("lead.txt").Parse(
	`Novo lead recebido pelo site.
{{range .}}
{{.Label}}: {{.Value}}{{end}}
`))

var htmlBody = htmltemplate.Must(htmltemplate.New("lead.html").Parse(
	`<h2>Novo lead recebido pelo site</h2>
<table cellpadding="6" style="border-collapse:collapse">
{{range .}}<tr><th align="left">{{.Label}}</th><td>{{.Value}}</td></tr>
{{end}}</table>
`))

// LeadMailerConfig controls where lead notifications go.
type LeadMailerConfig struct {
	To      string
	ToName  string
	Subject string
}

// LeadMailer emails a lead straight to the brokerage inbox through any
// EmailSender. It serves as a fallback delivery path.
type LeadMailer struct {
	sender  EmailSender
	to      string
	toName  string
	subject string
	logger  *logging.Logger
}

// NewLeadMailer wires a sender to the inbox address.
func NewLeadMailer(sender EmailSender, cfg LeadMailerConfig, logger *logging.Logger) (*LeadMailer, error) {
	if sender == nil {
		return nil, errors.New("notify: email sender is required")
	}
	to := strings.TrimSpace(cfg.To)
	if to == "" {
		return nil, errors.New("notify: destination email is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = defaultLeadSubject
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LeadMailer{
		sender:  sender,
		to:      to,
		toName:  cfg.ToName,
		subject: cfg.Subject,
		logger:  logger,
	}, nil
}

// Message renders the notification for a lead.
func (m *LeadMailer) Message(record leads.LeadRecord) (EmailMessage, error) {
	fields := record.Fields()
	rows := make([]row, 0, len(fields))
	for _, f := range fields {
		label, ok := fieldLabels[f[0]]
		if !ok {
			label = f[0]
		}
		rows = append(rows, row{Label: label, Value: f[1]})
	}

	var text, html bytes.Buffer
	if err := textBody.Execute(&text, rows); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render text body: %w", err)
	}
	if err := htmlBody.Execute(&html, rows); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render html body: %w", err)
	}

	return EmailMessage{
		To:      m.to,
		ToName:  m.toName,
		ReplyTo: record.Email,
		Subject: fmt.Sprintf("%s - %s", m.subject, record.Operator),
		Body:    text.String(),
		HTML:    html.String(),
	}, nil
}

// Deliver sends the lead notification.
func (m *LeadMailer) Deliver(ctx context.Context, record leads.LeadRecord) error {
	msg, err := m.Message(record)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return err
	}
	m.logger.Info("lead emailed", "email", leads.MaskEmail(record.Email), "operator", record.Operator)
	return nil
}
