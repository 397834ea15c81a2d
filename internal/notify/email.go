package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"postpilot/internal/scheduler"
)

// EmailConfig holds SMTP configuration
type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	To       string
}

// Email sends run summaries over SMTP.
type Email struct {
	config EmailConfig
	server string
	auth   smtp.Auth
}

func NewEmail(config EmailConfig) *Email {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)
	return &Email{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email delivery is configured
func (e *Email) IsConfigured() bool {
	return e.config.Host != "" && e.config.Port != "" && e.config.From != "" && e.config.To != ""
}

func (e *Email) NotifyRun(ctx context.Context, summary scheduler.Summary) error {
	if !e.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	subject := Subject(summary)
	html, err := renderSummary(summary)
	if err != nil {
		return fmt.Errorf("render summary: %w", err)
	}

	from := e.config.From
	if e.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", e.config.FromName, e.config.From)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", e.config.To)
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", html)

	return smtp.SendMail(e.server, e.auth, e.config.From, []string{e.config.To}, msg.Bytes())
}

// Subject summarizes a run in one line.
func Subject(summary scheduler.Summary) string {
	switch summary.Outcome {
	case scheduler.OutcomeNoDocument, scheduler.OutcomeDisconnected:
		return "Postpilot: run skipped (" + summary.Outcome + ")"
	case scheduler.OutcomeFetchFailed:
		return "Postpilot: run failed to load the document"
	case scheduler.OutcomeNothingDue:
		return "Postpilot: nothing due"
	}

	parts := []string{fmt.Sprintf("%d published", summary.Published)}
	if summary.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", summary.Failed))
	}
	if summary.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", summary.Skipped))
	}
	line := "Postpilot: " + strings.Join(parts, ", ")
	if !summary.SaveOK {
		line += " - STATUS SAVE FAILED"
	}
	return line
}

func renderSummary(summary scheduler.Summary) (string, error) {
	t := template.Must(template.New("summary").Parse(summaryTemplate))
	var buf bytes.Buffer
	if err := t.Execute(&buf, summary); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const summaryTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Postpilot run summary</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #c13584; padding-bottom: 10px; margin-bottom: 20px; }
        .warning { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .ok { color: #2e7d32; }
        .failed { color: #c62828; }
        table { border-collapse: collapse; width: 100%; }
        td, th { border-bottom: 1px solid #eee; padding: 6px 8px; text-align: left; font-size: 14px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Postpilot</h1>
    </div>

    <p>Run at {{.RanAt.Format "2006-01-02 15:04 MST"}}, outcome: <strong>{{.Outcome}}</strong></p>
    <p>{{.Published}} published, {{.Failed}} failed, {{.Skipped}} skipped (of {{.Due}} due).</p>

    {{if not .SaveOK}}
    <div class="warning">
        <strong>Important:</strong> at least one published post could not be saved back to the
        planner document. It may be offered again on the next run; check the slots below before
        republishing anything.
    </div>
    {{end}}

    {{if .Results}}
    <table>
        <tr><th>Slot</th><th>Result</th><th>Media</th><th>Error</th></tr>
        {{range .Results}}
        <tr>
            <td>{{.SlotID}}</td>
            <td>{{if .Success}}<span class="ok">published</span>{{else if .Skipped}}skipped{{else}}<span class="failed">failed</span>{{end}}</td>
            <td>{{if .Permalink}}<a href="{{.Permalink}}">{{.MediaID}}</a>{{else}}{{.MediaID}}{{end}}</td>
            <td>{{.Error}}</td>
        </tr>
        {{end}}
    </table>
    {{end}}
</body>
</html>`
