// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	// AppURL is the base URL links in emails point at.
	AppURL string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	if config.FromName == "" {
		config.FromName = "Inkvault"
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain-text alternative.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(to) == 0 {
		return nil
	}

	from := fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	boundary := "boundary-inkvault"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", sanitizeHeader(subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// InviteData holds data for the collaborator invite template
type InviteData struct {
	AppName   string
	Inviter   string
	NoteTitle string
	NoteURL   string
}

// SendCollaboratorInvite tells a newly added collaborator that a note was
// shared with them.
func (s *Service) SendCollaboratorInvite(to, inviter, noteTitle, noteID string) error {
	data := InviteData{
		AppName:   s.config.FromName,
		Inviter:   inviter,
		NoteTitle: noteTitle,
		NoteURL:   strings.TrimRight(s.config.AppURL, "/") + "/notes/" + noteID,
	}

	subject := fmt.Sprintf("%s shared \"%s\" with you", inviter, noteTitle)
	var html bytes.Buffer
	if err := inviteTemplate.Execute(&html, data); err != nil {
		return fmt.Errorf("render invite template: %w", err)
	}
	text := fmt.Sprintf("%s shared \"%s\" with you.\n\nOpen it: %s\n", inviter, noteTitle, data.NoteURL)

	return s.SendHTMLEmail([]string{to}, subject, text, html.String())
}

func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}

var inviteTemplate = template.Must(template.New("invite").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Inviter}} shared a note with you</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <h2>{{.Inviter}} shared "{{.NoteTitle}}" with you</h2>
    <p>You can now read and edit this note.</p>
    <p><a href="{{.NoteURL}}" class="button">Open note</a></p>
    <div class="footer">
        <p>You received this because you have a {{.AppName}} account.</p>
    </div>
</body>
</html>`))
