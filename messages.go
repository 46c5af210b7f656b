package authflow

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	internalflows "github.com/balancebuddy/authflow/internal/flows"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type messageData struct {
	AppName     string
	DisplayName string
	Code        string
	Link        string
	Window      string
	Resent      bool
}

type messageTemplate struct {
	subject string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// messageRenderer turns flow deliveries into [Message] values. Templates are
// parsed once at build time.
type messageRenderer struct {
	appName   string
	templates map[internalflows.DeliveryKind]messageTemplate
}

const codeHTML = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>{{if .Resent}}New Verification Code{{else}}Email Verification{{end}}</h2>
  <p>Hello{{if .DisplayName}} {{.DisplayName}}{{end}},</p>
  <p>{{if .Resent}}Here is your new verification code:{{else}}Your verification code for {{.AppName}} is:{{end}}</p>
  <div style="font-size: 32px; font-weight: bold; letter-spacing: 8px; padding: 16px 0;">{{.Code}}</div>
  <p>This code will expire in {{.Window}}.</p>
  <p>If you didn't request this code, please ignore this email.</p>
</div>`

const codeText = `Hello{{if .DisplayName}} {{.DisplayName}}{{end}},

{{if .Resent}}Here is your new verification code{{else}}Your verification code for {{.AppName}} is{{end}}: {{.Code}}

This code will expire in {{.Window}}.
If you didn't request this code, please ignore this email.
`

const resetHTML = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Password Reset Request</h2>
  <p>Hello{{if .DisplayName}} {{.DisplayName}}{{end}},</p>
  <p>We received a request to reset your {{.AppName}} password. Click the button below to choose a new one:</p>
  <p><a href="{{.Link}}" style="background-color: #4CAF50; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Reset Password</a></p>
  <p>Or copy and paste this link into your browser:</p>
  <p>{{.Link}}</p>
  <p>This link will expire in {{.Window}}.</p>
  <p>If you didn't request a password reset, please ignore this email.</p>
</div>`

const resetText = `Hello{{if .DisplayName}} {{.DisplayName}}{{end}},

We received a request to reset your {{.AppName}} password. Open this link to choose a new one:

{{.Link}}

This link will expire in {{.Window}}.
If you didn't request a password reset, please ignore this email.
`

func newMessageRenderer(appName string) (*messageRenderer, error) {
	r := &messageRenderer{
		appName:   appName,
		templates: make(map[internalflows.DeliveryKind]messageTemplate, 5),
	}

	subjects := map[internalflows.DeliveryKind]string{
		internalflows.DeliveryRegistrationCode:   "Verify Your Email - " + appName,
		internalflows.DeliveryRegistrationResend: "New Verification Code - " + appName,
		internalflows.DeliveryEmailCode:          "Your OTP for " + appName,
		internalflows.DeliveryEmailResend:        "Your New OTP for " + appName,
		internalflows.DeliveryPasswordReset:      "Password Reset Request - " + appName,
	}

	for kind, subject := range subjects {
		htmlSrc, textSrc := codeHTML, codeText
		if kind == internalflows.DeliveryPasswordReset {
			htmlSrc, textSrc = resetHTML, resetText
		}
		h, err := htmltemplate.New(fmt.Sprintf("html-%d", kind)).Parse(htmlSrc)
		if err != nil {
			return nil, fmt.Errorf("parse message template: %w", err)
		}
		t, err := texttemplate.New(fmt.Sprintf("text-%d", kind)).Parse(textSrc)
		if err != nil {
			return nil, fmt.Errorf("parse message template: %w", err)
		}
		r.templates[kind] = messageTemplate{subject: subject, html: h, text: t}
	}

	return r, nil
}

func (r *messageRenderer) render(d internalflows.Delivery) (Message, error) {
	tpl, ok := r.templates[d.Kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown delivery kind %d", d.Kind)
	}

	resent := d.Kind == internalflows.DeliveryRegistrationResend ||
		d.Kind == internalflows.DeliveryEmailResend
	// Casers carry state and are built per render.
	data := messageData{
		AppName:     r.appName,
		DisplayName: cases.Title(language.English).String(strings.TrimSpace(d.DisplayName)),
		Code:        d.Code,
		Link:        d.Link,
		Window:      formatWindow(d.Window),
		Resent:      resent,
	}

	var htmlBody, textBody bytes.Buffer
	if err := tpl.html.Execute(&htmlBody, data); err != nil {
		return Message{}, err
	}
	if err := tpl.text.Execute(&textBody, data); err != nil {
		return Message{}, err
	}

	return Message{
		To:       d.To,
		Subject:  tpl.subject,
		HTMLBody: htmlBody.String(),
		TextBody: textBody.String(),
	}, nil
}

// formatWindow renders a validity window for humans: "2 minutes", "1 hour".
func formatWindow(d time.Duration) string {
	switch {
	case d <= 0:
		return "a few moments"
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int((d+time.Second-1)/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
