// Package notify renders templated e-mails and delivers them through the
// outbound queue.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"magazine/internal/queue"
)

// MessageType marks mail messages on the shared queue.
const MessageType = "mail"

const (
	TemplatePasswordReset = "password_reset"
	TemplateNewComment    = "new_comment"
)

var templates = template.Must(template.New(TemplatePasswordReset).Parse(
	`Hello {{.Name}},

Your password has been reset. Your new password is:

    {{.Password}}

Please sign in and change it from your profile page.
`))

func init() {
	template.Must(templates.New(TemplateNewComment).Parse(
		`Hello {{.Name}},

{{.Commenter}} commented on your contribution "{{.Excerpt}}":

    {{.Comment}}
`))
}

// Mail is a rendered message ready for delivery.
type Mail struct {
	Template string `json:"template"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// Notifier renders mail and publishes it for asynchronous delivery.
type Notifier struct {
	q queue.Queue
}

func NewNotifier(q queue.Queue) *Notifier {
	return &Notifier{q: q}
}

// PasswordReset sends a freshly generated password to its owner.
func (n *Notifier) PasswordReset(ctx context.Context, to, name, password string) error {
	return n.publish(ctx, TemplatePasswordReset, to, "Your password has been reset", map[string]string{
		"Name":     name,
		"Password": password,
	})
}

// NewComment alerts a contributor that someone commented on their work.
func (n *Notifier) NewComment(ctx context.Context, to, name, excerpt, commenter, comment string) error {
	return n.publish(ctx, TemplateNewComment, to, "New comment on your contribution", map[string]string{
		"Name":      name,
		"Excerpt":   truncate(excerpt, 60),
		"Commenter": commenter,
		"Comment":   comment,
	})
}

func (n *Notifier) publish(ctx context.Context, tmpl, to, subject string, data any) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tmpl, data); err != nil {
		return fmt.Errorf("render %s: %w", tmpl, err)
	}
	payload, err := json.Marshal(Mail{Template: tmpl, To: to, Subject: subject, Body: body.String()})
	if err != nil {
		return fmt.Errorf("encode %s: %w", tmpl, err)
	}
	if err := n.q.Publish(ctx, queue.Message{Type: MessageType, Body: payload}); err != nil {
		return fmt.Errorf("publish %s: %w", tmpl, err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
