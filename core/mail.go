package core

import (
	"bytes"
	"net/mail"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Subject string
		// Category tags the message at the provider, e.g. "score-confirmed".
		Category string

		// Body is executed as a text/template against Data when Data is set.
		Body string
		Data interface{}

		TextContent string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) Render() error {
	if m.Data == nil {
		m.TextContent = m.Body
		return nil
	}
	tmpl, err := texttmpl.New(m.Subject).Option("missingkey=error").Parse(m.Body)
	if err != nil {
		return errors.Wrap(err, "parsing email body")
	}
	var buff bytes.Buffer
	if err = tmpl.Execute(&buff, m.Data); err != nil {
		return errors.Wrap(err, "executing email body")
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return m.TextContent != "" }
