// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package requests

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"text/template"

	"github.com/fluxwork/fluxwork/internal/store"
)

// Email is one outbound message addressed to a single recipient.
type Email struct {
	From    string
	To      string
	Subject string
	Body    string
}

// EmailSender delivers an Email. It is an external dependency (§6); no
// library in the dependency set provides this, so the SMTP path below
// goes directly against net/smtp.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// LogSender is an EmailSender that only logs — useful for local
// development and for deployments that forward notification entirely
// through request:changed events instead of email.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Email) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("request notification",
		slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}

// SMTPSender delivers mail through a configured SMTP relay.
type SMTPSender struct {
	Addr string
	Auth smtp.Auth
}

func (s *SMTPSender) Send(ctx context.Context, msg Email) error {
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		msg.From, msg.To, msg.Subject, msg.Body)
	return smtp.SendMail(s.Addr, s.Auth, msg.From, []string{msg.To}, []byte(body))
}

// renderTemplate interpolates an EmailTemplate's text against params using
// text/template, the same templating package the teacher uses for its
// fixture expansion (internal/testing/fixture/template.go).
func renderTemplate(tmpl *store.EmailTemplate, params map[string]interface{}) (string, error) {
	t, err := template.New(tmpl.ID).Parse(tmpl.Template)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", tmpl.ID, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("render email template %s: %w", tmpl.ID, err)
	}
	return buf.String(), nil
}
