package gateways

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"regexp"
	"strings"

	"experience-backend/utils"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	FromName string
}

func (c SMTPConfig) configured() bool {
	return c.Host != "" && c.Port != "" && c.Username != "" && c.Password != ""
}

// SMTPMailer sends multipart (plain + html) mail. Without SMTP settings it only logs.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func safeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(strings.TrimSpace(s))
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.cfg.configured() {
		log.Printf("[MOCK EMAIL] to:%s subject:%s", utils.MaskEmail(to), subject)
		return nil
	}

	from := fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.Username)
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)
	boundary := "----=_EXPERIENCE_MAIL_BOUNDARY"
	plain := strings.TrimSpace(tagPattern.ReplaceAllString(html, ""))

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From: %s\r\n", from))
	sb.WriteString(fmt.Sprintf("To: %s\r\n", safeHeader(to)))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", safeHeader(subject)))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary))

	sb.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	sb.WriteString(plain + "\r\n")

	sb.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	sb.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	sb.WriteString(html + "\r\n")

	sb.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	if err := m.send(addr, auth, m.cfg.Username, []string{to}, []byte(sb.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", utils.MaskEmail(to), err)
	}
	return nil
}
