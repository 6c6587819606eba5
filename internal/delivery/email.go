package delivery

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/herald/internal/pending"
)

// EmailConfig configures the mailing-list sender.
type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"` // from env HERALD_SMTP_PASSWORD only
	From     string `json:"from"`
	ListAddr string `json:"list_addr"` // the mailing-list address
}

// EmailSender delivers approved drafts to the community mailing list
// over SMTP.
type EmailSender struct {
	cfg     EmailConfig
	limiter *rate.Limiter
	send    func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender creates an EmailSender. Sends are rate limited to one
// per ten seconds; the list does not need bursts.
func NewEmailSender(cfg EmailConfig) *EmailSender {
	return &EmailSender{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
		send:    smtp.SendMail,
	}
}

func (s *EmailSender) Send(ctx context.Context, item *pending.Item) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	subject := item.Meta.Subject
	if subject == "" {
		subject = item.Meta.Topic
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&body, "To: %s\r\n", s.cfg.ListAddr)
	fmt.Fprintf(&body, "Subject: %s\r\n", subject)
	body.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	body.WriteString(item.Message)
	if len(item.Meta.Links) > 0 {
		body.WriteString("\r\n\r\n")
		for _, link := range item.Meta.Links {
			body.WriteString(link)
			body.WriteString("\r\n")
		}
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := s.send(addr, auth, s.cfg.From, []string{s.cfg.ListAddr}, []byte(body.String())); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return s.cfg.ListAddr, nil
}
