package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"

	"github.com/google/uuid"
	"github.com/tensormd/repops/internal/config"
)

// SMTPTransport submits mail over authenticated STARTTLS SMTP.
type SMTPTransport struct {
	cfg config.SMTPConfig
}

// NewSMTPTransport creates an SMTP transport from config. Returns an error
// when credentials or the physical postal address are missing; sending
// commercial mail without a postal address is a compliance failure, not a
// runtime condition to discover per message.
func NewSMTPTransport(cfg config.SMTPConfig) (*SMTPTransport, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("smtp: username/password not configured")
	}
	if cfg.PhysicalAddress == "" {
		return nil, errors.New("smtp: physical postal address not configured")
	}
	return &SMTPTransport{cfg: cfg}, nil
}

// Send submits one message. SMTP reply codes map to the bounce taxonomy:
// 550-554 hard, 421/450-452 soft, everything else transient.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) (Outcome, error) {
	raw := t.buildMessage(msg)

	err := t.submit(ctx, msg.To, raw)
	if err == nil {
		return Outcome{Status: SendOK}, nil
	}

	var proto *textproto.Error
	if errors.As(err, &proto) {
		return ClassifyReplyCode(proto.Code, proto.Msg), nil
	}
	return Outcome{Status: SendTransientError, Reason: truncateReason(err.Error())}, nil
}

func (t *SMTPTransport) buildMessage(msg Message) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s <%s>\r\n", t.cfg.FromName, t.cfg.FromEmail)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", uuid.New().String(), t.cfg.Host)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func (t *SMTPTransport) submit(ctx context.Context, to string, raw []byte) error {
	dialer := &net.Dialer{Timeout: t.cfg.Timeout()}
	conn, err := dialer.DialContext(ctx, "tcp", t.cfg.Addr())
	if err != nil {
		return fmt.Errorf("smtp connect %s: %w", t.cfg.Addr(), err)
	}

	c, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(t.cfg.FromEmail); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// ClassifyReplyCode maps an SMTP reply code to a typed outcome.
func ClassifyReplyCode(code int, reason string) Outcome {
	out := Outcome{Code: code, Reason: truncateReason(reason)}
	switch {
	case code >= 550 && code <= 554:
		out.Status = SendHardBounce
	case code == 421 || (code >= 450 && code <= 452):
		out.Status = SendSoftBounce
	default:
		out.Status = SendTransientError
	}
	return out
}

func truncateReason(s string) string {
	if len(s) > 300 {
		return s[:300]
	}
	return s
}
