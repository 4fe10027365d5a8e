package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

// SMTPConfig holds configuration for a plain SMTP submission server.
type SMTPConfig struct {
	Addr      string // host:port
	Username  string
	Password  string
	FromEmail string
	FromName  string
	// ImplicitTLS dials with TLS from the first byte (port 465). Otherwise
	// the session upgrades with STARTTLS only when the server offers it.
	ImplicitTLS bool
}

const smtpCommandTimeout = 30 * time.Second

// SMTPSender submits emails to an SMTP relay.
type SMTPSender struct {
	addr        string
	host        string
	auth        sasl.Client
	fromEmail   string
	fromName    string
	implicitTLS bool
	dialer      *net.Dialer
	logger      *logging.Logger
}

// NewSMTPSender creates an SMTP sender. It returns nil when no address is set.
func NewSMTPSender(cfg SMTPConfig, logger *logging.Logger) *SMTPSender {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	var auth sasl.Client
	if cfg.Username != "" {
		auth = sasl.NewPlainClient("", cfg.Username, cfg.Password)
	}
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		host = cfg.Addr
	}
	return &SMTPSender{
		addr:        cfg.Addr,
		host:        host,
		auth:        auth,
		fromEmail:   cfg.FromEmail,
		fromName:    cfg.FromName,
		implicitTLS: cfg.ImplicitTLS,
		dialer:      &net.Dialer{Timeout: smtpCommandTimeout},
		logger:      logger,
	}
}

// Send submits the message and returns once the relay has answered or ctx is
// done. Cancelling ctx closes the connection, so no submission outlives the call.
func (s *SMTPSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.dialer == nil {
		return fmt.Errorf("notify: smtp sender not configured")
	}
	data, err := s.compose(msg, time.Now())
	if err != nil {
		return fmt.Errorf("notify: compose message: %w", err)
	}

	if err := s.submit(ctx, msg.To, data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.logger.Warn("smtp send cancelled", "to", msg.To, "error", ctxErr)
			return fmt.Errorf("notify: smtp send: %w", ctxErr)
		}
		s.logger.Error("smtp send failed", "error", err, "to", msg.To)
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) {
			return &ProviderError{Provider: "smtp", StatusCode: smtpErr.Code, Detail: smtpErr.Message}
		}
		return fmt.Errorf("notify: smtp send failed: %w", err)
	}

	s.logger.Info("email sent via smtp", "to", msg.To, "subject", msg.Subject)
	return nil
}

func (s *SMTPSender) submit(ctx context.Context, to string, data []byte) error {
	c, release, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer release()
	defer c.Close()

	if s.auth != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := c.Auth(s.auth); err != nil {
			return err
		}
	}
	if err := c.Mail(s.fromEmail, nil); err != nil {
		return err
	}
	if err := c.Rcpt(to, nil); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	// The relay accepted the message once DATA closed cleanly.
	if err := c.Quit(); err != nil {
		s.logger.Debug("smtp quit failed", "error", err)
	}
	return nil
}

// open connects and greets the relay. The returned release func must be
// called once the session is over.
func (s *SMTPSender) open(ctx context.Context) (*smtp.Client, func(), error) {
	tlsConfig := &tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}
	heloName := domainOf(s.fromEmail)

	if s.implicitTLS {
		tlsDialer := &tls.Dialer{NetDialer: s.dialer, Config: tlsConfig}
		conn, err := tlsDialer.DialContext(ctx, "tcp", s.addr)
		if err != nil {
			return nil, nil, err
		}
		return s.greet(ctx, conn, smtp.NewClient(conn), heloName)
	}

	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, nil, err
	}
	c, release, err := s.greet(ctx, conn, smtp.NewClient(conn), heloName)
	if err != nil {
		return nil, nil, err
	}
	if ok, _ := c.Extension("STARTTLS"); !ok {
		return c, release, nil
	}

	// go-smtp negotiates STARTTLS only on a fresh session, so reconnect.
	c.Close()
	release()
	conn, err = s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, nil, err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	c, err = smtp.NewClientStartTLS(conn, tlsConfig)
	stop()
	if err != nil {
		return nil, nil, err
	}
	return s.greet(ctx, conn, c, heloName)
}

// greet sends EHLO. The connection is closed as soon as ctx is done.
func (s *SMTPSender) greet(ctx context.Context, conn net.Conn, c *smtp.Client, heloName string) (*smtp.Client, func(), error) {
	c.CommandTimeout = smtpCommandTimeout
	c.SubmissionTimeout = smtpCommandTimeout

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	release := func() { stop() }
	if err := c.Hello(heloName); err != nil {
		release()
		c.Close()
		return nil, nil, err
	}
	return c, release, nil
}

// compose renders an RFC 5322 message with a multipart/alternative body
// when HTML is present.
func (s *SMTPSender) compose(msg EmailMessage, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", formatAddress(s.fromName, s.fromEmail))
	header("To", formatAddress(msg.ToName, msg.To))
	if msg.ReplyTo != "" {
		header("Reply-To", msg.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(s.fromEmail)))
	header("MIME-Version", "1.0")

	if msg.HTML == "" {
		header("Content-Type", "text/plain; charset=utf-8")
		header("Content-Transfer-Encoding", "8bit")
		buf.WriteString("\r\n")
		buf.WriteString(msg.Body)
		return buf.Bytes(), nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")

	for _, part := range []struct{ ctype, content string }{
		{"text/plain; charset=utf-8", msg.Body},
		{"text/html; charset=utf-8", msg.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.ctype},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

func formatAddress(name, email string) string {
	if name == "" {
		return "<" + email + ">"
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), email)
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return "localhost"
}

var _ EmailSender = (*SMTPSender)(nil)
