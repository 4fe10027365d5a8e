package notify

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

type capturedMail struct {
	from string
	to   []string
	data string
	user string
}

type testBackend struct {
	mu    sync.Mutex
	mails []capturedMail
}

func (b *testBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &testSession{backend: b}, nil
}

func (b *testBackend) received() []capturedMail {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]capturedMail(nil), b.mails...)
}

type testSession struct {
	backend *testBackend
	current capturedMail
}

func (s *testSession) AuthMechanisms() []string { return []string{sasl.Plain} }

func (s *testSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != "site" || password != "secret" {
			return smtp.ErrAuthFailed
		}
		s.current.user = username
		return nil
	}), nil
}

func (s *testSession) Mail(from string, _ *smtp.MailOptions) error {
	s.current.from = from
	return nil
}

func (s *testSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if strings.HasSuffix(to, "@rejected.test") {
		return &smtp.SMTPError{Code: 550, Message: "mailbox unavailable"}
	}
	s.current.to = append(s.current.to, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.current.data = string(data)
	s.backend.mu.Lock()
	s.backend.mails = append(s.backend.mails, s.current)
	s.backend.mu.Unlock()
	return nil
}

func (s *testSession) Reset()        { s.current = capturedMail{user: s.current.user} }
func (s *testSession) Logout() error { return nil }

// startSMTPServer runs a relay without TLS, so it never advertises STARTTLS.
func startSMTPServer(t *testing.T) (*testBackend, string) {
	t.Helper()
	backend := &testBackend{}
	srv := smtp.NewServer(backend)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return backend, ln.Addr().String()
}

func TestSMTPSender_Send(t *testing.T) {
	backend, addr := startSMTPServer(t)
	sender := NewSMTPSender(SMTPConfig{
		Addr:      addr,
		Username:  "site",
		Password:  "secret",
		FromEmail: "site@corretora.com.br",
	}, nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "contato@corretora.com.br",
		ReplyTo: "ana@example.com",
		Subject: "Novo lead pelo site - amil",
		Body:    "Nome: Ana",
		HTML:    "<p>Nome: Ana</p>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	mails := backend.received()
	if len(mails) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(mails))
	}
	got := mails[0]
	if got.user != "site" {
		t.Errorf("expected authenticated session, got user %q", got.user)
	}
	if got.from != "site@corretora.com.br" || len(got.to) != 1 || got.to[0] != "contato@corretora.com.br" {
		t.Errorf("unexpected envelope %q -> %v", got.from, got.to)
	}
	for _, want := range []string{"Reply-To: ana@example.com", "multipart/alternative", "Nome: Ana", "<p>Nome: Ana</p>"} {
		if !strings.Contains(got.data, want) {
			t.Errorf("message missing %q:\n%s", want, got.data)
		}
	}
}

func TestSMTPSender_Rejected(t *testing.T) {
	_, addr := startSMTPServer(t)
	sender := NewSMTPSender(SMTPConfig{Addr: addr, FromEmail: "site@corretora.com.br"}, nil)

	err := sender.Send(context.Background(), EmailMessage{To: "inbox@rejected.test", Body: "x"})
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if provErr.StatusCode != 550 {
		t.Errorf("unexpected code %d", provErr.StatusCode)
	}
}

func TestSMTPSender_ContextCancelled(t *testing.T) {
	// A relay that accepts the connection but never sends its greeting.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	sender := NewSMTPSender(SMTPConfig{Addr: ln.Addr().String(), FromEmail: "site@corretora.com.br"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = sender.Send(ctx, EmailMessage{To: "contato@corretora.com.br", Body: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("send returned after %s", elapsed)
	}

	select {
	case conn := <-accepted:
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(time.Second))
		if _, err := conn.Read(make([]byte, 1)); err == nil {
			t.Error("expected the client to close its connection")
		}
	case <-time.After(time.Second):
		t.Fatal("relay never saw a connection")
	}
}

func TestSMTPSender_CancelledBeforeSendDeliversNothing(t *testing.T) {
	backend, addr := startSMTPServer(t)
	sender := NewSMTPSender(SMTPConfig{Addr: addr, FromEmail: "site@corretora.com.br"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sender.Send(ctx, EmailMessage{To: "contato@corretora.com.br", Body: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := len(backend.received()); got != 0 {
		t.Fatalf("expected no delivery, got %d", got)
	}
}

func TestNewSMTPSender_NilWithoutAddr(t *testing.T) {
	if NewSMTPSender(SMTPConfig{}, nil) != nil {
		t.Fatal("expected nil sender without address")
	}
}

func TestSMTPCompose_PlainText(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Addr: "x:25", FromEmail: "site@corretora.com.br", FromName: "Corretora"}, nil)
	data, err := sender.compose(EmailMessage{To: "a@b.c", Subject: "Cotação", Body: "olá"}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	msg := string(data)
	if !strings.Contains(msg, "Content-Type: text/plain; charset=utf-8") {
		t.Errorf("expected plain text message:\n%s", msg)
	}
	if !strings.Contains(msg, "Subject: =?utf-8?q?Cota=C3=A7=C3=A3o?=") {
		t.Errorf("expected encoded subject:\n%s", msg)
	}
	if !strings.Contains(msg, "Message-ID: <") || !strings.Contains(msg, "@corretora.com.br>") {
		t.Errorf("expected message id on sender domain:\n%s", msg)
	}
	if strings.Contains(msg, "Reply-To") {
		t.Errorf("unexpected reply-to header:\n%s", msg)
	}
}
