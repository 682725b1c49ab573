package smtp

import (
	"errors"
	"io"
	"mime"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OliverSchlueter/smtp-mailer/internal/mails"
	"github.com/OliverSchlueter/smtp-mailer/internal/message"
	"github.com/docker/go-units"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	from string
	to   []string
	data []byte
}

// recordingBackend accepts anonymous mail and keeps it in memory.
type recordingBackend struct {
	mu       sync.Mutex
	messages []received
	reject   map[string]bool
}

func (b *recordingBackend) Login(_ *gosmtp.ConnectionState, _, _ string) (gosmtp.Session, error) {
	return nil, gosmtp.ErrAuthUnsupported
}

func (b *recordingBackend) AnonymousLogin(_ *gosmtp.ConnectionState) (gosmtp.Session, error) {
	return &recordingSession{backend: b}, nil
}

type recordingSession struct {
	backend *recordingBackend
	current received
}

func (s *recordingSession) Reset() { s.current = received{} }

func (s *recordingSession) Logout() error { return nil }

func (s *recordingSession) Mail(from string, _ gosmtp.MailOptions) error {
	s.current.from = from
	return nil
}

func (s *recordingSession) Rcpt(to string) error {
	if s.backend.reject[to] {
		return &gosmtp.SMTPError{Code: 550, EnhancedCode: gosmtp.EnhancedCode{5, 1, 1}, Message: "No such user here"}
	}
	s.current.to = append(s.current.to, to)
	return nil
}

func (s *recordingSession) Data(r io.Reader) error {
	data, err := io.ReadAll(io.LimitReader(r, 10*units.MiB))
	if err != nil {
		return err
	}
	s.current.data = data

	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.current)
	s.backend.mu.Unlock()
	return nil
}

func startInteropServer(t *testing.T, be *recordingBackend) Configuration {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := gosmtp.NewServer(be)
	srv.Domain = "localhost"
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.MaxMessageBytes = 10 * units.MiB
	srv.Strict = true

	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	return Configuration{Host: host, Port: port, LocalName: "client.example.com"}
}

func TestSessionAgainstGoSMTP(t *testing.T) {
	be := &recordingBackend{}
	s := NewSession(startInteropServer(t, be))

	m := message.New().
		SetText("plain body").
		SetHTML("<p>html body</p>").
		AddAttachment([]byte("a,b\n1,2\n"), "report.csv", "text/csv", "")

	queueID, err := s.Send(m, "one@example.com, Two <two@example.org>", "Отчёт", "sender@example.com", "Sender")
	require.NoError(t, err)
	assert.Equal(t, "", queueID)
	require.NoError(t, s.Disconnect())

	be.mu.Lock()
	defer be.mu.Unlock()
	require.Len(t, be.messages, 1)

	got := be.messages[0]
	assert.Equal(t, "sender@example.com", got.from)
	assert.Equal(t, []string{"one@example.com", "two@example.org"}, got.to)

	// the multipart header is followed directly by the boundary start, so the
	// header block is read the way the mail store reads it
	data := strings.ReplaceAll(strings.ReplaceAll(string(got.data), "\r\n", "\n"), "\n", "\r\n")
	stored := mails.Mail{Data: data}
	msg, err := stored.Message()
	require.NoError(t, err)

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Отчёт", subject)

	from, err := msg.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "Sender", from[0].Name)
	assert.Equal(t, "sender@example.com", from[0].Address)

	assert.Equal(t, "one@example.com, two@example.org", msg.Header.Get("To"))
	assert.Equal(t, "1.0", msg.Header.Get("MIME-Version"))
	assert.Contains(t, msg.Header.Get("Content-Type"), "multipart/alternative")
}

func TestSessionAgainstGoSMTPRejectedRecipient(t *testing.T) {
	be := &recordingBackend{reject: map[string]bool{"nobody@example.com": true}}
	s := NewSession(startInteropServer(t, be))

	_, err := s.Send(message.New().SetText("x"), "nobody@example.com", "s", "sender@example.com", "")

	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, ReplyMailboxUnavail, protoErr.Actual)
	assert.Equal(t, "RCPT TO: <nobody@example.com>", protoErr.Command)
	assert.Equal(t, StateInTransaction, s.State())

	require.NoError(t, s.Reset())
	_, err = s.Send(message.New().SetText("x"), "ok@example.com", "s", "sender@example.com", "")
	require.NoError(t, err)
	require.NoError(t, s.Disconnect())

	be.mu.Lock()
	defer be.mu.Unlock()
	require.Len(t, be.messages, 1)
	assert.Equal(t, []string{"ok@example.com"}, be.messages[0].to)
}
