package smtp

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/OliverSchlueter/smtp-mailer/internal/message"
)

// State of a Session's conversation with the relay.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateInTransaction
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInTransaction:
		return "in transaction"
	default:
		return "idle"
	}
}

type Configuration struct {
	Host           string
	Port           string        // defaults to 25
	LocalName      string        // HELO name, defaults to Host
	Charset        string        // defaults to UTF-8
	ConnectTimeout time.Duration // defaults to 20s
	Tracer         Tracer
	Dial           DialFunc
	DKIM           *DKIMOptions

	// used by Send when the sender arguments are empty
	DefaultFrom     string
	DefaultFromName string
}

// Session sends mail over a single connection. Connecting happens on the
// first command, and successive Send calls reuse the connection. A Session
// must not be used from more than one goroutine.
type Session struct {
	transport       *Transport
	charset         string
	dkim            *DKIMOptions
	defaultFrom     string
	defaultFromName string
	inTransaction   bool
}

func NewSession(config Configuration) *Session {
	if config.Charset == "" {
		config.Charset = message.DefaultCharset
	}

	return &Session{
		transport:       NewTransport(config),
		charset:         config.Charset,
		dkim:            config.DKIM,
		defaultFrom:     config.DefaultFrom,
		defaultFromName: config.DefaultFromName,
	}
}

func (s *Session) State() State {
	switch {
	case !s.transport.Connected():
		return StateIdle
	case s.inTransaction:
		return StateInTransaction
	default:
		return StateConnected
	}
}

func (s *Session) Connect() error {
	return s.transport.Connect()
}

func (s *Session) Disconnect() error {
	s.inTransaction = false
	return s.transport.Disconnect()
}

// Reset aborts the current transaction on the server.
func (s *Session) Reset() error {
	if _, err := s.transport.command(CmdRset.Structure); err != nil {
		return fmt.Errorf("%s command failed: %w", CmdRset.Name, err)
	}
	if _, err := s.transport.Expect(ReplyOK); err != nil {
		return fmt.Errorf("%s command failed: %w", CmdRset.Name, err)
	}

	s.inTransaction = false
	return nil
}

// Send delivers m to the comma separated recipients in to and returns the
// queue id the relay reported, or "" if its reply carried none.
// Recipients are validated before anything is written to the connection.
func (s *Session) Send(m *message.Message, to, subject, from, fromName string) (string, error) {
	env, err := s.envelope(m, to, subject, from, fromName)
	if err != nil {
		return "", err
	}
	rcpts := env.rcpts
	from = env.from

	t := s.transport

	if _, err := t.command(fmt.Sprintf(CmdMailFrom.Structure, from)); err != nil {
		return "", fmt.Errorf("%s command failed: %w", CmdMailFrom.Name, err)
	}
	if _, err := t.Expect(ReplyOK); err != nil {
		return "", fmt.Errorf("%s command failed: %w", CmdMailFrom.Name, err)
	}
	s.inTransaction = true

	for _, rcpt := range rcpts {
		if _, err := t.command(fmt.Sprintf(CmdRcptTo.Structure, rcpt)); err != nil {
			return "", fmt.Errorf("%s command failed for %s: %w", CmdRcptTo.Name, rcpt, err)
		}
		if _, err := t.Expect(ReplyOK); err != nil {
			return "", fmt.Errorf("%s command failed for %s: %w", CmdRcptTo.Name, rcpt, err)
		}
	}

	if _, err := t.command(CmdData.Structure); err != nil {
		return "", fmt.Errorf("%s command failed: %w", CmdData.Name, err)
	}
	if _, err := t.Expect(ReplyStartMailInput); err != nil {
		return "", fmt.Errorf("%s command failed: %w", CmdData.Name, err)
	}

	if err := s.writePayload(env.headers, env.body); err != nil {
		return "", fmt.Errorf("email data submission failed: %w", err)
	}

	if _, err := t.command(CmdEndOfData.Structure); err != nil {
		return "", fmt.Errorf("email data submission failed: %w", err)
	}
	text, err := t.Expect(ReplyOK)
	if err != nil {
		return "", fmt.Errorf("email data submission failed: %w", err)
	}
	s.inTransaction = false

	queueID := QueueID(text)
	slog.Info("Email sent successfully", slog.String("to", joinAddresses(rcpts)), slog.String("queue_id", queueID))

	return queueID, nil
}

// Render returns the message data Send would write for the same arguments,
// including the trailing empty line but without a DKIM signature and the end
// of data line.
func (s *Session) Render(m *message.Message, to, subject, from, fromName string) ([]byte, error) {
	env, err := s.envelope(m, to, subject, from, fromName)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, h := range env.headers {
		buf.WriteString(h + "\r\n")
	}
	buf.Write(env.body)
	buf.WriteString("\r\n\r\n")

	return buf.Bytes(), nil
}

type envelope struct {
	rcpts   []Address
	from    string
	headers []string
	body    []byte
}

// envelope validates the recipients, applies the default sender and renders
// the headers and body.
func (s *Session) envelope(m *message.Message, to, subject, from, fromName string) (*envelope, error) {
	rcpts, err := ParseAddressList(to)
	if err != nil {
		return nil, err
	}
	if len(rcpts) == 0 {
		return nil, ErrNoRecipients
	}

	if from == "" {
		from = s.defaultFrom
	}
	if fromName == "" {
		fromName = s.defaultFromName
	}

	return &envelope{
		rcpts: rcpts,
		from:  from,
		headers: []string{
			"To: " + joinAddresses(rcpts),
			"From: " + message.EncodeWord(fromName, s.charset) + " <" + from + ">",
			"Subject: " + message.EncodeWord(subject, s.charset),
			"MIME-Version: 1.0",
		},
		body: message.Compose(m, s.charset),
	}, nil
}

// writePayload writes the headers and body followed by an empty line. The
// caller finishes the payload with the end of data line.
func (s *Session) writePayload(headers []string, body []byte) error {
	t := s.transport

	if s.dkim == nil {
		for _, h := range headers {
			if _, err := t.WriteLine(h); err != nil {
				return err
			}
		}
		if _, err := t.WriteLine(string(body)); err != nil {
			return err
		}
		_, err := t.WriteLine("")
		return err
	}

	var payload bytes.Buffer
	for _, h := range headers {
		payload.WriteString(h + "\r\n")
	}
	payload.Write(body)
	payload.WriteString("\r\n")
	if !bytes.Contains(payload.Bytes(), []byte("\r\n\r\n")) {
		payload.WriteString("\r\n")
	}

	signed, err := signPayload(payload.Bytes(), s.dkim)
	if err != nil {
		return err
	}

	if _, err := t.WriteLine(strings.TrimRight(string(signed), "\r\n")); err != nil {
		return err
	}
	_, err = t.WriteLine("")
	return err
}
