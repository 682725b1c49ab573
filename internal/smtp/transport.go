package smtp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

const (
	DefaultPort           = "25"
	DefaultConnectTimeout = 20 * time.Second
)

var ErrNotConnected = errors.New("not connected")

// DialFunc opens the TCP stream to the relay.
type DialFunc func(network, address string, timeout time.Duration) (net.Conn, error)

// Transport owns the socket to one SMTP server. Every operation blocks until
// the peer answers or the stream fails; there is no read timeout once the
// connection is established.
type Transport struct {
	host           string
	port           string
	localName      string
	connectTimeout time.Duration
	dial           DialFunc
	tracer         Tracer

	conn        net.Conn
	reader      *bufio.Reader
	writer      *bufio.Writer
	lastCommand string
}

func NewTransport(config Configuration) *Transport {
	if config.Port == "" {
		config.Port = DefaultPort
	}
	if config.LocalName == "" {
		config.LocalName = config.Host
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.Dial == nil {
		config.Dial = net.DialTimeout
	}

	return &Transport{
		host:           config.Host,
		port:           config.Port,
		localName:      config.LocalName,
		connectTimeout: config.ConnectTimeout,
		dial:           config.Dial,
		tracer:         config.Tracer,
	}
}

func (t *Transport) Addr() string {
	return net.JoinHostPort(t.host, t.port)
}

func (t *Transport) Connected() bool {
	return t.conn != nil
}

// Connect opens the connection and runs the greeting and HELO exchange.
// It does nothing when already connected. If the handshake fails the
// socket is closed again.
func (t *Transport) Connect() error {
	if t.Connected() {
		return nil
	}

	conn, err := t.dial("tcp", t.Addr(), t.connectTimeout)
	if err != nil {
		return &ConnectionError{Addr: t.Addr(), Err: err}
	}

	// the connect timeout must not leak into the conversation
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return &ConnectionError{Addr: t.Addr(), Err: err}
	}

	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.writer = bufio.NewWriter(conn)
	t.lastCommand = ""

	if _, err := t.Expect(ReplyServiceReady); err != nil {
		t.close()
		return fmt.Errorf("failed to read server greeting: %w", err)
	}

	if _, err := t.command(fmt.Sprintf(CmdHelo.Structure, t.localName)); err != nil {
		t.close()
		return fmt.Errorf("%s command failed: %w", CmdHelo.Name, err)
	}
	if _, err := t.Expect(ReplyOK); err != nil {
		t.close()
		return fmt.Errorf("%s command failed: %w", CmdHelo.Name, err)
	}

	return nil
}

// Disconnect sends QUIT and closes the socket. The socket is closed and the
// transport is disconnected even if QUIT fails; that error is still returned.
func (t *Transport) Disconnect() error {
	if !t.Connected() {
		return nil
	}
	defer t.close()

	if _, err := t.command(CmdQuit.Structure); err != nil {
		return fmt.Errorf("%s command failed: %w", CmdQuit.Name, err)
	}
	if _, err := t.Expect(ReplyServiceClosing); err != nil {
		return fmt.Errorf("%s command failed: %w", CmdQuit.Name, err)
	}

	return nil
}

// WriteLine connects if needed and writes text followed by CRLF.
func (t *Transport) WriteLine(text string) (int, error) {
	if err := t.Connect(); err != nil {
		return 0, err
	}

	t.trace(traceOutbound + strings.Trim(text, "\r\n"))

	n, err := t.writer.WriteString(text + "\r\n")
	if err != nil {
		return n, fmt.Errorf("failed to write line: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return n, fmt.Errorf("failed to flush writer: %w", err)
	}

	return n, nil
}

// ReadLine blocks until one line is available and returns it without its
// line terminator.
func (t *Transport) ReadLine() (string, error) {
	if !t.Connected() {
		return "", &SocketReadError{Err: ErrNotConnected}
	}

	line, err := t.reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", &SocketReadError{Err: err}
	}

	t.trace(traceInbound + strings.TrimSpace(line))

	return strings.TrimRight(line, "\r\n"), nil
}

// Expect reads one reply and fails with a ProtocolError unless it carries
// code. The reply text is returned on success.
func (t *Transport) Expect(code int) (string, error) {
	line, err := t.ReadLine()
	if err != nil {
		return "", err
	}

	resp, err := ParseResponse(line)
	if err != nil {
		return "", &SocketReadError{Err: err}
	}

	if resp.Code != code {
		return "", &ProtocolError{
			Command:  t.lastCommand,
			Expected: code,
			Actual:   resp.Code,
			Reply:    line,
		}
	}

	return resp.Text, nil
}

// LastCommand is the command line most recently sent.
func (t *Transport) LastCommand() string {
	return t.lastCommand
}

func (t *Transport) command(cmd string) (int, error) {
	if err := t.Connect(); err != nil {
		return 0, err
	}

	t.lastCommand = cmd
	return t.WriteLine(cmd)
}

func (t *Transport) trace(line string) {
	if t.tracer != nil {
		t.tracer.Trace(line)
	}
}

func (t *Transport) close() {
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = nil
	t.reader = nil
	t.writer = nil
}
