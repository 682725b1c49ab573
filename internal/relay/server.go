package relay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/smtp-mailer/internal/mails"
	"github.com/OliverSchlueter/smtp-mailer/internal/smtp"
	"github.com/OliverSchlueter/smtp-mailer/internal/users"
	"github.com/docker/go-units"
	"github.com/oklog/ulid/v2"
)

const (
	DefaultAddr           = ":25"
	DefaultMaxMessageSize = 10 * units.MiB
	DefaultMaxRecipients  = 100

	maxLineLength = 1000
	idleTimeout   = 2 * time.Minute
)

var ErrNotListening = errors.New("server is not listening")

// Server accepts mail for local users and files it into their mailboxes.
type Server struct {
	hostname       string
	addr           string
	maxMessageSize int64
	maxRecipients  int
	users          *users.Store
	mails          *mails.Store

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

type Configuration struct {
	Hostname       string
	Addr           string // listen address, defaults to :25
	MaxMessageSize int64  // bytes, defaults to 10 MiB
	MaxRecipients  int
	Users          *users.Store
	Mails          *mails.Store
}

func NewServer(config Configuration) *Server {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.MaxRecipients <= 0 {
		config.MaxRecipients = DefaultMaxRecipients
	}

	return &Server{
		hostname:       config.Hostname,
		addr:           config.Addr,
		maxMessageSize: config.MaxMessageSize,
		maxRecipients:  config.MaxRecipients,
		users:          config.Users,
		mails:          config.Mails,
		conns:          map[net.Conn]struct{}{},
	}
}

// Listen binds the listen address without accepting connections yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	return nil
}

// Start listens and serves until Close is called.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections on the bound listener. It returns nil once the
// server is closed.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	if listener == nil {
		return ErrNotListening
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("Failed to accept connection", sloki.WrapError(err))
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}

		go func() {
			defer s.untrack(conn)
			s.handle(conn)
		}()
	}
}

// Addr is the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Close stops accepting, drops open connections and waits for their
// handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	session := &Session{}
	session.RemoteAddr = conn.RemoteAddr().String()

	slog.Debug("New connection established", "remote_addr", conn.RemoteAddr().String(), "protocol", conn.RemoteAddr().Network())

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	writeLine(w, fmt.Sprintf(StatusServiceReady, s.hostname))

	for {
		if err := conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			slog.Error("Failed to set connection deadline", sloki.WrapError(err))
			return
		}

		line, err := r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosed() {
				slog.Warn("Failed to read from connection", sloki.WrapError(err))
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")

		if session.Mail.ReadingData {
			s.handleDataLine(session, w, line)
			continue
		}

		if len(line) > maxLineLength {
			slog.Warn("Received line exceeds maximum length", "line_length", len(line))
			writeLine(w, StatusLineTooLong)
			continue
		}

		slog.Debug("C: " + line)

		upper := strings.ToUpper(line)

		switch {
		// EHLO
		case strings.HasPrefix(upper, smtp.CmdEhlo.Prefix):
			s.handleEhlo(session, w, line)

		// HELO
		case strings.HasPrefix(upper, smtp.CmdHelo.Prefix):
			s.handleHelo(session, w, line)

		// MAIL FROM
		case strings.HasPrefix(upper, smtp.CmdMailFrom.Prefix):
			s.handleMailFrom(session, w, line)

		// RCPT TO
		case strings.HasPrefix(upper, smtp.CmdRcptTo.Prefix):
			s.handleRcptTo(session, w, line)

		// DATA
		case upper == smtp.CmdData.Prefix:
			s.handleData(session, w, line)

		// RSET
		case upper == smtp.CmdRset.Prefix:
			session.Mail.Reset()
			writeLine(w, StatusOK)

		// QUIT
		case upper == smtp.CmdQuit.Prefix:
			writeLine(w, fmt.Sprintf(StatusConnClosed, s.hostname))
			slog.Debug("Connection closed", "remote_addr", session.RemoteAddr)
			return

		// NOOP
		case upper == smtp.CmdNoop.Prefix || strings.HasPrefix(upper, smtp.CmdNoop.Prefix+" "):
			writeLine(w, StatusOK)

		default:
			writeLine(w, StatusBadCommand)
		}
	}
}

func (s *Server) handleEhlo(session *Session, w *bufio.Writer, line string) {
	clientHostname := strings.TrimSpace(line[len(smtp.CmdEhlo.Prefix):])
	if clientHostname == "" {
		writeLine(w, StatusSyntaxError)
		return
	}

	session.HeloReceived = true
	session.Hostname = clientHostname
	session.Mail.Reset()

	writeLine(w, fmt.Sprintf(StatusEhloGreeting, s.hostname, clientHostname))
	writeLine(w, fmt.Sprintf(StatusEhloSize, s.maxMessageSize))
}

func (s *Server) handleHelo(session *Session, w *bufio.Writer, line string) {
	clientHostname := strings.TrimSpace(line[len(smtp.CmdHelo.Prefix):])
	if clientHostname == "" {
		writeLine(w, StatusSyntaxError)
		return
	}

	session.HeloReceived = true
	session.Hostname = clientHostname
	session.Mail.Reset()

	writeLine(w, fmt.Sprintf(StatusGreeting, s.hostname, clientHostname))
}

func (s *Server) handleMailFrom(session *Session, w *bufio.Writer, line string) {
	if !session.HeloReceived {
		slog.Warn(fmt.Sprintf("%s command received before %s", smtp.CmdMailFrom.Name, smtp.CmdHelo.Name))
		writeLine(w, fmt.Sprintf(StatusBadSequence, smtp.CmdHelo.Name))
		return
	}

	if session.Mail.FromSet {
		writeLine(w, fmt.Sprintf(StatusBadSequence, smtp.CmdRset.Name))
		return
	}

	args := strings.Fields(line[len(smtp.CmdMailFrom.Prefix):])
	if len(args) == 0 {
		writeLine(w, StatusSyntaxError)
		return
	}

	for _, param := range args[1:] {
		key, value, ok := strings.Cut(param, "=")
		if !ok || !strings.EqualFold(key, "SIZE") {
			continue
		}

		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			writeLine(w, StatusSyntaxError)
			return
		}
		if size > s.maxMessageSize {
			writeLine(w, fmt.Sprintf(StatusMessageTooLarge, units.BytesSize(float64(s.maxMessageSize))))
			return
		}
	}

	// the null sender is allowed for bounces
	addr := strings.Trim(args[0], "<>")
	if addr != "" {
		if _, err := smtp.ParseAddress(addr); err != nil {
			slog.Warn(fmt.Sprintf("Invalid %s address: %s", smtp.CmdMailFrom.Name, addr))
			writeLine(w, StatusSyntaxError)
			return
		}
	}

	session.Mail.From = addr
	session.Mail.FromSet = true
	session.Mail.To = nil
	session.Mail.UserIDs = nil

	writeLine(w, StatusOK)
}

func (s *Server) handleRcptTo(session *Session, w *bufio.Writer, line string) {
	if !session.Mail.FromSet {
		writeLine(w, fmt.Sprintf(StatusBadSequence, smtp.CmdMailFrom.Name))
		return
	}

	if len(session.Mail.To) >= s.maxRecipients {
		slog.Warn(fmt.Sprintf("Maximum recipients exceeded for session from %s", session.RemoteAddr))
		writeLine(w, StatusTooManyRecipients)
		return
	}

	args := strings.Fields(line[len(smtp.CmdRcptTo.Prefix):])
	if len(args) == 0 {
		writeLine(w, StatusSyntaxError)
		return
	}
	recipient := strings.Trim(args[0], "<>")

	u, err := s.users.GetByEmail(recipient)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			slog.Debug("Rejected unknown recipient", "recipient", recipient)
			writeLine(w, StatusNoSuchUser)
			return
		}

		slog.Error("Failed to get user by email", sloki.WrapError(err))
		writeLine(w, StatusLocalError)
		return
	}

	session.Mail.To = append(session.Mail.To, recipient)
	if !session.Mail.hasUser(u.ID) {
		session.Mail.UserIDs = append(session.Mail.UserIDs, u.ID)
	}

	writeLine(w, StatusOK)
}

func (s *Server) handleData(session *Session, w *bufio.Writer, line string) {
	if !session.Mail.FromSet {
		writeLine(w, fmt.Sprintf(StatusBadSequence, smtp.CmdMailFrom.Name))
		return
	}

	if len(session.Mail.To) == 0 {
		slog.Warn(fmt.Sprintf("%s command received without any recipients", smtp.CmdData.Name))
		writeLine(w, fmt.Sprintf(StatusBadSequence, smtp.CmdRcptTo.Name))
		return
	}

	session.Mail.ReadingData = true
	writeLine(w, StatusStartMailInput)
}

// handleDataLine buffers one payload line, or finishes the transaction on the
// end of data line.
func (s *Server) handleDataLine(session *Session, w *bufio.Writer, line string) {
	if line != smtp.CmdEndOfData.Prefix {
		line = strings.TrimPrefix(line, ".")

		session.Mail.DataSize += int64(len(line)) + 2
		if session.Mail.DataSize > s.maxMessageSize {
			session.Mail.TooLarge = true
			session.Mail.DataBuffer = nil
		}
		if !session.Mail.TooLarge {
			session.Mail.DataBuffer = append(session.Mail.DataBuffer, line)
		}
		return
	}

	defer session.Mail.Reset()

	if session.Mail.TooLarge {
		slog.Warn("Rejected oversized message", "remote_addr", session.RemoteAddr, "size", session.Mail.DataSize)
		writeLine(w, fmt.Sprintf(StatusMessageTooLarge, units.BytesSize(float64(s.maxMessageSize))))
		return
	}

	queueID, err := s.deliver(&session.Mail)
	if err != nil {
		slog.Error("Failed to save incoming email", sloki.WrapError(err))
		writeLine(w, StatusLocalError)
		return
	}

	slog.Info("Incoming email received", "queue_id", queueID, "from", session.Mail.From, "to", session.Mail.To)
	writeLine(w, fmt.Sprintf(StatusQueued, queueID))
}

// deliver stores one copy of the message per recipient user and returns the
// queue id shared by all copies.
func (s *Server) deliver(m *Mail) (string, error) {
	queueID := ulid.Make().String()
	data := m.Data()

	for _, userID := range m.UserIDs {
		_, err := s.mails.CreateMail(mails.Mail{
			QueueID: queueID,
			UserID:  userID,
			From:    m.From,
			To:      slices.Clone(m.To),
			Data:    data,
		})
		if err != nil {
			return "", fmt.Errorf("could not store mail for user %s: %w", userID, err)
		}
	}

	return queueID, nil
}

func writeLine(w *bufio.Writer, line string) {
	if _, err := w.WriteString(line + "\r\n"); err != nil {
		slog.Error("Failed to write to connection", sloki.WrapError(err))
		return
	}
	if err := w.Flush(); err != nil {
		slog.Error("Failed to flush writer", sloki.WrapError(err))
		return
	}

	slog.Debug("S: " + line)
}
