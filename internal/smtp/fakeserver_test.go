package smtp

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
)

var defaultReplies = map[string]string{
	"BANNER": "220 test.server.com ESMTP ready",
	"HELO":   "250 test.server.com",
	"MAIL":   "250 OK",
	"RCPT":   "250 OK",
	"DATA":   "354 Start mail input; end with <CRLF>.<CRLF>",
	".":      "250 2.0.0 Ok: queued as ABC123XYZ",
	"RSET":   "250 OK",
	"NOOP":   "250 OK",
	"QUIT":   "221 test.server.com closing connection",
}

// fakeServer answers every command verb with a canned reply and records what
// the client sent.
type fakeServer struct {
	ln      net.Listener
	replies map[string]string

	mu       sync.Mutex
	commands []string
	payloads []string
	accepted int
}

func newFakeServer(t *testing.T, overrides map[string]string) *fakeServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	replies := map[string]string{}
	for k, v := range defaultReplies {
		replies[k] = v
	}
	for k, v := range overrides {
		replies[k] = v
	}

	s := &fakeServer{ln: ln, replies: replies}
	go s.serve()
	t.Cleanup(func() { ln.Close() })

	return s
}

func (s *fakeServer) config() Configuration {
	host, port, _ := net.SplitHostPort(s.ln.Addr().String())
	return Configuration{Host: host, Port: port}
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.accepted++
		s.mu.Unlock()

		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	reply := func(line string) {
		if line == "" {
			// scripted hang up
			conn.Close()
			return
		}
		w.WriteString(line + "\r\n")
		w.Flush()
	}

	reply(s.replies["BANNER"])

	var data []string
	reading := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		if reading {
			if line == "." {
				reading = false
				s.mu.Lock()
				s.payloads = append(s.payloads, strings.Join(data, "\r\n"))
				s.mu.Unlock()
				data = nil
				reply(s.replies["."])
				continue
			}
			data = append(data, line)
			continue
		}

		s.mu.Lock()
		s.commands = append(s.commands, line)
		s.mu.Unlock()

		verb := strings.ToUpper(strings.Fields(line + " x")[0])
		answer, ok := s.replies[verb]
		if !ok {
			answer = "500 Unrecognized command"
		}
		reply(answer)

		if verb == "DATA" && strings.HasPrefix(answer, "354") {
			reading = true
		}
		if verb == "QUIT" {
			return
		}
	}
}

func (s *fakeServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *fakeServer) Payloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.payloads...)
}

func (s *fakeServer) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}
