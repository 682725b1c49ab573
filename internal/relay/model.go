package relay

import "strings"

// Session is the state of one client connection.
type Session struct {
	Hostname     string
	RemoteAddr   string
	HeloReceived bool
	Mail         Mail
}

// Mail is the transaction in progress.
type Mail struct {
	From        string
	FromSet     bool
	To          []string
	UserIDs     []string
	DataBuffer  []string
	DataSize    int64
	TooLarge    bool
	ReadingData bool
}

// Data joins the received lines with CRLF.
func (m *Mail) Data() string {
	if len(m.DataBuffer) == 0 {
		return ""
	}
	return strings.Join(m.DataBuffer, "\r\n") + "\r\n"
}

func (m *Mail) Reset() {
	*m = Mail{}
}

func (m *Mail) hasUser(id string) bool {
	for _, existing := range m.UserIDs {
		if existing == id {
			return true
		}
	}
	return false
}
