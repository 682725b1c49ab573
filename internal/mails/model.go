package mails

import (
	"net/mail"
	"strings"
	"time"
)

const DefaultMailboxName = "INBOX"

type Mailbox struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Flags  []string `json:"flags"`
}

// Mail is one accepted message as delivered to a single user's mailbox.
type Mail struct {
	ID      string    `json:"id"`
	QueueID string    `json:"queue_id"`
	UserID  string    `json:"user_id"`
	Mailbox string    `json:"mailbox"`
	From    string    `json:"from"`
	To      []string  `json:"to"`
	Date    time.Time `json:"date"`
	Size    int64     `json:"size"`
	Data    string    `json:"data"`
}

// Message parses Data as an RFC 5322 message. Lines in the header block that
// are not header fields, like a boundary start written right after a
// multipart header, are skipped.
func (m *Mail) Message() (*mail.Message, error) {
	head, body, _ := strings.Cut(m.Data, "\r\n\r\n")

	var fields []string
	for _, line := range strings.Split(head, "\r\n") {
		continuation := strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
		if continuation && len(fields) > 0 {
			fields = append(fields, line)
			continue
		}
		if !strings.HasPrefix(line, "--") && strings.Contains(line, ":") {
			fields = append(fields, line)
		}
	}

	return mail.ReadMessage(strings.NewReader(strings.Join(fields, "\r\n") + "\r\n\r\n" + body))
}
