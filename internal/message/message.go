package message

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultCharset     = "UTF-8"
	DefaultMIMEType    = "application/octet-stream"
	DefaultDisposition = "attachment"

	boundaryPrefix = "NextPart_"
	lineLength     = 76
	eol            = "\r\n"
)

// Message is the body of a mail: an optional text part, an optional html part
// and any number of attachments.
type Message struct {
	text        string
	html        string
	attachments []Attachment
	boundary    string
}

// Attachment is a file carried by a Message. The content is kept base64
// encoded and wrapped, ready to be written into a part.
type Attachment struct {
	filename    string
	mimeType    string
	disposition string
	encoded     string
}

func New() *Message {
	return &Message{
		boundary: NewBoundary(),
	}
}

// NewBoundary returns a fresh multipart delimiter. The seed is a time based
// uuid, so two messages created in the same process never share a boundary.
func NewBoundary() string {
	seed, err := uuid.NewUUID()
	if err != nil {
		seed = uuid.NewMD5(uuid.NameSpaceOID, []byte(time.Now().String()))
	}

	sum := md5.Sum(seed[:])
	return boundaryPrefix + hex.EncodeToString(sum[:])
}

func (m *Message) SetText(text string) *Message {
	m.text = text
	return m
}

func (m *Message) SetHTML(html string) *Message {
	m.html = html
	return m
}

// AddAttachment appends a file. Empty mimeType and disposition fall back to
// application/octet-stream and attachment.
func (m *Message) AddAttachment(content []byte, filename, mimeType, disposition string) *Message {
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	if disposition == "" {
		disposition = DefaultDisposition
	}

	m.attachments = append(m.attachments, Attachment{
		filename:    filename,
		mimeType:    mimeType,
		disposition: disposition,
		encoded:     wrapBase64(content),
	})
	return m
}

func (m *Message) Text() string {
	return m.text
}

func (m *Message) HTML() string {
	return m.html
}

func (m *Message) Boundary() string {
	return m.boundary
}

// Attachments returns a copy of the attachment list.
func (m *Message) Attachments() []Attachment {
	out := make([]Attachment, len(m.attachments))
	copy(out, m.attachments)
	return out
}

func (a Attachment) Filename() string {
	return a.filename
}

func (a Attachment) MIMEType() string {
	return a.mimeType
}

func (a Attachment) Disposition() string {
	return a.disposition
}

// Encoded returns the wrapped base64 content.
func (a Attachment) Encoded() string {
	return a.encoded
}

// wrapBase64 encodes data and terminates every 76 character chunk with CRLF.
func wrapBase64(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)

	var sb strings.Builder
	sb.Grow(len(encoded) + (len(encoded)/lineLength+1)*len(eol))
	for len(encoded) > lineLength {
		sb.WriteString(encoded[:lineLength])
		sb.WriteString(eol)
		encoded = encoded[lineLength:]
	}
	if encoded != "" {
		sb.WriteString(encoded)
		sb.WriteString(eol)
	}

	return sb.String()
}
