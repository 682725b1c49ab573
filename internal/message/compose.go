package message

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	TypeTextPlain = "text/plain"
	TypeTextHTML  = "text/html"
)

// part is one section of a composed body: its header lines and the already
// wrapped base64 payload.
type part struct {
	header []string
	body   string
}

// layout describes the shape of a body. A multipart layout wraps its parts in
// boundaries, a single layout has exactly one part and no boundary at all.
type layout struct {
	multipart bool
	parts     []part
}

// Compose renders m as the MIME payload written after the top level mail
// headers. The result has no trailing line terminator.
func Compose(m *Message, charset string) []byte {
	if charset == "" {
		charset = DefaultCharset
	}

	return []byte(planLayout(m, charset).render(m.boundary))
}

// EncodeWord applies RFC 2047 B encoding to text, also when it is plain ASCII.
func EncodeWord(text, charset string) string {
	if charset == "" {
		charset = DefaultCharset
	}

	return "=?" + charset + "?B?" + base64.StdEncoding.EncodeToString([]byte(text)) + "?="
}

func planLayout(m *Message, charset string) layout {
	hasText := m.text != ""
	hasHTML := m.html != ""

	switch {
	case len(m.attachments) > 0:
		l := layout{multipart: true}
		if hasText {
			l.parts = append(l.parts, textPart(m.text, TypeTextPlain, charset))
		}
		if hasHTML {
			l.parts = append(l.parts, textPart(m.html, TypeTextHTML, charset))
		}
		for _, a := range m.attachments {
			l.parts = append(l.parts, filePart(a))
		}
		return l

	case hasText && hasHTML:
		return layout{
			multipart: true,
			parts: []part{
				textPart(m.text, TypeTextPlain, charset),
				textPart(m.html, TypeTextHTML, charset),
			},
		}

	case hasHTML:
		return layout{parts: []part{textPart(m.html, TypeTextHTML, charset)}}

	default:
		// also covers a message without any content: an empty text part
		return layout{parts: []part{textPart(m.text, TypeTextPlain, charset)}}
	}
}

func textPart(content, contentType, charset string) part {
	return part{
		header: []string{
			"Content-Transfer-Encoding: base64",
			fmt.Sprintf("Content-Type: %s; charset=%s", contentType, charset),
		},
		body: wrapBase64([]byte(content)),
	}
}

func filePart(a Attachment) part {
	return part{
		header: []string{
			"Content-Transfer-Encoding: base64",
			fmt.Sprintf("Content-Type: %s; name=%s", a.mimeType, a.filename),
			fmt.Sprintf("Content-Disposition: %s; filename=%s", a.disposition, a.filename),
		},
		body: a.encoded,
	}
}

func (l layout) render(boundary string) string {
	var sb strings.Builder

	if l.multipart {
		sb.WriteString("Content-type: multipart/alternative; boundary=" + boundary + eol)
	}

	for _, p := range l.parts {
		if l.multipart {
			sb.WriteString("--" + boundary + eol)
		}
		for _, h := range p.header {
			sb.WriteString(h + eol)
		}
		sb.WriteString(eol)
		sb.WriteString(p.body)
		sb.WriteString(eol + eol)
	}

	if l.multipart {
		sb.WriteString("--" + boundary + "--" + eol)
	}

	return strings.TrimRight(sb.String(), eol)
}
