package smtp

import (
	"fmt"
	"regexp"
	"strconv"
)

// queueIDPattern matches the id a relay appends to its final DATA reply,
// e.g. "250 2.0.0 Ok: queued as 4F1A2B3C".
var queueIDPattern = regexp.MustCompile(`([0-9A-Z]{4,})$`)

// Response is a single server reply line.
type Response struct {
	Code int
	Text string
}

// ParseResponse splits a reply line into its three digit code and the text
// after the separator. Continuation lines are not joined; callers only ever
// look at one line.
func ParseResponse(line string) (Response, error) {
	if len(line) < 4 {
		return Response{}, fmt.Errorf("%w: %q", ErrMalformedResponse, line)
	}

	for i := 0; i < 3; i++ {
		if line[i] < '0' || line[i] > '9' {
			return Response{}, fmt.Errorf("%w: invalid status code in %q", ErrMalformedResponse, line)
		}
	}

	code, err := strconv.Atoi(line[:3])
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return Response{
		Code: code,
		Text: line[4:],
	}, nil
}

// QueueID extracts the trailing queue identifier from a reply text, or
// returns "" if there is none.
func QueueID(text string) string {
	m := queueIDPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
