package smtp

import (
	"regexp"
	"strings"
)

var (
	// "Display Name <addr>"
	extendedAddressPattern = regexp.MustCompile(`^(.+)\s<(.+)>$`)

	addressPattern = regexp.MustCompile(`(?i)^(?:` +
		// dot-atom local part
		"[a-z0-9!#$%&'*+/=?^_`{|}~-]+(?:\\.[a-z0-9!#$%&'*+/=?^_`{|}~-]+)*" +
		// quoted local part
		`|"(?:[\x01-\x08\x0b\x0c\x0e-\x1f\x21\x23-\x5b\x5d-\x7f]|\\[\x01-\x09\x0b\x0c\x0e-\x7f])*"` +
		`)@(?:` +
		// dotted domain labels
		`(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z0-9](?:[a-z0-9-]*[a-z0-9])?` +
		// IPv4 or general address literal
		`|\[(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?` +
		`|[a-z0-9-]*[a-z0-9]:(?:[\x01-\x08\x0b\x0c\x0e-\x1f\x21-\x5a\x53-\x7f]|\\[\x01-\x09\x0b\x0c\x0e-\x7f])+)\]` +
		`)$`)
)

// Address is a validated bare mailbox, local-part@domain.
type Address string

func (a Address) String() string {
	return string(a)
}

// ParseAddress validates a single recipient. The extended form
// "Name <local@domain>" is accepted and reduced to the bare address.
func ParseAddress(raw string) (Address, error) {
	addr := strings.TrimSpace(raw)

	if m := extendedAddressPattern.FindStringSubmatch(addr); m != nil {
		addr = m[2]
	}

	if !addressPattern.MatchString(addr) {
		return "", &AddressError{Raw: raw}
	}

	return Address(addr), nil
}

// ParseAddressList splits a comma separated recipient string. Empty entries
// are skipped, the first invalid entry aborts the parse.
func ParseAddressList(list string) ([]Address, error) {
	var addrs []Address
	for _, token := range strings.Split(list, ",") {
		if strings.TrimSpace(token) == "" {
			continue
		}

		addr, err := ParseAddress(token)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}

	return addrs, nil
}

func joinAddresses(addrs []Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}
