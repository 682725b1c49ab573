package smtp

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/emersion/go-msgauth/dkim"
)

// DKIMOptions enables signing of outgoing messages.
type DKIMOptions struct {
	Domain   string // must match the From domain
	Selector string // DNS selector, "<selector>._domainkey.<domain>"
	Signer   crypto.Signer
}

// LoadDKIMKey reads a PEM encoded PKCS#1 or PKCS#8 RSA private key.
func LoadDKIMKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM data in %s", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key in %s is not an RSA key", path)
	}

	return key, nil
}

var dkimHeaderKeys = []string{
	"from",
	"to",
	"subject",
	"mime-version",
}

// signPayload prepends a DKIM-Signature header to a complete message.
func signPayload(payload []byte, opts *DKIMOptions) ([]byte, error) {
	signOpts := &dkim.SignOptions{
		Domain:     opts.Domain,
		Selector:   opts.Selector,
		Signer:     opts.Signer,
		HeaderKeys: dkimHeaderKeys,
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(payload), signOpts); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	return signed.Bytes(), nil
}
