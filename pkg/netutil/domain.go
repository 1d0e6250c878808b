package netutil

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/idna"
)

const (
	maxDomainNameSize = 253
)

// ValidateDomainName validates the string value as a domain name. A trailing
// dot, as in fully qualified names, is allowed.
func ValidateDomainName(value string) error {
	value = strings.TrimSuffix(value, ".")

	switch {
	case len(value) == 0:
		return errors.New("domain name is empty")
	case len(value) > maxDomainNameSize:
		return errors.New("domain name length exceeds limit")
	}

	if _, err := idna.Registration.ToASCII(value); err != nil {
		return errors.Wrap(err, "domain name is invalid")
	}
	return nil
}
