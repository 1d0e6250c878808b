package netutil

import (
	"net"
	"net/url"

	"github.com/pkg/errors"
)

// ValidateHttpUrl validates a URL for an HTTP scheme. The host may be a
// domain name or an IP address.
func ValidateHttpUrl(value string, requireSecureConnection bool) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return err
	}

	if requireSecureConnection && parsed.Scheme != "https" {
		return errors.New("url scheme must be https")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("url scheme must be http or https")
	}

	hostname := parsed.Hostname()
	if len(hostname) == 0 {
		return errors.New("host component missing")
	}
	if net.ParseIP(hostname) != nil {
		return nil
	}
	if err := ValidateDomainName(hostname); err != nil {
		return errors.Wrap(err, "host is not a valid domain name")
	}
	return nil
}
