package harness

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/pkg/errors"

	"github.com/code-payments/chain-fuzzer/pkg/app"
	"github.com/code-payments/chain-fuzzer/pkg/chain"
)

// LoadKeyStore loads the keys at fileURL. Blank lines and lines starting with
// # are ignored.
func LoadKeyStore(fileURL, passphrase string) (*chain.KeyStore, error) {
	contents, err := app.LoadFile(fileURL)
	if err != nil {
		return nil, err
	}
	return ParseKeyStore(contents, passphrase)
}

func ParseKeyStore(contents []byte, passphrase string) (*chain.KeyStore, error) {
	keys := chain.NewKeyStore()

	scanner := bufio.NewScanner(bytes.NewReader(contents))
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if len(text) == 0 || strings.HasPrefix(text, "#") {
			continue
		}

		if _, err := keys.AddFromString(text, passphrase); err != nil {
			return nil, errors.Wrapf(err, "invalid key on line %d", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading keys")
	}

	return keys, nil
}
