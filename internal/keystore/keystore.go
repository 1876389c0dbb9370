package keystore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	DefaultService  = "dodo"
	secretDelimiter = `<\/&>`
)

var ErrMalformedSecret = errors.New("malformed keyring entry")

// Credentials are the API keys of one exchange account.
// CustomerID is only used by exchanges that sign requests with it.
type Credentials struct {
	APIKey     string
	Secret     string
	CustomerID string
}

// Empty reports whether no keys were stored.
func (c Credentials) Empty() bool {
	return c.APIKey == "" && c.Secret == ""
}

// Store keeps exchange credentials in the operating system keyring.
type Store struct {
	Service string
}

// New returns a Store under the default service name.
func New() *Store {
	return &Store{Service: DefaultService}
}

// SetKey saves the API key and secret of an exchange, plus the customer id if given.
func (s *Store) SetKey(exchange, apiKey, secret, customerID string) error {
	parts := []string{apiKey, secret}
	if customerID != "" {
		parts = append(parts, customerID)
	}

	if err := keyring.Set(s.Service, strings.ToLower(exchange), strings.Join(parts, secretDelimiter)); err != nil {
		return fmt.Errorf("store keys for %s: %w", exchange, err)
	}
	return nil
}

// ReadKeys loads the credentials of an exchange. Exchanges without a
// keyring entry get empty credentials so public commands still work.
func (s *Store) ReadKeys(exchange string) (Credentials, error) {
	secret, err := keyring.Get(s.Service, strings.ToLower(exchange))
	if errors.Is(err, keyring.ErrNotFound) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("read keys for %s: %w", exchange, err)
	}

	parts := strings.Split(secret, secretDelimiter)
	switch len(parts) {
	case 2:
		return Credentials{APIKey: parts[0], Secret: parts[1]}, nil
	case 3:
		return Credentials{APIKey: parts[0], Secret: parts[1], CustomerID: parts[2]}, nil
	default:
		return Credentials{}, fmt.Errorf("%w for %s", ErrMalformedSecret, exchange)
	}
}
