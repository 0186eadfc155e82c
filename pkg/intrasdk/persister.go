package intrasdk

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Persister stores a token pair outside the process so a session can survive
// restarts.
type Persister interface {
	Load() (TokenPair, error)
	Save(pair TokenPair) error
	Delete() error
}

const (
	DefaultKeyringService = "intra"
	DefaultKeyringAccount = "session"
)

// KeyringPersister keeps the token pair in the operating system keychain.
type KeyringPersister struct {
	Service string
	Account string
}

// NewKeyringPersister returns a persister for the given keychain entry,
// falling back to the package defaults for empty values.
func NewKeyringPersister(service, account string) *KeyringPersister {
	if service == "" {
		service = DefaultKeyringService
	}
	if account == "" {
		account = DefaultKeyringAccount
	}
	return &KeyringPersister{Service: service, Account: account}
}

// Load returns the stored pair, or a zero pair when nothing is stored.
func (k *KeyringPersister) Load() (TokenPair, error) {
	data, err := keyring.Get(k.Service, k.Account)
	if errors.Is(err, keyring.ErrNotFound) {
		return TokenPair{}, nil
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("read keyring: %w", err)
	}

	var pair TokenPair
	if err := json.Unmarshal([]byte(data), &pair); err != nil {
		return TokenPair{}, fmt.Errorf("decode stored tokens: %w", err)
	}
	return pair, nil
}

func (k *KeyringPersister) Save(pair TokenPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	if err := keyring.Set(k.Service, k.Account, string(data)); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	return nil
}

// Delete removes the stored pair. A missing entry is not an error.
func (k *KeyringPersister) Delete() error {
	err := keyring.Delete(k.Service, k.Account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete keyring entry: %w", err)
	}
	return nil
}
