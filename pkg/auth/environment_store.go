package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore. KONADL_PASSWORD_HASH wins
// over KONADL_PASSWORD when both are set.
const (
	EnvLogin        = "KONADL_LOGIN"
	EnvPassword     = "KONADL_PASSWORD"
	EnvPasswordHash = "KONADL_PASSWORD_HASH"
)

// EnvironmentStore is a read-only store backed by environment variables
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account. An empty username matches it;
// any other name must equal KONADL_LOGIN.
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	login := os.Getenv(EnvLogin)
	hash := os.Getenv(EnvPasswordHash)
	if hash == "" {
		if pwd := os.Getenv(EnvPassword); pwd != "" {
			hash = HashPassword(pwd)
		}
	}

	if login == "" || hash == "" {
		return nil, ErrCredentialsNotFound
	}
	if username != "" && username != login {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Username:     login,
		PasswordHash: hash,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}
