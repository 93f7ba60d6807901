package auth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory CredentialStore
type memStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	storeErr error
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]Account)}
}

func (m *memStore) Store(account *Account) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.Username] = *account
	return nil
}

func (m *memStore) Retrieve(username string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &a, nil
}

func (m *memStore) List() ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Account
	for _, a := range m.accounts {
		acc := a
		out = append(out, &acc)
	}
	return out, nil
}

func (m *memStore) Delete(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, username)
	return nil
}

func (m *memStore) Exists(username string) bool {
	_, err := m.Retrieve(username)
	return err == nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvLogin, EnvPassword, EnvPasswordHash} {
		t.Setenv(k, "")
	}
}

func TestHashPassword(t *testing.T) {
	assert.Equal(t, "1fc0adf8544b5cb927ac1895f8e67c042e6e8dba", HashPassword("hunter2"))
	assert.Len(t, HashPassword(""), 40)
	assert.NotEqual(t, HashPassword("a"), HashPassword("b"))
}

func TestAccountCredentials(t *testing.T) {
	a := &Account{Username: "alice", PasswordHash: "abc"}
	creds := a.Credentials()
	require.NotNil(t, creds)
	assert.Equal(t, "alice", creds.Login)
	assert.Equal(t, "abc", creds.PasswordHash)

	var none *Account
	assert.Nil(t, none.Credentials())
}

func TestManagerLifecycle(t *testing.T) {
	clearEnv(t)
	store := newMemStore()
	manager := NewManagerWithStores(store)

	require.NoError(t, manager.Store(&Account{Username: "alice", PasswordHash: HashPassword("pw")}))

	got, err := manager.Retrieve("alice")
	require.NoError(t, err)
	assert.Equal(t, HashPassword("pw"), got.PasswordHash)
	assert.False(t, got.LastModified.IsZero())

	accounts, err := manager.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	require.NoError(t, manager.Delete("alice"))
	_, err = manager.Retrieve("alice")
	assert.True(t, errors.Is(err, ErrCredentialsNotFound))

	err = manager.Delete("alice")
	assert.True(t, errors.Is(err, ErrCredentialsNotFound))
}

func TestManagerStoreValidation(t *testing.T) {
	manager := NewManagerWithStores(newMemStore())
	assert.Error(t, manager.Store(&Account{PasswordHash: "x"}))
	assert.Error(t, manager.Store(&Account{Username: "bob"}))
	assert.Error(t, manager.Store(nil))
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := newMemStore()
	broken.storeErr = errors.New("keychain locked")
	fallback := newMemStore()
	manager := NewManagerWithStores(broken, fallback)

	require.NoError(t, manager.Store(&Account{Username: "carol", PasswordHash: "h"}))
	assert.True(t, fallback.Exists("carol"))
	assert.False(t, broken.Exists("carol"))
}

func TestManagerListSortedAndNewestWins(t *testing.T) {
	clearEnv(t)
	a, b := newMemStore(), newMemStore()
	old := time.Now().Add(-time.Hour)
	require.NoError(t, a.Store(&Account{Username: "zed", PasswordHash: "old", LastModified: old}))
	require.NoError(t, b.Store(&Account{Username: "zed", PasswordHash: "new", LastModified: time.Now()}))
	require.NoError(t, b.Store(&Account{Username: "amy", PasswordHash: "h", LastModified: old}))

	accounts, err := NewManagerWithStores(a, b).List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "amy", accounts[0].Username)
	assert.Equal(t, "zed", accounts[1].Username)
	assert.Equal(t, "new", accounts[1].PasswordHash)
}

func TestRetrieveDefault(t *testing.T) {
	clearEnv(t)
	store := newMemStore()
	manager := NewManagerWithStores(store, NewEnvironmentStore())

	_, err := manager.RetrieveDefault()
	assert.True(t, errors.Is(err, ErrCredentialsNotFound))

	require.NoError(t, store.Store(&Account{Username: "old", PasswordHash: "1", LastModified: time.Now().Add(-time.Hour)}))
	require.NoError(t, store.Store(&Account{Username: "recent", PasswordHash: "2", LastModified: time.Now()}))
	got, err := manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "recent", got.Username)

	t.Setenv(EnvLogin, "envuser")
	t.Setenv(EnvPassword, "secret")
	got, err = manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "envuser", got.Username)
	assert.Equal(t, HashPassword("secret"), got.PasswordHash)
}

func TestSanitizeAccount(t *testing.T) {
	a := &Account{Username: "alice", PasswordHash: HashPassword("pw")}
	s := SanitizeAccount(a)
	assert.Equal(t, "alice", s.Username)
	assert.NotEqual(t, a.PasswordHash, s.PasswordHash)
	assert.True(t, strings.Contains(s.PasswordHash, "..."))
	assert.Equal(t, "********", maskString("short"))
	assert.Nil(t, SanitizeAccount(nil))
}

func TestEnvironmentStore(t *testing.T) {
	clearEnv(t)
	store := NewEnvironmentStore()

	_, err := store.Retrieve("")
	assert.True(t, errors.Is(err, ErrCredentialsNotFound))

	t.Setenv(EnvLogin, "dave")
	t.Setenv(EnvPassword, "plain")
	account, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "dave", account.Username)
	assert.Equal(t, HashPassword("plain"), account.PasswordHash)

	t.Setenv(EnvPasswordHash, "precomputed")
	account, err = store.Retrieve("dave")
	require.NoError(t, err)
	assert.Equal(t, "precomputed", account.PasswordHash)

	_, err = store.Retrieve("someone-else")
	assert.Error(t, err)
	assert.True(t, store.Exists("dave"))

	assert.Equal(t, ErrStoreUnavailable, store.Store(&Account{}))
	assert.Equal(t, ErrStoreUnavailable, store.Delete("dave"))
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(EnvPassphrase, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	hash := HashPassword("very-secret")
	require.NoError(t, store.Store(&Account{Username: "erin", PasswordHash: hash}))
	require.NoError(t, store.Store(&Account{Username: "finn", PasswordHash: "other"}))

	got, err := store.Retrieve("erin")
	require.NoError(t, err)
	assert.Equal(t, hash, got.PasswordHash)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), hash)
	assert.NotContains(t, string(content), "erin")

	// a second store over the same file reads the same data
	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	accounts, err := reopened.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	require.NoError(t, store.Delete("erin"))
	assert.False(t, store.Exists("erin"))
	require.NoError(t, store.Delete("finn"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file is removed with the last account")
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	t.Setenv(EnvPassphrase, "first")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Account{Username: "gail", PasswordHash: "h"}))

	t.Setenv(EnvPassphrase, "second")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("gail")
	assert.Error(t, err)
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv(EnvPassphrase, "")
	dir := t.TempDir()

	store, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	require.NoError(t, store.Store(&Account{Username: "hal", PasswordHash: "h"}))

	info, err := os.Stat(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	again, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	assert.True(t, again.Exists("hal"))
}
