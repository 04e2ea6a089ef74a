package credentials

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/persistence/file"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()

	cipher, err := NewCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	return cipher
}

func TestCipherRoundTrip(t *testing.T) {
	cipher := testCipher(t)

	encrypted, err := cipher.Encrypt("sk-very-secret")
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "sk-very-secret")

	decrypted, err := cipher.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "sk-very-secret", decrypted)
}

func TestCipherNoncesDiffer(t *testing.T) {
	cipher := testCipher(t)

	first, err := cipher.Encrypt("same value")
	require.NoError(t, err)

	second, err := cipher.Encrypt("same value")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestCipherRejectsWrongKey(t *testing.T) {
	cipher := testCipher(t)

	encrypted, err := cipher.Encrypt("secret")
	require.NoError(t, err)

	other, err := NewCipher(bytes.Repeat([]byte{0x17}, 32))
	require.NoError(t, err)

	_, err = other.Decrypt(encrypted)
	assert.Error(t, err)
}

func TestCipherRejectsShortKey(t *testing.T) {
	_, err := NewCipher([]byte("too-short"))
	assert.Error(t, err)
}

func TestNewCipherFromHex(t *testing.T) {
	_, err := NewCipherFromHex("4242424242424242424242424242424242424242424242424242424242424242")
	assert.NoError(t, err)

	_, err = NewCipherFromHex("not hex")
	assert.Error(t, err)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	return NewStore(p.CredentialRepository(), testCipher(t))
}

func TestStoreEncryptsAtRest(t *testing.T) {
	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	store := NewStore(p.CredentialRepository(), testCipher(t))
	ctx := context.Background()

	created, err := store.CreateCredential(ctx, &models.Credential{
		Name:        "provider key",
		Type:        "api_key",
		Value:       "sk-very-secret",
		OwnerUserID: "user-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "sk-very-secret", created.Value)

	raw, err := p.CredentialRepository().CredentialByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "sk-very-secret", raw.Value)

	loaded, err := store.GetCredential(ctx, created.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "sk-very-secret", loaded.Value)
}

func TestStoreScopesToOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateCredential(ctx, &models.Credential{
		Name:        "provider key",
		Type:        "api_key",
		Value:       "secret",
		OwnerUserID: "user-1",
	})
	require.NoError(t, err)

	_, err = store.GetCredential(ctx, created.ID, "user-2")
	assert.ErrorIs(t, err, persistence.ErrCredentialNotFound)

	err = store.DeleteCredential(ctx, created.ID, "user-2")
	assert.ErrorIs(t, err, persistence.ErrCredentialNotFound)

	require.NoError(t, store.DeleteCredential(ctx, created.ID, "user-1"))

	_, err = store.GetCredential(ctx, created.ID, "user-1")
	assert.ErrorIs(t, err, persistence.ErrCredentialNotFound)
}
