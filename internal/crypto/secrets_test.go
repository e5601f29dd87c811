package crypto_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/crypto"
)

func TestSealOpenRoundTrip(t *testing.T) {
	secrets := map[string]string{
		"telegram_token": "123456:abcdef",
		"db_password":    "hunter2",
	}

	sealed, err := crypto.SealSecrets(secrets, "correct horse")
	require.NoError(t, err)

	got, err := crypto.OpenSecrets(sealed, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, secrets, got)
}

func TestOpenWrongPassword(t *testing.T) {
	sealed, err := crypto.SealSecrets(map[string]string{"k": "v"}, "right")
	require.NoError(t, err)

	_, err = crypto.OpenSecrets(sealed, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestSealEmptyPassword(t *testing.T) {
	_, err := crypto.SealSecrets(map[string]string{"k": "v"}, "")
	require.Error(t, err)

	_, err = crypto.OpenSecrets([]byte("{}"), "")
	require.Error(t, err)
}

func TestSealRandomized(t *testing.T) {
	secrets := map[string]string{"k": "v"}
	a, err := crypto.SealSecrets(secrets, "pw")
	require.NoError(t, err)
	b, err := crypto.SealSecrets(secrets, "pw")
	require.NoError(t, err)
	// Fresh salt and nonce every time.
	assert.NotEqual(t, string(a), string(b))
}

func TestLoadSecretsFile(t *testing.T) {
	sealed, err := crypto.SealSecrets(map[string]string{"k": "v"}, "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "vault.json")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	got, err := crypto.LoadSecretsFile(path, "pw")
	require.NoError(t, err)
	assert.Equal(t, "v", got["k"])

	_, err = crypto.LoadSecretsFile(filepath.Join(t.TempDir(), "missing.json"), "pw")
	assert.Error(t, err)
}
