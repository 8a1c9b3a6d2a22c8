package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4646464646464646464646464646464646464646464646464646464646464646"

func TestSealOpenRoundTrip(t *testing.T) {
	envelope, err := SealKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := OpenKey(envelope, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestSealKey_Accepts0xPrefix(t *testing.T) {
	envelope, err := SealKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := OpenKey(envelope, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestSealKey_RejectsShortKey(t *testing.T) {
	_, err := SealKey("abcd", "hunter2")
	assert.Error(t, err)
}

func TestSealKey_RejectsEmptyPassword(t *testing.T) {
	_, err := SealKey(testKeyHex, "")
	assert.Error(t, err)
}

func TestOpenKey_WrongPassword(t *testing.T) {
	envelope, err := SealKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	_, err = OpenKey(envelope, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestOpenKey_RejectsUnknownSchema(t *testing.T) {
	envelope, err := SealKey(testKeyHex, "hunter2")
	require.NoError(t, err)
	tampered := strings.Replace(string(envelope), `"schema": 1`, `"schema": 9`, 1)

	_, err = OpenKey([]byte(tampered), "hunter2")
	assert.Error(t, err)
}

func TestResolveKey_RawWins(t *testing.T) {
	got, err := ResolveKey(KeySource{
		RawPrivateKey: "0x" + testKeyHex,
		EncryptedPath: "does-not-exist.json",
	})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestResolveKey_FromEncryptedFile(t *testing.T) {
	envelope, err := SealKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, envelope, 0o600))

	got, err := ResolveKey(KeySource{EncryptedPath: path, Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestResolveKey_NoSource(t *testing.T) {
	_, err := ResolveKey(KeySource{})
	assert.Error(t, err)
}
