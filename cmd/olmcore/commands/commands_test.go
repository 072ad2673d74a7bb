package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olmcore/internal/crypto"
	"olmcore/internal/signatures"
)

const testPass = "Correct-Horse-9-Battery"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	home, configPath, passphrase, cfg = "", "", "", nil
	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

type printedKeys struct {
	DeviceKeys  json.RawMessage            `json:"device_keys"`
	OneTimeKeys map[string]json.RawMessage `json:"one_time_keys"`
}

func decodeKeys(t *testing.T, out string) printedKeys {
	t.Helper()
	var p printedKeys
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	return p
}

func TestInitKeysVerify(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OLMCORE_LOG_LEVEL", "error")

	out, err := run(t, "--home", dir, "-p", testPass, "init", "--user", "@alice:x", "--device", "ALICE", "--one-time-keys", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Device: ALICE")

	_, err = run(t, "--home", dir, "-p", testPass, "init", "--user", "@alice:x")
	assert.Error(t, err, "second init must refuse to overwrite")

	out, err = run(t, "--home", dir, "-p", testPass, "keys", "--mark-published")
	require.NoError(t, err)
	first := decodeKeys(t, out)
	assert.Len(t, first.OneTimeKeys, 2)

	out, err = run(t, "--home", dir, "-p", testPass, "keys")
	require.NoError(t, err)
	printed := decodeKeys(t, out)
	assert.Empty(t, printed.OneTimeKeys, "published keys are not printed again")

	keysFile := filepath.Join(dir, "device.json")
	require.NoError(t, os.WriteFile(keysFile, printed.DeviceKeys, 0o600))
	out, err = run(t, "--home", dir, "verify", keysFile)
	require.NoError(t, err)
	assert.Contains(t, out, "OK: device ALICE of @alice:x")

	tampered := strings.Replace(string(printed.DeviceKeys), "@alice:x", "@mallory:x", 1)
	require.NoError(t, os.WriteFile(keysFile, []byte(tampered), 0o600))
	_, err = run(t, "--home", dir, "verify", keysFile)
	assert.Error(t, err)
}

func TestWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "--home", dir, "-p", testPass, "init", "--user", "@alice:x")
	require.NoError(t, err)

	_, err = run(t, "--home", dir, "-p", testPass+"x", "keys")
	assert.Error(t, err)

	_, err = run(t, "--home", dir, "keys")
	assert.Error(t, err)
}

func TestVerifyKeepsUnknownSignedFields(t *testing.T) {
	dir := t.TempDir()
	priv, pub, err := crypto.GenerateEd25519()
	require.NoError(t, err)
	_, curve, err := crypto.GenerateCurve25519()
	require.NoError(t, err)

	signed, _, err := signatures.Sign(map[string]any{
		"user_id":    "@bob:x",
		"device_id":  "BOB",
		"algorithms": []string{"m.olm.v1.curve25519-aes-sha2"},
		"keys": map[string]string{
			"curve25519:BOB": curve.String(),
			"ed25519:BOB":    pub.String(),
		},
		"dehydrated": true,
	}, "@bob:x", "ed25519:BOB", priv)
	require.NoError(t, err)
	raw, err := json.Marshal(signed)
	require.NoError(t, err)

	keysFile := filepath.Join(dir, "bob.json")
	require.NoError(t, os.WriteFile(keysFile, raw, 0o600))
	out, err := run(t, "--home", dir, "verify", keysFile)
	require.NoError(t, err)
	assert.Contains(t, out, "OK: device BOB of @bob:x")
}
