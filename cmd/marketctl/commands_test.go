package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

func runCLI(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestKeygenThenAddress(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "operator.json")
	cfgPath := filepath.Join(dir, "missing.toml")

	out, err := runCLI("keygen", "--config", cfgPath, "--out", keyPath, "--password", "hunter22")
	require.NoError(t, err)
	var created map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, keyPath, created["key_file"])
	require.NotEmpty(t, created["address"])

	out, err = runCLI("address", "--config", cfgPath, "--key-file", keyPath, "--password", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, created["address"], strings.TrimSpace(out))

	_, err = runCLI("keygen", "--config", cfgPath, "--out", keyPath, "--password", "hunter22")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runCLI("address", "--config", cfgPath, "--key-file", keyPath, "--password", "wrong")
	require.Error(t, err)
}

func TestParseArgs(t *testing.T) {
	id, err := parseAssetID("42")
	require.NoError(t, err)
	assert.Equal(t, domain.AssetID(42), id)

	_, err = parseAssetID("-1")
	require.Error(t, err)

	amount, err := parseAmount("250")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(250), amount)

	_, err = parseAmount("ten")
	require.Error(t, err)
}
