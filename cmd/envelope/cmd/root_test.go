package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/AndrewDonelson/envelope"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, mr *miniredis.Miniredis, values map[string]any) {
	t.Helper()
	c, err := envelope.Open(envelope.Config{
		Namespace: "cli",
		Redis:     envelope.RedisConfig{Addr: mr.Addr()},
		Memory:    envelope.MemoryConfig{Disabled: true},
	})
	require.NoError(t, err)
	defer c.Close()
	for k, v := range values {
		require.NoError(t, c.Set(context.Background(), k, v, -1))
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestGetCommand(t *testing.T) {
	mr := miniredis.RunT(t)
	seed(t, mr, map[string]any{"user:1": map[string]any{"name": "ada"}})

	out, err := run(t, "--redis", mr.Addr(), "-n", "cli", "get", "user:1")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "ada"`)

	_, err = run(t, "--redis", mr.Addr(), "-n", "cli", "get", "missing")
	assert.ErrorIs(t, err, envelope.ErrNotFound)
}

func TestGetCommand_CompressMismatch(t *testing.T) {
	mr := miniredis.RunT(t)
	seed(t, mr, map[string]any{"k": "v"})

	_, err := run(t, "--redis", mr.Addr(), "-n", "cli", "get", "k", "--compress")
	assert.ErrorIs(t, err, envelope.ErrDecompressionFailed)
}

func TestInspectCommand(t *testing.T) {
	mr := miniredis.RunT(t)
	seed(t, mr, map[string]any{"k": 1})

	out, err := run(t, "--redis", mr.Addr(), "-n", "cli", "inspect", "k")
	require.NoError(t, err)
	assert.Contains(t, out, "cli:k")
	assert.Contains(t, out, "V1")
}

func TestKeysDeletePurge(t *testing.T) {
	mr := miniredis.RunT(t)
	seed(t, mr, map[string]any{"a:1": 1, "a:2": 2, "b:1": 3})

	out, err := run(t, "--redis", mr.Addr(), "-n", "cli", "keys", "a:*")
	require.NoError(t, err)
	assert.Equal(t, "a:1\na:2\n", out)

	out, err = run(t, "--redis", mr.Addr(), "-n", "cli", "delete", "a:1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted key 'a:1'")

	out, err = run(t, "--redis", mr.Addr(), "-n", "cli", "delete", "a:1")
	require.NoError(t, err)
	assert.Contains(t, out, "not found")

	out, err = run(t, "--redis", mr.Addr(), "-n", "cli", "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 2 keys")
	assert.Empty(t, mr.Keys())
}

func TestPurgeExpiredOnDisk(t *testing.T) {
	out, err := run(t, "--disk", t.TempDir(), "purge", "--expired")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 0 expired entries")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, envelope.BuildVersion())
	assert.Contains(t, out, "header 15 bytes")
}

func TestNoStore(t *testing.T) {
	_, err := run(t, "keys")
	assert.ErrorIs(t, err, envelope.ErrNoStore)
}
