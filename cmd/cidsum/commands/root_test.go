package commands_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/agenthands/cidsum/cmd/cidsum/commands"
	"github.com/agenthands/cidsum/internal/testkit"
	"github.com/agenthands/cidsum/pkg/core"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cidHelloV0      = "Qmf412jQZiuVUtdgnB36FXFX7xg5V6KEbSJ4dpQuhkLyfD"
	cidHelloWorldV0 = "QmWATWQ7fVPP2EFGu71UkfnqhYXDYH566qy47CnJDgvs8u"
	cidEmptyV1      = "bafybeif7ztnhq65lumvvtr4ekcwd2ifwgm3awq4zfr3srh462rwyinlb4y"
	cidTwoChunkV0   = "QmRSa1n6VkrWp7HTQVjfEF31LxmuQpjLczW3Dt9pRvYC7Q"
)

// setup runs the test in an empty working directory with an empty HOME.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())
	return dir
}

func run(t *testing.T, stdin []byte, args ...string) (string, string, error) {
	t.Helper()
	cmd := commands.NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(bytes.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestSum_Stdin(t *testing.T) {
	setup(t)

	out, _, err := run(t, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, cidHelloV0+"  -\n", out)

	out, _, err = run(t, []byte("hello world"), "-")
	require.NoError(t, err)
	assert.Equal(t, cidHelloV0+"  -\n", out)
}

func TestSum_Files(t *testing.T) {
	dir := setup(t)
	a := writeFile(t, dir, "a.txt", []byte("Hello World\n"))
	empty := writeFile(t, dir, "empty.bin", nil)

	out, _, err := run(t, nil, a, "empty.bin")
	require.NoError(t, err)
	assert.Equal(t, cidHelloWorldV0+"  "+a+"\n"+"QmbFMke1KXqnYyBBWxB74N4c5SBnJMVAiMNRcGu6x1AwQH  empty.bin\n", out)

	out, _, err = run(t, nil, "--cid-version", "1", empty)
	require.NoError(t, err)
	assert.Equal(t, cidEmptyV1+"  "+empty+"\n", out)
}

func TestSum_Zstd(t *testing.T) {
	dir := setup(t)
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	p := writeFile(t, dir, "hello.zst", enc.EncodeAll([]byte("hello world"), nil))
	require.NoError(t, enc.Close())

	out, _, err := run(t, nil, "--decompress", "zstd", p)
	require.NoError(t, err)
	assert.Equal(t, cidHelloV0+"  "+p+"\n", out)
}

func TestSum_TruncatedZstd(t *testing.T) {
	dir := setup(t)
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	data := testkit.RandomBytes(testkit.RNG(3), 1600*1024)
	compressed := enc.EncodeAll(data, nil)
	require.NoError(t, enc.Close())
	p := writeFile(t, dir, "cut.zst", compressed[:len(compressed)/2])
	car := filepath.Join(dir, "cut.car")

	out, _, err := run(t, nil, "--decompress", "zstd", "--car", car, p)
	assert.ErrorIs(t, err, core.ErrIO)
	assert.Empty(t, out, "no CID may be printed for a truncated input")
	assert.NoFileExists(t, car, "a failed export must not leave a partial CAR")
}

func TestCheckFlagHelp(t *testing.T) {
	usage := commands.NewRootCmd().Flags().Lookup("check").Usage
	assert.Contains(t, usage, "validation aid")
	assert.Contains(t, usage, "ipfs")
}

func TestSum_CARAndInspect(t *testing.T) {
	dir := setup(t)
	p := writeFile(t, dir, "zeros", make([]byte, core.DefaultChunkSize+1))
	car := filepath.Join(dir, "zeros.car")

	out, _, err := run(t, nil, "--car", car, p)
	require.NoError(t, err)
	assert.Equal(t, cidTwoChunkV0+"  "+p+"\n", out)

	out, _, err = run(t, nil, "inspect", car)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "root "+cidTwoChunkV0, lines[0])
	for _, l := range lines[1:] {
		assert.True(t, strings.HasSuffix(l, "  ok"), l)
	}
	assert.True(t, strings.HasPrefix(lines[3], cidTwoChunkV0), "root block is written last")
	assert.Contains(t, lines[3], "links=2")
}

func TestSum_CARRequiresSingleInput(t *testing.T) {
	dir := setup(t)
	a := writeFile(t, dir, "a", []byte("a"))
	b := writeFile(t, dir, "b", []byte("b"))

	_, _, err := run(t, nil, "--car", filepath.Join(dir, "x.car"), a, b)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestSum_Cache(t *testing.T) {
	dir := setup(t)
	p := writeFile(t, dir, "hello", []byte("Hello World\n"))
	cacheDir := filepath.Join(dir, "cache")

	out, stderr, err := run(t, nil, "--cache-dir", cacheDir, "--debug", p)
	require.NoError(t, err)
	assert.Equal(t, cidHelloWorldV0+"  "+p+"\n", out)
	assert.NotContains(t, stderr, "cache hit")

	out, stderr, err = run(t, nil, "--cache-dir", cacheDir, "--debug", p)
	require.NoError(t, err)
	assert.Equal(t, cidHelloWorldV0+"  "+p+"\n", out)
	assert.Contains(t, stderr, "cache hit")

	out, _, err = run(t, nil, "cache", "show", cidHelloWorldV0, "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "length 12")
	assert.Contains(t, out, "chunks 1")

	require.NoError(t, os.Remove(p))
	out, _, err = run(t, nil, "cache", "prune", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Equal(t, "pruned 1 entries\n", out)
}

func TestCache_Errors(t *testing.T) {
	setup(t)

	_, _, err := run(t, nil, "cache", "prune")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, _, err = run(t, nil, "cache", "show", cidHelloV0, "--cache-dir", t.TempDir())
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, _, err = run(t, nil, "cache", "show", "not-a-cid", "--cache-dir", t.TempDir())
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func fakeIPFS(t *testing.T, printed string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	bin := writeFile(t, t.TempDir(), "ipfs", []byte("#!/bin/sh\ncat >/dev/null\necho "+printed+"\n"))
	require.NoError(t, os.Chmod(bin, 0o755))
	t.Setenv("CIDSUM_ORACLE_BINARY", bin)
}

func TestSum_Check(t *testing.T) {
	dir := setup(t)

	t.Run("agrees", func(t *testing.T) {
		fakeIPFS(t, cidHelloV0)
		out, _, err := run(t, []byte("hello world"), "--check")
		require.NoError(t, err)
		assert.Equal(t, cidHelloV0+"  -\n", out)

		p := writeFile(t, dir, "hello", []byte("hello world"))
		_, _, err = run(t, nil, "--check", p)
		require.NoError(t, err)
	})

	t.Run("disagrees", func(t *testing.T) {
		fakeIPFS(t, cidHelloWorldV0)
		_, _, err := run(t, []byte("hello world"), "--check")
		assert.ErrorIs(t, err, core.ErrCorrupt)
	})
}

func TestSum_Errors(t *testing.T) {
	dir := setup(t)

	_, _, err := run(t, nil, filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, core.ErrIO)

	_, _, err = run(t, nil, "--cid-version", "2", "-")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, _, err = run(t, nil, "--decompress", "gzip", "-")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	notCAR := writeFile(t, dir, "plain.car", []byte("not a car file"))
	_, _, err = run(t, nil, "inspect", notCAR)
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	dir := setup(t)
	writeFile(t, dir, "cidsum.yaml", []byte("cid_version: 1\n"))

	out, _, err := run(t, nil, writeFile(t, dir, "empty", nil))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, cidEmptyV1), out)

	// flags win over the file
	out, _, err = run(t, nil, "--cid-version", "0", "empty")
	require.NoError(t, err)
	assert.Equal(t, "QmbFMke1KXqnYyBBWxB74N4c5SBnJMVAiMNRcGu6x1AwQH  empty\n", out)
}
