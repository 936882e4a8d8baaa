package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(nil, "")
	require.NoError(t, err)

	assert.Equal(t, ":11211", cfg.addr)
	assert.Equal(t, 1024, cfg.maxConns)
	assert.Equal(t, 250, cfg.maxKeyLength)
	assert.Equal(t, 0, cfg.maxLineLength)
	assert.False(t, cfg.pipelining)
	assert.Equal(t, "info", cfg.logLevel)
	assert.False(t, cfg.configLoaded)
	assert.Equal(t, sourceDefault, cfg.sources["addr"])
}

const yamlConfigContent = `
server:
  addr: ":22122"
  max_conns: 10
  idle_timeout: 30s
protocol:
  max_key_length: 100
  pipelining: true
log:
  level: debug
`

func TestLoadConfigFile(t *testing.T) {
	path := writeFile(t, "memcached.yaml", yamlConfigContent)

	cfg, err := loadConfig([]string{"-config", path}, "")
	require.NoError(t, err)

	assert.True(t, cfg.configLoaded)
	assert.Equal(t, ":22122", cfg.addr)
	assert.Equal(t, 10, cfg.maxConns)
	assert.Equal(t, 30*time.Second, cfg.idleTimeout)
	assert.Equal(t, 100, cfg.maxKeyLength)
	assert.True(t, cfg.pipelining)
	assert.Equal(t, "debug", cfg.logLevel)
	assert.Equal(t, sourceFile, cfg.sources["addr"])
	assert.Equal(t, sourceDefault, cfg.sources["shards"])
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeFile(t, "memcached.yaml", yamlConfigContent)
	t.Setenv("MEMCACHED_ADDR", ":33133")
	t.Setenv("MEMCACHED_MAX_CONNS", "20")

	cfg, err := loadConfig([]string{"-config", path, "-max-conns", "30"}, "")
	require.NoError(t, err)

	assert.Equal(t, ":33133", cfg.addr)
	assert.Equal(t, sourceEnv, cfg.sources["addr"])
	assert.Equal(t, 30, cfg.maxConns)
	assert.Equal(t, sourceFlag, cfg.sources["max-conns"])
	assert.Equal(t, 30*time.Second, cfg.idleTimeout)
	assert.Equal(t, sourceFile, cfg.sources["idle-timeout"])
}

func TestLoadConfigDotenv(t *testing.T) {
	t.Chdir(t.TempDir())
	dotenv := writeFile(t, ".env", "MEMCACHED_SHARDS=7\n")
	t.Cleanup(func() { os.Unsetenv("MEMCACHED_SHARDS") })

	cfg, err := loadConfig(nil, dotenv)
	require.NoError(t, err)

	assert.True(t, cfg.dotenvLoaded)
	assert.Equal(t, 7, cfg.shards)
	assert.Equal(t, sourceEnv, cfg.sources["shards"])
}

func TestLoadConfigErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		args []string
		env  map[string]string
		file string
	}{
		{name: "missing explicit config", args: []string{"-config", "/nonexistent/memcached.yaml"}},
		{name: "bad flag value", args: []string{"-max-conns", "many"}},
		{name: "empty env", env: map[string]string{"MEMCACHED_ADDR": ""}},
		{name: "bad env duration", env: map[string]string{"MEMCACHED_IDLE_TIMEOUT": "soon"}},
		{name: "bad yaml value", file: "server:\n  max_conns: lots\n"},
		{name: "bad yaml", file: "server: [\n"},
		{name: "zero max conns", args: []string{"-max-conns", "0"}},
		{name: "line too short for key", args: []string{"-max-line-length", "100"}},
		{name: "bad log level", args: []string{"-log-level", "loud"}},
		{name: "bad log format", args: []string{"-log-format", "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			args := tt.args
			if tt.file != "" {
				args = append(args, "-config", writeFile(t, "memcached.yaml", tt.file))
			}

			_, err := loadConfig(args, "")
			require.Error(t, err)
		})
	}
}

func TestLoadSeed(t *testing.T) {
	path := writeFile(t, "seed.yaml", `
items:
  - key: foo
    value: bar
  - key: greeting
    value: hello world
    flags: 5
`)

	items, err := loadSeed(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "greeting", items[1].Key)
	assert.Equal(t, []byte("hello world"), items[1].Value)
	assert.Equal(t, uint32(5), items[1].Flags)

	_, err = loadSeed(writeFile(t, "bad.yaml", "items:\n  - key: \"has space\"\n    value: x\n"))
	require.Error(t, err)
}

func TestBuildStore(t *testing.T) {
	seed := writeFile(t, "seed.yaml", "items:\n  - key: foo\n    value: bar\n")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file-key"), []byte("from disk"), 0o600))

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	st, rt, err := buildStore(serverConfig{shards: 4, seedPath: seed}, logger)
	require.NoError(t, err)
	require.Nil(t, rt)
	item, ok := st.Get([]byte("foo"))
	require.True(t, ok)
	require.Equal(t, []byte("bar"), item.Value)

	st, rt, err = buildStore(serverConfig{shards: 4, seedPath: seed, sourceDir: dir}, logger)
	require.NoError(t, err)
	require.NotNil(t, rt)
	_, ok = st.Get([]byte("file-key"))
	require.False(t, ok, "filled in the background")
	rt.Wait()
	item, ok = st.Get([]byte("file-key"))
	require.True(t, ok)
	require.Equal(t, []byte("from disk"), item.Value)
	_, ok = st.Get([]byte("foo"))
	require.True(t, ok)

	_, _, err = buildStore(serverConfig{sourceDir: filepath.Join(dir, "missing")}, logger)
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"key":"value"`)

	_, err = newLogger(&buf, "verbose", "text")
	require.Error(t, err)
}
