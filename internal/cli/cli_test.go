package cli

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mithrel/pushline/internal/server"
)

// syncBuffer guards a bytes.Buffer written by a command goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeConfigTOML(t *testing.T, dir, url string) string {
	t.Helper()
	cfg := filepath.Join(dir, "config.toml")
	content := `url = "` + url + `"
connection_id = "cli-1"
data_dir = "` + strings.ReplaceAll(filepath.Join(dir, "data"), "\\", "\\\\") + `"
[poll]
retry_delay = "50ms"
max_backoff = "200ms"
[log]
level = "error"
`
	require.NoError(t, os.WriteFile(cfg, []byte(content), 0o600))
	return cfg
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

func startPushServer(t *testing.T) (*server.Server, string) {
	t.Helper()
	v := viper.New()
	v.Set("server.poll_timeout", 200*time.Millisecond)
	srv := server.New(v, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts.URL + "/signalr/"
}

func TestListenSendAndState(t *testing.T) {
	srv, url := startPushServer(t)
	cfgPath := writeConfigTOML(t, t.TempDir(), url)

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		root := NewRootCmd()
		root.SetOut(out)
		root.SetErr(out)
		root.SetArgs([]string{"--config", cfgPath, "listen", "-n", "2", "--timeout", "10s"})
		done <- root.Execute()
	}()
	require.Eventually(t, func() bool { return srv.Connected("cli-1") }, 5*time.Second, 10*time.Millisecond)

	reply, err := run(t, "--config", cfgPath, "send", "hello")
	require.NoError(t, err)
	assert.Empty(t, reply)
	_, err = run(t, "--config", cfgPath, "send", `{"n":2}`)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("listen did not exit after two messages")
	}
	assert.Equal(t, "hello\n{\"n\":2}\n", out.String())

	shown, err := run(t, "--config", cfgPath, "state", "show", "cli-1")
	require.NoError(t, err)
	var views []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(shown), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "cli-1", views[0]["connection_id"])
	assert.Equal(t, 2, views[0]["message_id"])

	msg, err := run(t, "--config", cfgPath, "state", "reset")
	require.NoError(t, err)
	assert.Equal(t, "reset cli-1\n", msg)

	_, err = run(t, "--config", cfgPath, "state", "show", "cli-1")
	require.Error(t, err)
}

func TestSendJoinPrintsGroups(t *testing.T) {
	_, url := startPushServer(t)
	cfgPath := writeConfigTOML(t, t.TempDir(), url)

	out, err := run(t, "--config", cfgPath, "send", `{"join":"room"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Groups":["room"]}`, strings.TrimSpace(out))
}

func TestSendReportsStatusError(t *testing.T) {
	_, url := startPushServer(t)
	cfgPath := writeConfigTOML(t, t.TempDir(), url)

	_, err := run(t, "--config", cfgPath, "--url", url+"missing/", "send", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	cfgPath := writeConfigTOML(t, t.TempDir(), "not a url")
	_, err := run(t, "--config", cfgPath, "state", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestConfigShowAndGenerate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfigTOML(t, dir, "http://example.test/push")

	out, err := run(t, "--config", cfgPath, "--transport", "fromFlag", "config", "show")
	require.NoError(t, err)
	var settings map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &settings))
	assert.Equal(t, "http://example.test/push/", settings["url"])
	assert.Equal(t, "fromFlag", settings["transport"])
	poll, ok := settings["poll"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "50ms", poll["retry_delay"])

	gen := filepath.Join(dir, "gen", "config.toml")
	out, err = run(t, "config", "generate", "-o", gen)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+gen)

	_, err = run(t, "config", "generate", "-o", gen)
	require.Error(t, err)

	out, err = run(t, "config", "generate", "-o", gen, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "Config already up to date")
}

func TestCompletion(t *testing.T) {
	out, err := run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "pushline")

	_, err = run(t, "completion", "tcsh")
	require.Error(t, err)
}
