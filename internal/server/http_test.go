package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, pollTimeout time.Duration) (*Server, *httptest.Server) {
	t.Helper()
	cfg := viper.New()
	cfg.Set("server.poll_timeout", pollTimeout)
	cfg.Set("server.prefix", "/push")
	s := New(cfg, nil)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, u string) (int, string) {
	t.Helper()
	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func send(t *testing.T, base, connID, data string) string {
	t.Helper()
	resp, err := http.PostForm(base+"/push/send?transport=longPolling&connectionId="+connID, url.Values{"data": {data}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func decode(t *testing.T, body string) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(body), &env))
	return env
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, time.Second)
	code, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)
}

func TestConnectReturnsCursorAndBacklog(t *testing.T) {
	s, ts := newTestServer(t, time.Second)
	s.Publish("", json.RawMessage(`"one"`))
	s.Publish("", json.RawMessage(`"two"`))
	assert.False(t, s.Connected("c1"))

	_, body := get(t, ts.URL+"/push/connect?transport=longPolling&connectionId=c1&messageId=&groups=a%2Cb")
	env := decode(t, body)
	assert.True(t, s.Connected("c1"))
	assert.Empty(t, env.Messages)
	assert.NotNil(t, env.Messages)
	assert.Equal(t, int64(2), env.MessageID)
	assert.Equal(t, []string{"a", "b"}, env.TransportData.Groups)

	_, body = get(t, ts.URL+"/push/connect?transport=longPolling&connectionId=c1&messageId=1&groups=")
	env = decode(t, body)
	require.Len(t, env.Messages, 1)
	assert.JSONEq(t, `"two"`, string(env.Messages[0]))
	assert.Equal(t, []string{}, env.TransportData.Groups)
}

func TestConnectRejectsBadInput(t *testing.T) {
	_, ts := newTestServer(t, time.Second)
	code, _ := get(t, ts.URL+"/push/connect?transport=longPolling")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = get(t, ts.URL+"/push/connect?connectionId=c1&messageId=abc")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPollTimesOutWithHeartbeat(t *testing.T) {
	_, ts := newTestServer(t, 50*time.Millisecond)
	code, body := get(t, ts.URL+"/push/poll?transport=longPolling&connectionId=c1&messageId=0")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{}`, body)
}

func TestPollWakesOnPublish(t *testing.T) {
	s, ts := newTestServer(t, 5*time.Second)
	done := make(chan string, 1)
	go func() {
		_, body := get(t, ts.URL+"/push/poll?transport=longPolling&connectionId=c1&messageId=0")
		done <- body
	}()
	time.Sleep(50 * time.Millisecond)
	s.Publish("", json.RawMessage(`{"n":1}`))

	select {
	case body := <-done:
		env := decode(t, body)
		require.Len(t, env.Messages, 1)
		assert.JSONEq(t, `{"n":1}`, string(env.Messages[0]))
		assert.Equal(t, int64(1), env.MessageID)
	case <-time.After(3 * time.Second):
		t.Fatal("poll did not return after publish")
	}
}

func TestGroupsFilterDelivery(t *testing.T) {
	s, ts := newTestServer(t, time.Second)
	assert.JSONEq(t, `{"Groups":["room"]}`, send(t, ts.URL, "c1", `{"join":"room"}`))

	s.Publish("other", json.RawMessage(`"hidden"`))
	s.Publish("room", json.RawMessage(`"shown"`))

	_, body := get(t, ts.URL+"/push/poll?transport=longPolling&connectionId=c1&messageId=0")
	env := decode(t, body)
	require.Len(t, env.Messages, 1)
	assert.JSONEq(t, `"shown"`, string(env.Messages[0]))
	assert.Equal(t, int64(2), env.MessageID)
	assert.Equal(t, []string{"room"}, env.TransportData.Groups)

	// a connection outside every group still advances past hidden messages
	_, body = get(t, ts.URL+"/push/poll?transport=longPolling&connectionId=c2&messageId=0")
	env = decode(t, body)
	assert.Empty(t, env.Messages)
	assert.Equal(t, int64(2), env.MessageID)

	assert.JSONEq(t, `{"Groups":[]}`, send(t, ts.URL, "c1", `{"leave":"room"}`))
}

func TestSendBroadcasts(t *testing.T) {
	s, ts := newTestServer(t, time.Second)
	assert.Empty(t, send(t, ts.URL, "c1", `{"text":"hi"}`))
	assert.Empty(t, send(t, ts.URL, "c1", `plain words`))
	assert.Empty(t, send(t, ts.URL, "c1", `{"group":"g","message":"to g"}`))

	msgs, last, _ := s.bus.since(0, nil)
	assert.Equal(t, int64(3), last)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"text":"hi"}`, string(msgs[0].Data))
	assert.JSONEq(t, `"plain words"`, string(msgs[1].Data))

	grouped, _, _ := s.bus.since(0, []string{"g"})
	require.Len(t, grouped, 3)
	assert.Equal(t, "g", grouped[2].Group)
}

func TestSendRequiresConnectionID(t *testing.T) {
	_, ts := newTestServer(t, time.Second)
	resp, err := http.Post(ts.URL+"/push/send", "application/x-www-form-urlencoded", strings.NewReader("data=x"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBusRetainsBoundedHistory(t *testing.T) {
	b := newBus(2)
	for i := 0; i < 5; i++ {
		b.publish("", json.RawMessage(`1`))
	}
	msgs, last, _ := b.since(0, nil)
	assert.Equal(t, int64(5), last)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(4), msgs[0].ID)
}
