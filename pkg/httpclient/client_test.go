package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPostSendsFormField(t *testing.T) {
	var gotData, gotType, gotAgent string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotData = r.PostForm.Get("data")
		gotType = r.Header.Get("Content-Type")
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	c := New(nil)
	resp, err := c.Post(context.Background(), ts.URL, func(r *Request) {
		r.HTTP.Header.Set("User-Agent", "test-agent")
	}, map[string]string{"data": "a b&c"})
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, resp.ReadAsString())
	require.Equal(t, "a b&c", gotData)
	require.Equal(t, "application/x-www-form-urlencoded", gotType)
	require.Equal(t, "test-agent", gotAgent)
}

func TestNon2xxIsStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer ts.Close()

	_, err := New(nil).Get(context.Background(), ts.URL, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusBadRequest, se.StatusCode)
	require.Contains(t, se.Error(), "nope")
}

func TestAbortInFlight(t *testing.T) {
	started := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer ts.Close()

	reqs := make(chan *Request, 1)
	errc := make(chan error, 1)
	go func() {
		_, err := New(nil).Get(context.Background(), ts.URL, func(r *Request) { reqs <- r })
		errc <- err
	}()

	r := <-reqs
	<-started
	require.NoError(t, r.Abort())
	// a second abort is harmless, whether or not the exchange has unwound yet
	if err := r.Abort(); err != nil {
		require.ErrorIs(t, err, ErrRequestCompleted)
	}

	select {
	case err := <-errc:
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrRequestAborted), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("request did not return after abort")
	}
}

func TestAbortAfterCompletion(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	var held *Request
	resp, err := New(nil).Get(context.Background(), ts.URL, func(r *Request) { held = r })
	require.NoError(t, err)
	require.Equal(t, "", resp.ReadAsString())
	require.ErrorIs(t, held.Abort(), ErrRequestCompleted)
	require.ErrorIs(t, held.Abort(), ErrRequestCompleted)
}

func TestAbortAfterFailedExchange(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer ts.Close()

	var held *Request
	_, err := New(nil).Get(context.Background(), ts.URL, func(r *Request) { held = r })
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	require.ErrorIs(t, held.Abort(), ErrRequestCompleted)
}

func TestAbortUnsupported(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	require.NoError(t, err)
	require.ErrorIs(t, NewRequest(req).Abort(), ErrAbortUnsupported)

	var nilReq *Request
	require.ErrorIs(t, nilReq.Abort(), ErrAbortUnsupported)
}
