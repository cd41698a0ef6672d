package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mithrel/pushline/pkg/httpclient"
)

type countingRequest struct {
	aborts atomic.Int32
	err    error
}

func (r *countingRequest) Abort() error {
	r.aborts.Add(1)
	return r.err
}

func TestActiveRequestSetSupersedes(t *testing.T) {
	var a ActiveRequest
	first, second := &countingRequest{}, &countingRequest{}

	a.Set(first)
	a.Set(second)
	require.Same(t, second, a.Current())
	require.Equal(t, int32(0), first.aborts.Load(), "superseded request must not be aborted")

	aborted, err := a.Abort()
	require.True(t, aborted)
	require.NoError(t, err)
	require.Equal(t, int32(1), second.aborts.Load())
	require.Equal(t, int32(0), first.aborts.Load())
	require.Nil(t, a.Current())
}

func TestActiveRequestAbortEmpty(t *testing.T) {
	var a ActiveRequest
	aborted, err := a.Abort()
	require.False(t, aborted)
	require.NoError(t, err)
}

func TestActiveRequestAbortFailureClears(t *testing.T) {
	var a ActiveRequest
	a.Set(&countingRequest{err: httpclient.ErrAbortUnsupported})

	aborted, err := a.Abort()
	require.True(t, aborted)
	require.True(t, errors.Is(err, httpclient.ErrAbortUnsupported))
	require.Nil(t, a.Current())
}

func TestActiveRequestConcurrentAbortOnce(t *testing.T) {
	var a ActiveRequest
	req := &countingRequest{}
	a.Set(req)

	var wg sync.WaitGroup
	var hits atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if aborted, _ := a.Abort(); aborted {
				hits.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), req.aborts.Load())
	require.Equal(t, int32(1), hits.Load())
}

func TestActiveRequestSetRacesAbort(t *testing.T) {
	var a ActiveRequest
	reqs := make([]*countingRequest, 64)
	var wg sync.WaitGroup
	for i := range reqs {
		reqs[i] = &countingRequest{}
		wg.Add(2)
		go func(r *countingRequest) {
			defer wg.Done()
			a.Set(r)
		}(reqs[i])
		go func() {
			defer wg.Done()
			_, _ = a.Abort()
		}()
	}
	wg.Wait()
	for _, r := range reqs {
		require.LessOrEqual(t, r.aborts.Load(), int32(1))
	}
}
