package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/stretchr/testify/require"
)

func host(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestFollowsRedirects(t *testing.T) {
	leader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case r.Method == http.MethodGet && q.Get("commit_index") == "3":
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprintln(w, `"v"`)
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprintln(w, "null")
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintln(w, "created")
		case r.Method == http.MethodPut && q.Has("cmp"):
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprintf(w, "not updated %s\n", q.Get("cmp"))
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, "not found")
		}
	}))
	defer leader.Close()
	follower := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
		commitIndex := "null"
		if r.Method == http.MethodGet && r.URL.Query().Get("key") == "k" {
			commitIndex = "3"
		}
		fmt.Fprintf(w, "to=%q, commit_index=%s\n", host(leader), commitIndex)
	}))
	defer follower.Close()

	c := New([]string{host(follower), host(leader)})
	ctx := context.Background()

	r, err := c.Create(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, r, Reply{Status: http.StatusCreated, Info: "created"})

	r, err = c.Cas(ctx, "k", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, r.Info, "not updated a")

	r, err = c.Delete(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, r.Status, http.StatusNotFound)

	// round robin made the leader the first to ask
	v, err := c.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, v == nil, true)

	c.next = 0
	v, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, *v, "v")
}

func TestUnavailable(t *testing.T) {
	var calls atomic.Int32
	busy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "service unavailable")
	}))
	defer busy.Close()

	c := New([]string{host(busy)}, WithRetryGap(10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := c.Update(ctx, "k", "v")
	assert.Equal(t, errors.Is(err, ErrUnavailable), true)
	assert.Equal(t, calls.Load() > 1, true)
}

func TestParseRedirect(t *testing.T) {
	to, commitIndex, err := parseRedirect(`to="127.0.0.1:8002", commit_index=null`)
	require.NoError(t, err)
	assert.Equal(t, to, "127.0.0.1:8002")
	assert.Equal(t, commitIndex == nil, true)

	_, commitIndex, err = parseRedirect(`to="127.0.0.1:8002", commit_index=12`)
	require.NoError(t, err)
	assert.Equal(t, *commitIndex, int64(12))

	for _, body := range []string{"", `to=127.0.0.1, commit_index=1`, `to="x", commit_index=one`, `go="x", commit_index=1`} {
		_, _, err := parseRedirect(body)
		assert.Equal(t, errors.Is(err, ErrBadRedirect), true)
	}
}
