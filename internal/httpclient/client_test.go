package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ProbeRangeSupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-0/2048")
		w.Header().Set("Content-Disposition", `attachment; filename="movie.mp4"`)
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0})
	}))
	defer srv.Close()

	c := New()
	result, err := c.Probe(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.True(t, result.SupportsRange)
	assert.True(t, result.HasSize)
	assert.Equal(t, int64(2048), result.FileSize)
	assert.Equal(t, "movie.mp4", result.Filename)
}

func TestClient_ProbeRangeUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := []byte("hello world")
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	defer srv.Close()

	c := New()
	result, err := c.Probe(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.False(t, result.SupportsRange)
	assert.Equal(t, int64(11), result.FileSize)
}

func TestClient_ProbeFilenameHintWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	c := New()
	result, err := c.Probe(context.Background(), srv.URL, "custom.bin")
	require.NoError(t, err)
	assert.Equal(t, "custom.bin", result.Filename)
}

func TestClient_ProbeFallsBackToGetWhenHeadNotAllowed(t *testing.T) {
	body := []byte("hello world")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	defer srv.Close()

	c := New()
	result, err := c.Probe(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), result.FileSize)
}

func TestClient_ProbeUsesHeadWhenSupported(t *testing.T) {
	headCalls := 0
	getCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			headCalls++
		case http.MethodGet:
			getCalls++
		}
		w.Header().Set("Content-Length", "11")
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New()
	result, err := c.Probe(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.True(t, result.SupportsRange)
	assert.Equal(t, 1, headCalls)
	assert.Equal(t, 0, getCalls)
}

func TestClient_DownloadFromZero(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	}))
	defer srv.Close()

	c := New()
	var buf bytes.Buffer
	var written int64
	err := c.Download(context.Background(), srv.URL, 0, &buf, nil, func(n int64) { written += n })
	require.NoError(t, err)
	assert.Equal(t, payload, buf.Bytes())
	assert.Equal(t, int64(len(payload)), written)
}

func TestClient_DownloadResumesFromOffset(t *testing.T) {
	payload := []byte("0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			t.Error("expected a Range header")
		}
		w.Header().Set("Content-Range", "bytes 5-9/10")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[5:])
	}))
	defer srv.Close()

	c := New()
	var buf bytes.Buffer
	err := c.Download(context.Background(), srv.URL, 5, &buf, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "56789", buf.String())
}

func TestClient_DownloadStopsWhenPaused(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), bufSize*4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	}))
	defer srv.Close()

	c := New()
	var buf bytes.Buffer
	calls := 0
	pauseAfterFirstChunk := func() bool {
		calls++
		return calls > 1
	}
	err := c.Download(context.Background(), srv.URL, 0, &buf, pauseAfterFirstChunk, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPaused))
	assert.Less(t, buf.Len(), len(payload))
}

func TestClient_DownloadFailsOnIgnoredRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ignored the range"))
	}))
	defer srv.Close()

	c := New()
	var buf bytes.Buffer
	err := c.Download(context.Background(), srv.URL, 3, &buf, nil, nil)
	assert.Error(t, err)
}
