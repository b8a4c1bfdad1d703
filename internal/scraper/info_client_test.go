package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInfoClient(srv *httptest.Server) *InfoClient {
	c := NewInfoClient(srv.URL)
	c.Client = srv.Client()
	c.Retry = retryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond}
	return c
}

func TestInfoClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maniax/api/=/product.json", r.URL.Path)
		assert.Equal(t, "RJ405712", r.URL.Query().Get("workno"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"workno":"RJ405712","work_name":"ねこみみカフェへようこそ","maker_name":"しろねこ屋","price":880,"locale_price":{"ja_JP":880},"rate_average_2dp":4.63,"rate_count":321,"dl_count":3210}]`))
	}))
	defer srv.Close()

	info, err := newTestInfoClient(srv).Fetch(context.Background(), "RJ405712")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "RJ405712", info.Workno)
	assert.Equal(t, 880, info.LocalePrice["ja_JP"])
	assert.InDelta(t, 4.63, info.RateAverage2DP, 0.001)
	assert.Equal(t, 3210, info.DLCount)
}

func TestInfoClient_NotFoundIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	info, err := newTestInfoClient(srv).Fetch(context.Background(), "RJ000000")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestInfoClient_EmptyArrayIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	info, err := newTestInfoClient(srv).Fetch(context.Background(), "RJ000000")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestInfoClient_ForbiddenIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestInfoClient(srv).Fetch(context.Background(), "RJ405712")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	// permanent failures must not be retried
	assert.Equal(t, int32(1), calls.Load())
}

func TestInfoClient_RateLimitedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[{"workno":"RJ405712"}]`))
	}))
	defer srv.Close()

	info, err := newTestInfoClient(srv).Fetch(context.Background(), "RJ405712")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInfoClient_ServerErrorExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestInfoClient(srv).Fetch(context.Background(), "RJ405712")
	require.Error(t, err)
	// initial attempt plus MaxRetries
	assert.Equal(t, int32(3), calls.Load())
}

func TestInfoClient_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"workno":"not an array"}`))
	}))
	defer srv.Close()

	_, err := newTestInfoClient(srv).Fetch(context.Background(), "RJ405712")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode info response")
}
