package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func TestRegistryMissIsFailureResult(t *testing.T) {
	r := NewRegistry()
	res, err := r.Publish(context.Background(), Request{PlatformKey: "myspace"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, UnsupportedPlatform, res.Error)
}

func TestRegistryCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register("Facebook", AdapterFunc(func(ctx context.Context, req Request) (Result, error) {
		return Published("fb-1"), nil
	}))
	res, err := r.Publish(context.Background(), Request{PlatformKey: "facebook"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "fb-1", res.ExternalPostID)
	assert.Equal(t, []string{"facebook"}, r.Keys())
}

func TestFacebookAdapterPostsToFeed(t *testing.T) {
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/v19.0/page-1/feed", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "short", body["message"])
		return jsonResponse(http.StatusOK, `{"id":"page-1_99"}`), nil
	})
	graph, err := NewGraphClient(GraphConfig{BaseURL: "http://graph/v19.0/", HTTPClient: &http.Client{Transport: transport}})
	require.NoError(t, err)

	a := &FacebookAdapter{Graph: graph, PageID: "page-1", Token: "tok"}
	res, err := a.Publish(context.Background(), Request{ContractID: uuid.New(), Payload: map[string]any{"text": "short"}})
	require.NoError(t, err)
	assert.Equal(t, Published("page-1_99"), res)
}

func TestGraphClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusBadRequest, `{"error":{"message":"Invalid OAuth access token","code":190}}`), nil
	})
	graph, err := NewGraphClient(GraphConfig{BaseURL: "http://graph", Retries: 3, HTTPClient: &http.Client{Transport: transport}})
	require.NoError(t, err)

	a := &FacebookAdapter{Graph: graph, PageID: "p", Token: "bad"}
	res, err := a.Publish(context.Background(), Request{Payload: map[string]any{"message": "hi"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Invalid OAuth access token")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGraphClientRetriesServerErrors(t *testing.T) {
	var calls int32
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return jsonResponse(http.StatusBadGateway, ``), nil
		}
		return jsonResponse(http.StatusOK, `{"id":"ok-2"}`), nil
	})
	graph, err := NewGraphClient(GraphConfig{BaseURL: "http://graph", Retries: 1, HTTPClient: &http.Client{Transport: transport}})
	require.NoError(t, err)

	id, err := graph.Post(context.Background(), "x/feed", "", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok-2", id)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGraphClientBackoffStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls int32
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return jsonResponse(http.StatusBadGateway, ``), nil
	})
	graph, err := NewGraphClient(GraphConfig{BaseURL: "http://graph", Retries: 5, HTTPClient: &http.Client{Transport: transport}})
	require.NoError(t, err)

	start := time.Now()
	_, err = graph.Post(ctx, "x/feed", "", map[string]any{"message": "hi"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGraphClientTimeoutIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	graph, err := NewGraphClient(GraphConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	a := &FacebookAdapter{Graph: graph, PageID: "p"}
	res, err := a.Publish(context.Background(), Request{Payload: map[string]any{"message": "hi"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "facebook:")
}

func TestInstagramAdapterTwoStepPublish(t *testing.T) {
	var paths []string
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		paths = append(paths, r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/ig-1/media":
			assert.Equal(t, "https://cdn.example/a.png", body["image_url"])
			assert.Equal(t, "caption!", body["caption"])
			return jsonResponse(http.StatusOK, `{"id":"container-7"}`), nil
		case "/ig-1/media_publish":
			assert.Equal(t, "container-7", body["creation_id"])
			return jsonResponse(http.StatusOK, `{"id":"ig-post-7"}`), nil
		}
		return jsonResponse(http.StatusNotFound, `{}`), nil
	})
	graph, err := NewGraphClient(GraphConfig{BaseURL: "http://graph", HTTPClient: &http.Client{Transport: transport}})
	require.NoError(t, err)

	a := &InstagramAdapter{Graph: graph, AccountID: "ig-1", Token: "tok"}
	res, err := a.Publish(context.Background(), Request{Payload: map[string]any{
		"image_url": "https://cdn.example/a.png",
		"caption":   "caption!",
	}})
	require.NoError(t, err)
	assert.Equal(t, Published("ig-post-7"), res)
	assert.Equal(t, []string{"/ig-1/media", "/ig-1/media_publish"}, paths)
}

func TestInstagramAdapterRequiresImage(t *testing.T) {
	a := &InstagramAdapter{}
	res, err := a.Publish(context.Background(), Request{Payload: map[string]any{"caption": "x"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestDryRun(t *testing.T) {
	id := uuid.New()
	res, err := DryRun{}.Publish(context.Background(), Request{ContractID: id, PlatformKey: "facebook"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "dryrun-facebook-"+id.String(), res.ExternalPostID)
}
