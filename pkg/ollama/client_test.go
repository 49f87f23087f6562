package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-sentiment/pageview-cli/internal/resilience"
)

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2:1b", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, "json", req.Format)

		json.NewEncoder(w).Encode(GenerateResponse{
			Model:    req.Model,
			Response: `{"verdicts":[]}`,
			Done:     true,
		})
	}))
	defer srv.Close()

	c := NewClient(WithHost(srv.URL))
	resp, err := c.Generate(context.Background(), GenerateRequest{
		Prompt: "hello",
		Format: "json",
	})

	require.NoError(t, err)
	assert.Equal(t, `{"verdicts":[]}`, resp.Response)
	assert.True(t, resp.Done)
}

func TestGenerate_ModelOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.1:8b", req.Model)
		json.NewEncoder(w).Encode(GenerateResponse{Done: true})
	}))
	defer srv.Close()

	c := NewClient(WithHost(srv.URL), WithModel("llama3.1:8b"))
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
}

func TestGenerate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(WithHost(srv.URL))
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.False(t, resilience.IsTransient(err))
}

func TestGenerate_ServiceUnavailableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model is loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(WithHost(srv.URL))
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	assert.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestRetryableStatusCode(t *testing.T) {
	assert.True(t, retryableStatusCode(429))
	assert.True(t, retryableStatusCode(500))
	assert.True(t, retryableStatusCode(502))
	assert.True(t, retryableStatusCode(503))
	assert.False(t, retryableStatusCode(200))
	assert.False(t, retryableStatusCode(404))
}

func TestGenerate_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(WithHost(srv.URL))
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "hi"})
	assert.Error(t, err)
}

func TestGenerate_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(GenerateResponse{Done: true})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewClient(WithHost(srv.URL))
	_, err := c.Generate(ctx, GenerateRequest{Prompt: "hi"})
	assert.Error(t, err)
}
