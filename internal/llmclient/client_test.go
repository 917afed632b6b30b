package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteReturnsMessageContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Len(t, req.Messages, 2)

		resp := chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: `{"sql":"SELECT 1"}`}}},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := New(Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})

	out, err := c.Complete(context.Background(), "system prompt", "user prompt")

	require.NoError(t, err)
	assert.Equal(t, `{"sql":"SELECT 1"}`, out)
}

func TestCompleteSurfacesBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(chatResponse{Error: &chatError{Message: "rate limited"}})
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Model: "m", Timeout: 5 * time.Second})

	_, err := c.Complete(context.Background(), "s", "u")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestCompleteSurfacesHTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Model: "m", Timeout: 5 * time.Second})

	_, err := c.Complete(context.Background(), "s", "u")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestCompleteErrorsOnNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Model: "m", Timeout: 5 * time.Second})

	_, err := c.Complete(context.Background(), "s", "u")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
