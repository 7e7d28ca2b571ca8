package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opschat/opschat/internal/log"
)

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, "explain load shedding", req.Prompt)

		_ = json.NewEncoder(w).Encode(generateResponse{Response: "Load shedding is...", Done: true})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "llama3.2", 5*time.Second, log.NewNop())
	require.NoError(t, err)

	out, err := c.Chat(context.Background(), "explain load shedding", nil)
	require.NoError(t, err)
	assert.Equal(t, "Load shedding is...", out)
}

func TestChat_ContextFoldedIntoPrompt(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotPrompt = req.Prompt
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "ok"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "llama3.2", 5*time.Second, log.NewNop())
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "summarize", map[string]string{
		"topic":   "incidents",
		"urgency": "high",
	})
	require.NoError(t, err)

	assert.Contains(t, gotPrompt, "- topic: incidents")
	assert.Contains(t, gotPrompt, "- urgency: high")
	assert.Contains(t, gotPrompt, "summarize")
}

func TestChat_ErrorStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "llama3.2", time.Second, log.NewNop())
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestChat_EmptyResponseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{Response: ""})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "llama3.2", time.Second, log.NewNop())
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "hi", nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "llama3.2", time.Second, log.NewNop())
	require.NoError(t, err)
	assert.NoError(t, c.Health(context.Background()))

	srv.Close()
	assert.Error(t, c.Health(context.Background()))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("", "m", time.Second, log.NewNop())
	assert.Error(t, err)

	_, err = NewClient("http://x", "", time.Second, log.NewNop())
	assert.Error(t, err)
}
