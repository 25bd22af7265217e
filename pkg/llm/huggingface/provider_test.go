package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"docchat-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHuggingFaceChat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"answer"}}]}`))
	}))
	defer srv.Close()

	p := NewHuggingFaceProvider("hf_test", srv.URL, "mistral")
	out, err := p.Generate(context.Background(), "q", llm.WithMaxTokens(1024))

	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, "mistral", got.Model)
	assert.Equal(t, 1024, got.MaxTokens)
}

func TestHuggingFaceNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewHuggingFaceProvider("", srv.URL, "m").Generate(context.Background(), "q")
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}
