package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenAIEncoder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bge-large-zh-v1.5", body.Model)
		assert.Equal(t, []string{"江西", "南昌"}, body.Input)

		w.Header().Set("Content-Type", "application/json")
		// Out of order on purpose: vectors are placed by index.
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "bge-large-zh-v1.5",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.0, 1.0]},
				{"object": "embedding", "index": 0, "embedding": [1.0, 0.0]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer server.Close()

	enc, err := NewOpenAIEncoder(EncoderConfig{BaseURL: server.URL + "/v1", Model: "bge-large-zh-v1.5"}, zap.NewNop())
	require.NoError(t, err)

	out, err := enc.Embed(context.Background(), []string{"江西", "南昌"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
}

func TestOpenAIEncoder_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer server.Close()

	enc, err := NewOpenAIEncoder(EncoderConfig{BaseURL: server.URL + "/v1", Model: "m"}, zap.NewNop())
	require.NoError(t, err)

	_, err = enc.Embed(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestNewOpenAIEncoder_Validation(t *testing.T) {
	_, err := NewOpenAIEncoder(EncoderConfig{Model: "m"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewOpenAIEncoder(EncoderConfig{BaseURL: "http://localhost:1/v1"}, zap.NewNop())
	assert.Error(t, err)

	enc, err := NewOpenAIEncoder(EncoderConfig{BaseURL: "http://localhost:1/v1", Model: "m"}, zap.NewNop())
	require.NoError(t, err)
	out, err := enc.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
