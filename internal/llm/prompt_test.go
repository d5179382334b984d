package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPrompt(t *testing.T) {
	p, err := LoadPrompt()
	require.NoError(t, err)
	assert.NotEmpty(t, p.Version)
	assert.Len(t, p.Examples, 3)

	for _, ex := range p.Examples {
		got, err := ParseAnswer(ex.Assistant)
		require.NoError(t, err, "few-shot answers must be valid extractions")
		assert.NotEmpty(t, got.Province)
	}

	msgs := p.Messages("新闻")
	assert.Len(t, msgs, 2+2*len(p.Examples))
	assert.Equal(t, RoleUser, msgs[len(msgs)-1].Role)
}

func TestParsePrompt_Invalid(t *testing.T) {
	_, err := ParsePrompt([]byte("version: x\n"))
	assert.Error(t, err)

	_, err = ParsePrompt([]byte("system: hi\nexamples:\n  - user: a\n"))
	assert.Error(t, err)
}

func TestOpenAIChatClient_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1", "object": "chat.completion", "created": 1, "model": "qwen",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"province\": \"北京\", \"city\": \"北京\"}"}}]
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIChatClient(srv.URL+"/v1", "", "qwen")
	out, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "q"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "北京")
	assert.Equal(t, "qwen", body["model"])
	assert.EqualValues(t, 0, body["temperature"])
	assert.Len(t, body["messages"], 2)
}

func TestOpenAIChatClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "created": 1, "model": "qwen", "choices": []}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIChatClient(srv.URL, "", "qwen").Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	assert.ErrorIs(t, err, ErrInferenceFailed)
}
