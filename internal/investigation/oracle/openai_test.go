package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAIServer(t *testing.T, status int, body string) (*httptest.Server, *map[string]any) {
	t.Helper()
	captured := map[string]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestOpenAIOracle_Complete(t *testing.T) {
	srv, captured := newOpenAIServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"riskScore\": 72}"}, "finish_reason": "stop"}]
	}`)
	o := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini", JSONMode: true}, srv.Client())

	out, err := o.Complete(context.Background(), "assess this")

	require.NoError(t, err)
	assert.Equal(t, `{"riskScore": 72}`, out)
	assert.Equal(t, "gpt-4o-mini", (*captured)["model"])
	messages, ok := (*captured)["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "assess this", messages[1].(map[string]any)["content"])
	assert.NotNil(t, (*captured)["response_format"])
}

func TestOpenAIOracle_EmptyChoices(t *testing.T) {
	srv, _ := newOpenAIServer(t, http.StatusOK, `{"id": "chatcmpl-2", "choices": []}`)
	o := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"}, srv.Client())

	_, err := o.Complete(context.Background(), "assess this")

	require.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, ReasonEmptyResponse, Classify(err))
}

func TestOpenAIOracle_QuotaError(t *testing.T) {
	srv, _ := newOpenAIServer(t, http.StatusTooManyRequests, `{
		"error": {"message": "You exceeded your current quota", "type": "insufficient_quota", "code": "insufficient_quota"}
	}`)
	o := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"}, srv.Client())

	_, err := o.Complete(context.Background(), "assess this")

	require.Error(t, err)
	assert.Equal(t, ReasonQuota, Classify(err))
}

func TestOpenAIOracle_ServerError(t *testing.T) {
	srv, _ := newOpenAIServer(t, http.StatusBadGateway, `upstream unavailable`)
	o := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"}, srv.Client())

	_, err := o.Complete(context.Background(), "assess this")

	require.Error(t, err)
	assert.Equal(t, ReasonTransport, Classify(err))
}
