package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/shotcoach/pkg/client"
)

func completionServer(t *testing.T, status int, content any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 1)

		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte("model not loaded"))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
}

func TestLocateSubject(t *testing.T) {
	srv := completionServer(t, http.StatusOK, `{"label": "car", "confidence": 0.7, "box": {"x": 0.1, "y": 0.4, "w": 0.5, "h": 0.3}}`)
	defer srv.Close()

	loc, err := NewClient(srv.URL+"/").LocateSubject(context.Background(), "qwen2-vl", "", "aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "car", loc.Label)
	assert.InDelta(t, 0.4, loc.Box.Y, 1e-9)
}

func TestLocateSubjectContentParts(t *testing.T) {
	parts := []any{map[string]any{"type": "text", "text": `{"label": "none", "box": {"x": 0, "y": 0, "w": 0, "h": 0}}`}}
	srv := completionServer(t, http.StatusOK, parts)
	defer srv.Close()

	_, err := NewClient(srv.URL).LocateSubject(context.Background(), "m", "", "aGVsbG8=")
	assert.ErrorIs(t, err, client.ErrNoSubject)
}

func TestLocateSubjectServerError(t *testing.T) {
	srv := completionServer(t, http.StatusServiceUnavailable, nil)
	defer srv.Close()

	_, err := NewClient(srv.URL).LocateSubject(context.Background(), "m", "", "aGVsbG8=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestLocateSubjectRequiresImage(t *testing.T) {
	_, err := NewClient("").LocateSubject(context.Background(), "m", "", "")
	assert.Error(t, err)
}
