package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscaldesk/support-platform/internal/model"
)

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestHTTPClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		if r.PathValue("id") == "missing" {
			writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
			return
		}
		writeTestJSON(w, http.StatusOK, model.Conversation{ID: r.PathValue("id"), Status: model.StatusActiveHuman})
	})
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("since"))
		writeTestJSON(w, http.StatusOK, model.ListMessagesResponse{
			Messages: []model.Message{{Sequence: 8, Content: "hi"}},
		})
	})
	mux.HandleFunc("POST /api/v1/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusConflict, map[string]string{"error": "conversation has ended"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret", time.Second)
	ctx := context.Background()

	conv, err := c.FetchConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActiveHuman, conv.Status)

	_, err = c.FetchConversation(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	msgs, err := c.FetchMessages(ctx, "conv-1", 7)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, uint64(8), msgs[0].Sequence)

	_, err = c.SendMessage(ctx, "conv-1", &model.AppendMessageRequest{Content: "late"})
	assert.ErrorIs(t, err, model.ErrPreconditionFailed)
	assert.Contains(t, err.Error(), "conversation has ended")
}

func TestHTTPClientUnreachable(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", "", 200*time.Millisecond)

	_, err := c.FetchConversation(context.Background(), "conv-1")
	assert.ErrorIs(t, err, model.ErrTransientDelivery)
}
