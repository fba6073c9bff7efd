package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierDeliversJSON(t *testing.T) {
	var got map[string]string
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier()
	n.Notify(context.Background(), server.URL, map[string]string{"status": "done"})

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "done", got["status"])
}

func TestNotifierSwallowsSinkErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewNotifier()
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), server.URL, map[string]string{"status": "done"})
	})
}

func TestNotifierSwallowsUnreachableSink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	n := NewNotifier()
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), server.URL, map[string]string{"status": "done"})
	})
}
