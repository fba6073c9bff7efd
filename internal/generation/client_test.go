package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/pagesmith/internal/models"
)

func chatReply(content string) map[string]interface{} {
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
}

func testTask(round int) *models.Task {
	return &models.Task{
		Name:   "demo",
		Round:  round,
		Nonce:  "n1",
		Brief:  "Build a landing page",
		Checks: []string{"has a title", "responsive layout"},
		Attachments: []models.Attachment{
			{Name: "logo.png", URL: "https://example.com/logo.png"},
		},
	}
}

func TestClient_Generate(t *testing.T) {
	var captured chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(chatReply("<<README.md>>\n# demo\n<<END_FILE>>"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model")

	files := client.Generate(context.Background(), testTask(1), nil)

	require.Len(t, files, 1)
	assert.Equal(t, "README.md", files[0].Path)
	assert.Equal(t, "# demo", files[0].Content)

	assert.Equal(t, "test-model", captured.Model)
	assert.InDelta(t, 0.2, captured.Temperature, 0.001)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[0].Content, "from scratch")
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Contains(t, captured.Messages[1].Content, "Build a landing page")
	assert.Contains(t, captured.Messages[1].Content, "has a title")
	assert.Contains(t, captured.Messages[1].Content, "logo.png: https://example.com/logo.png")
	assert.NotContains(t, captured.Messages[1].Content, "EXISTING FILES")
}

func TestClient_GenerateRound2EmbedsContext(t *testing.T) {
	var captured chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(chatReply("<<index.html>>\n<!DOCTYPE html>\n<<END_FILE>>"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model")

	existing := []models.GeneratedFile{
		{Path: "index.html", Content: "<!DOCTYPE html>\n<html></html>"},
	}
	files := client.Generate(context.Background(), testTask(2), existing)

	require.Len(t, files, 1)

	assert.Contains(t, captured.Messages[0].Content, "changed or new files")
	assert.Contains(t, captured.Messages[1].Content, "--- EXISTING FILES ---")
	assert.Contains(t, captured.Messages[1].Content, "<<index.html>>")
	assert.Contains(t, captured.Messages[1].Content, "<<END_FILE>>")
}

func TestClient_GenerateFailuresYieldEmptyResult(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse func(w http.ResponseWriter, r *http.Request)
	}{
		{
			name: "server_error",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("upstream exploded"))
			},
		},
		{
			name: "invalid_json",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
		{
			name: "no_choices",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices":[]}`))
			},
		},
		{
			name: "reply_without_file_blocks",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				resp := chatReply("I'm sorry, I can't help with that.")
				json.NewEncoder(w).Encode(resp)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResponse))
			defer server.Close()

			client := NewClient(server.URL, "test-key", "test-model")
			files := client.Generate(context.Background(), testTask(1), nil)
			assert.Empty(t, files)
		})
	}
}

func TestClient_GenerateTransportFailureYieldsEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // client dials a dead server

	client := NewClient(server.URL, "test-key", "test-model")
	files := client.Generate(context.Background(), testTask(2), nil)
	assert.Empty(t, files)
}

func TestUserPromptOmitsOptionalSections(t *testing.T) {
	task := &models.Task{Name: "demo", Round: 1, Nonce: "n1", Brief: "b"}

	prompt := userPrompt(task, nil)

	assert.NotContains(t, prompt, "ATTACHMENTS")
	assert.NotContains(t, prompt, "Checks:")
	assert.True(t, strings.Contains(prompt, "<<FILENAME.ext>>"))
}
