package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/pagesmith/internal/auth"
	"github.com/taskforge/pagesmith/internal/metrics"
	"github.com/taskforge/pagesmith/internal/models"
	"github.com/taskforge/pagesmith/internal/orchestration"
)

type stubRunner struct {
	mu     sync.Mutex
	tasks  []*models.Task
	result *models.TaskResult
	err    error
	done   chan struct{}
}

func (s *stubRunner) Run(ctx context.Context, runID string, task *models.Task) (*models.TaskResult, error) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	if s.done != nil {
		defer close(s.done)
	}
	return s.result, s.err
}

func newTestHandler(t *testing.T, runner *stubRunner, background bool) (*Handler, *Worker) {
	t.Helper()
	m, err := metrics.NewTaskMetrics()
	require.NoError(t, err)
	jm, err := auth.NewJWTManager("test-signing-key")
	require.NoError(t, err)
	secrets, err := auth.NewSecretVerifier("hunter2", "")
	require.NoError(t, err)

	worker := NewWorker(4, 1)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		worker.Shutdown(ctx)
	})

	h := NewHandler(
		runner,
		secrets,
		jm,
		nil, // store disabled
		m,
		NewNotifier(),
		worker,
		background,
	)
	return h, worker
}

func postTask(h *Handler, body interface{}) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/handle_task", h.HandleTask)

	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/handle_task", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validTask() map[string]interface{} {
	return map[string]interface{}{
		"email":  "student@example.com",
		"secret": "hunter2",
		"task":   "landing-page",
		"round":  1,
		"nonce":  "ab12",
		"brief":  "Build a landing page",
	}
}

func TestHandleTaskSyncSuccess(t *testing.T) {
	runner := &stubRunner{result: &models.TaskResult{
		Email:     "student@example.com",
		Task:      "landing-page",
		Round:     1,
		Nonce:     "ab12",
		RepoURL:   "https://github.com/acme/landing-page-ab12",
		CommitSHA: "deadbeef",
		PagesURL:  "https://acme.github.io/landing-page-ab12/",
	}}
	h, _ := newTestHandler(t, runner, false)

	w := postTask(h, validTask())

	require.Equal(t, http.StatusOK, w.Code)
	var result models.TaskResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "deadbeef", result.CommitSHA)
	assert.Equal(t, "https://acme.github.io/landing-page-ab12/", result.PagesURL)
	assert.Len(t, runner.tasks, 1)
}

func TestHandleTaskInvalidSecret(t *testing.T) {
	runner := &stubRunner{}
	h, _ := newTestHandler(t, runner, false)

	body := validTask()
	body["secret"] = "wrong"
	w := postTask(h, body)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid secret")
	assert.Empty(t, runner.tasks)
}

func TestHandleTaskInvalidRound(t *testing.T) {
	runner := &stubRunner{}
	h, _ := newTestHandler(t, runner, false)

	body := validTask()
	body["round"] = 3
	w := postTask(h, body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid round")
	assert.Empty(t, runner.tasks)
}

func TestHandleTaskMissingFields(t *testing.T) {
	runner := &stubRunner{}
	h, _ := newTestHandler(t, runner, false)

	w := postTask(h, map[string]interface{}{"secret": "hunter2"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, runner.tasks)
}

func TestHandleTaskEmptyGenerationMapsToBadGateway(t *testing.T) {
	runner := &stubRunner{err: orchestration.ErrEmptyGeneration}
	h, _ := newTestHandler(t, runner, false)

	w := postTask(h, validTask())

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandleTaskUpstreamFailure(t *testing.T) {
	runner := &stubRunner{err: errors.New("repository creation failed")}
	h, _ := newTestHandler(t, runner, false)

	w := postTask(h, validTask())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "repository creation failed")
}

func TestHandleTaskBackgroundAccepted(t *testing.T) {
	done := make(chan struct{})
	runner := &stubRunner{result: &models.TaskResult{}, done: done}
	h, _ := newTestHandler(t, runner, true)

	w := postTask(h, validTask())

	require.Equal(t, http.StatusAccepted, w.Code)
	var ack AcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, "accepted", ack.Status)
	assert.NotEmpty(t, ack.RunID)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background job never ran")
	}
}

func TestHandleTaskBackgroundQueueFull(t *testing.T) {
	runner := &stubRunner{result: &models.TaskResult{}}
	h, worker := newTestHandler(t, runner, true)

	// Saturate the pool and the queue so the next dispatch is rejected.
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	require.True(t, worker.Enqueue(func() {
		close(started)
		<-block
	}))
	<-started
	for worker.Enqueue(func() { <-block }) {
	}

	w := postTask(h, validTask())

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "queue is full")
}

func TestHandleTaskNotifiesEvaluationURL(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	runner := &stubRunner{result: &models.TaskResult{
		Task:      "landing-page",
		CommitSHA: "deadbeef",
	}}
	h, _ := newTestHandler(t, runner, false)

	body := validTask()
	body["evaluation_url"] = sink.URL
	w := postTask(h, body)

	require.Equal(t, http.StatusOK, w.Code)
	select {
	case payload := <-received:
		assert.Equal(t, "deadbeef", payload["commit_sha"])
	case <-time.After(2 * time.Second):
		t.Fatal("notification never delivered")
	}
}

func TestIssueToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newTestHandler(t, &stubRunner{}, false)

	router := gin.New()
	router.POST("/auth/token", h.IssueToken)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "valid secret", body: `{"secret":"hunter2"}`, wantStatus: http.StatusOK},
		{name: "wrong secret", body: `{"secret":"nope"}`, wantStatus: http.StatusUnauthorized},
		{name: "missing secret", body: `{}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/auth/token", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				var resp TokenResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
				assert.True(t, resp.ExpiresAt.After(time.Now()))
			}
		})
	}
}

func TestListTasksStoreDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newTestHandler(t, &stubRunner{}, false)

	router := gin.New()
	router.GET("/api/tasks", h.ListTasks)

	req := httptest.NewRequest("GET", "/api/tasks", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "disabled")
}

func TestListTasksInvalidLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newTestHandler(t, &stubRunner{}, false)

	router := gin.New()
	router.GET("/api/tasks", h.ListTasks)

	req := httptest.NewRequest("GET", "/api/tasks?limit=zero", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
