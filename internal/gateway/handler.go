package gateway

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskforge/pagesmith/internal/auth"
	"github.com/taskforge/pagesmith/internal/metrics"
	"github.com/taskforge/pagesmith/internal/models"
	"github.com/taskforge/pagesmith/internal/orchestration"
	"github.com/taskforge/pagesmith/internal/store"
)

// TaskRunner executes one task round to completion.
type TaskRunner interface {
	Run(ctx context.Context, runID string, task *models.Task) (*models.TaskResult, error)
}

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	orchestrator TaskRunner
	secrets      *auth.SecretVerifier
	jwtManager   *auth.JWTManager
	taskStore    *store.Store
	taskMetrics  *metrics.TaskMetrics
	notifier     *Notifier
	worker       *Worker
	background   bool
}

// NewHandler creates a new gateway handler
func NewHandler(orchestrator TaskRunner, secrets *auth.SecretVerifier, jwtManager *auth.JWTManager, taskStore *store.Store, taskMetrics *metrics.TaskMetrics, notifier *Notifier, worker *Worker, background bool) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		secrets:      secrets,
		jwtManager:   jwtManager,
		taskStore:    taskStore,
		taskMetrics:  taskMetrics,
		notifier:     notifier,
		worker:       worker,
		background:   background,
	}
}

// AcceptedResponse acknowledges a task dispatched to the background worker.
type AcceptedResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

// HandleTask godoc
// @Summary Handle a generation task
// @Description Accept a task, generate a project with the generative service, publish it to the artifact repository and verify deployment. Returns the result synchronously, or an acknowledgement when background dispatch is enabled.
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body models.Task true "Task description"
// @Success 200 {object} models.TaskResult
// @Success 202 {object} AcceptedResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /handle_task [post]
func (h *Handler) HandleTask(c *gin.Context) {
	var task models.Task
	if err := c.ShouldBindJSON(&task); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	// Secret is checked before any side effect.
	if !h.secrets.Verify(task.Secret) {
		log.Printf(`{"level":"warn","message":"Invalid secret","task":"%s"}`, task.Name)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
		return
	}

	if task.Round != 1 && task.Round != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid round"})
		return
	}

	runID := uuid.New().String()
	ctx := c.Request.Context()

	h.taskMetrics.RecordTaskAccepted(ctx, task.Name, task.Round)
	if err := h.taskStore.RecordAccepted(ctx, runID, &task); err != nil {
		log.Printf(`{"level":"error","message":"Failed to record task run","run_id":"%s","error":"%v"}`, runID, err)
	}

	if h.background {
		// Detached execution: the request context dies with this request,
		// so the job runs on a fresh background context.
		queued := h.worker.Enqueue(func() {
			h.execute(context.Background(), runID, &task, true)
		})
		if !queued {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task queue is full"})
			return
		}
		c.JSON(http.StatusAccepted, AcceptedResponse{Status: "accepted", RunID: runID})
		return
	}

	result, err := h.execute(ctx, runID, &task, false)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, orchestration.ErrEmptyGeneration) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// execute runs one task, records the outcome, and notifies the evaluation
// URL. In background mode failures are also delivered to the sink, since no
// HTTP response can carry them.
func (h *Handler) execute(ctx context.Context, runID string, task *models.Task, background bool) (*models.TaskResult, error) {
	start := time.Now()

	result, err := h.orchestrator.Run(ctx, runID, task)
	if err != nil {
		h.taskMetrics.RecordTaskFailed(ctx, task.Name, task.Round, errorType(err), time.Since(start))
		if recErr := h.taskStore.RecordFailed(ctx, runID, err); recErr != nil {
			log.Printf(`{"level":"error","message":"Failed to record task failure","run_id":"%s","error":"%v"}`, runID, recErr)
		}
		log.Printf(`{"level":"error","message":"Task failed","run_id":"%s","task":"%s","round":%d,"error":"%v"}`, runID, task.Name, task.Round, err)

		if background && task.EvaluationURL != "" {
			h.notifier.Notify(ctx, task.EvaluationURL, gin.H{"error": err.Error()})
		}
		return nil, err
	}

	h.taskMetrics.RecordTaskCompleted(ctx, task.Name, task.Round, time.Since(start))
	if recErr := h.taskStore.RecordCompleted(ctx, runID, result); recErr != nil {
		log.Printf(`{"level":"error","message":"Failed to record task completion","run_id":"%s","error":"%v"}`, runID, recErr)
	}

	if task.EvaluationURL != "" {
		h.notifier.Notify(ctx, task.EvaluationURL, result)
	}
	return result, nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, orchestration.ErrEmptyGeneration):
		return "empty_generation"
	case errors.Is(err, orchestration.ErrInvalidRound):
		return "invalid_round"
	default:
		return "upstream_failure"
	}
}

// TokenRequest exchanges the shared secret for an operator JWT.
type TokenRequest struct {
	Secret string `json:"secret" binding:"required"`
}

// TokenResponse carries the issued operator token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken godoc
// @Summary Issue an operator token
// @Description Exchange the shared secret for a short-lived JWT used by the operator endpoints
// @Tags auth
// @Accept json
// @Produce json
// @Param request body TokenRequest true "Shared secret"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/auth/token [post]
func (h *Handler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !h.secrets.Verify(req.Secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
		return
	}

	const tokenTTL = 24 * time.Hour
	token, err := h.jwtManager.GenerateToken(c.Request.Context(), "operator", tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(tokenTTL),
	})
}

// ListTasks godoc
// @Summary List recorded task runs
// @Description Return recent task runs from the audit store, newest first
// @Tags tasks
// @Produce json
// @Param limit query int false "Maximum number of runs" default(50)
// @Success 200 {array} store.TaskRun
// @Failure 503 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/tasks [get]
func (h *Handler) ListTasks(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	runs, err := h.taskStore.ListRuns(c.Request.Context(), limit)
	if err != nil {
		if errors.Is(err, store.ErrDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task store is disabled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list task runs"})
		return
	}
	if runs == nil {
		runs = []*store.TaskRun{}
	}

	c.JSON(http.StatusOK, runs)
}
