package gateway

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskforge/pagesmith/internal/orchestration"
)

var wsTracer = otel.Tracer("task-stream")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Operator endpoints sit behind JWT auth; origin is not the gate.
		return true
	},
}

// TaskStream streams task lifecycle events over WebSocket.
type TaskStream struct {
	events *orchestration.EventBus
	tracer trace.Tracer
}

// NewTaskStream creates a WebSocket streamer over the orchestrator's event
// bus.
func NewTaskStream(events *orchestration.EventBus) *TaskStream {
	return &TaskStream{
		events: events,
		tracer: wsTracer,
	}
}

// StreamTask handles WebSocket /api/ws/tasks/:id
// @Summary Stream task progress
// @Description WebSocket endpoint streaming state transitions of a running task
// @Tags tasks
// @Param id path string true "Run ID"
// @Param Authorization header string true "Bearer token"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} map[string]string
// @Security BearerAuth
// @Router /api/ws/tasks/{id} [get]
func (s *TaskStream) StreamTask(c *gin.Context) {
	_, span := s.tracer.Start(c.Request.Context(), "task_stream.stream")
	defer span.End()

	runID := c.Param("id")
	span.SetAttributes(attribute.String("run.id", runID))

	events, cancel := s.events.Subscribe(runID)
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		log.Printf(`{"level":"warn","message":"Failed to upgrade connection","run_id":"%s","error":"%v"}`, runID, err)
		return
	}
	defer conn.Close()

	// Drain reads so client-initiated close frames are processed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf(`{"level":"warn","message":"Failed to write event","run_id":"%s","error":"%v"}`, runID, err)
				return
			}
			if ev.State == orchestration.StateDone || ev.State == orchestration.StateFailed {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.State)))
				return
			}
		case <-clientGone:
			return
		}
	}
}
