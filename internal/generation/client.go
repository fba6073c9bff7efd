// Package generation builds round-aware prompts and invokes the generative
// text service (an OpenAI-compatible chat-completions endpoint), returning
// parsed files.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskforge/pagesmith/internal/models"
	"github.com/taskforge/pagesmith/internal/parser"
)

var tracer = otel.Tracer("generation-client")

// Temperature is fixed low for deterministic output.
const temperature = 0.2

// Client invokes the generative text service.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a generation client for an OpenAI-compatible
// chat-completions API rooted at baseURL.
func NewClient(baseURL, apiKey, model string) *Client {
	settings := gobreaker.Settings{
		Name:        "generation-service",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		tracer:  tracer,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// SetBaseURL sets the base URL for testing purposes
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate invokes the generative service with a round-aware prompt and
// returns the files parsed from its reply. Any transport error or
// non-success status is converted to an empty result rather than propagated;
// callers must treat an empty list as "generation failed".
func (c *Client) Generate(ctx context.Context, task *models.Task, existing []models.GeneratedFile) []models.GeneratedFile {
	ctx, span := c.tracer.Start(ctx, "generation.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.name", task.Name),
		attribute.Int("task.round", task.Round),
		attribute.Int("context.files", len(existing)),
	)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.complete(ctx, systemInstruction(task.Round), userPrompt(task, existing))
	})
	if err != nil {
		span.RecordError(err)
		log.Printf(`{"level":"error","message":"Generation failed","task":"%s","round":%d,"error":"%v"}`, task.Name, task.Round, err)
		return nil
	}

	files := parser.Parse(result.(string))
	span.SetAttributes(attribute.Int("generated.files", len(files)))
	return files
}

// complete performs one chat-completions request.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to invoke generation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("generation service returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return "", fmt.Errorf("generation service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("generation service returned no choices")
	}

	return chatResp.Choices[0].Message.Content, nil
}
