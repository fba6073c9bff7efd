// Package artifact is a thin typed client for the artifact repository
// service (GitHub's REST API): repository creation, contents read/write with
// optimistic-concurrency tokens, and Pages hosting.
//
// No operation retries internally. Retrying here would mask authentication
// and quota errors that must fail fast; bounded polling belongs to the
// convergence layer.
package artifact

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("artifact-client")

// APIError is a non-2xx response from the artifact repository service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("artifact repository returned status %d: %s", e.StatusCode, e.Body)
}

// Client performs typed operations against the GitHub REST API for one owner.
type Client struct {
	baseURL    string
	owner      string
	token      string
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewClient creates an artifact repository client.
func NewClient(baseURL, owner, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		owner:   owner,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tracer: tracer,
	}
}

// Owner returns the repository owner this client operates as.
func (c *Client) Owner() string { return c.owner }

// RepoURL returns the browsable URL of a repository.
func (c *Client) RepoURL(name string) string {
	return fmt.Sprintf("https://github.com/%s/%s", c.owner, name)
}

// PagesURL returns the public hosting URL of a repository.
func (c *Client) PagesURL(name string) string {
	return fmt.Sprintf("https://%s.github.io/%s/", strings.ToLower(c.owner), name)
}

// CreateRepository creates a new public repository and returns its browsable
// URL.
func (c *Client) CreateRepository(ctx context.Context, name string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "artifact.create_repository")
	defer span.End()
	span.SetAttributes(attribute.String("repo.name", name))

	payload := map[string]interface{}{
		"name":             name,
		"private":          false,
		"license_template": "mit",
	}

	var resp struct {
		HTMLURL string `json:"html_url"`
	}
	if err := c.do(ctx, http.MethodPost, "/user/repos", payload, &resp, http.StatusCreated); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to create repository %s: %w", name, err)
	}

	if resp.HTMLURL == "" {
		resp.HTMLURL = c.RepoURL(name)
	}
	return resp.HTMLURL, nil
}

// EnablePages enables static hosting for a repository, building from the
// root of the main branch.
func (c *Client) EnablePages(ctx context.Context, name string) error {
	ctx, span := c.tracer.Start(ctx, "artifact.enable_pages")
	defer span.End()
	span.SetAttributes(attribute.String("repo.name", name))

	payload := map[string]interface{}{
		"build_type": "legacy",
		"source": map[string]string{
			"branch": "main",
			"path":   "/",
		},
	}

	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/pages", c.owner, name), payload, nil, http.StatusCreated); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to enable pages for %s: %w", name, err)
	}
	return nil
}

// LatestCommit returns the sha of the newest commit on a branch.
func (c *Client) LatestCommit(ctx context.Context, name, branch string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "artifact.latest_commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("repo.name", name),
		attribute.String("repo.branch", branch),
	)

	var resp struct {
		SHA string `json:"sha"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/commits/%s", c.owner, name, branch), nil, &resp, http.StatusOK); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to get latest commit for %s: %w", name, err)
	}
	return resp.SHA, nil
}

// ListFiles returns the paths of regular files at the root of a repository.
func (c *Client) ListFiles(ctx context.Context, name string) ([]string, error) {
	ctx, span := c.tracer.Start(ctx, "artifact.list_files")
	defer span.End()
	span.SetAttributes(attribute.String("repo.name", name))

	var entries []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/contents/", c.owner, name), nil, &entries, http.StatusOK); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list files in %s: %w", name, err)
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type == "file" {
			paths = append(paths, e.Path)
		}
	}
	return paths, nil
}

// ReadFile returns the decoded content of a file.
func (c *Client) ReadFile(ctx context.Context, name, path string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "artifact.read_file")
	defer span.End()
	span.SetAttributes(
		attribute.String("repo.name", name),
		attribute.String("file.path", path),
	)

	var resp struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, name, path), nil, &resp, http.StatusOK); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to read file %s in %s: %w", path, name, err)
	}

	if resp.Encoding != "base64" {
		return resp.Content, nil
	}
	// The contents API wraps base64 bodies across lines.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("failed to decode file %s in %s: %w", path, name, err)
	}
	return string(decoded), nil
}

// FileToken returns the revision token (content sha) of a file, or the empty
// string when the file does not exist. Presence of the token is the sole
// signal for choosing update over create on the next write.
func (c *Client) FileToken(ctx context.Context, name, path string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "artifact.file_token")
	defer span.End()
	span.SetAttributes(
		attribute.String("repo.name", name),
		attribute.String("file.path", path),
	)

	var resp struct {
		SHA string `json:"sha"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, name, path), nil, &resp, http.StatusOK)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return "", nil
		}
		span.RecordError(err)
		return "", fmt.Errorf("failed to probe file %s in %s: %w", path, name, err)
	}
	return resp.SHA, nil
}

// WriteFile creates or updates a file and returns the resulting commit sha.
// An empty token creates; a non-empty token overwrites the version it
// identifies. A stale token surfaces as an *APIError conflict, never a
// silent retry.
func (c *Client) WriteFile(ctx context.Context, name, path, content, token string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "artifact.write_file")
	defer span.End()
	span.SetAttributes(
		attribute.String("repo.name", name),
		attribute.String("file.path", path),
		attribute.Bool("file.update", token != ""),
	)

	payload := map[string]interface{}{
		"message": fmt.Sprintf("Add %s", path),
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
	}
	if token != "" {
		payload["sha"] = token
	}

	var resp struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, name, path), payload, &resp, http.StatusOK, http.StatusCreated); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to push file %s to %s: %w", path, name, err)
	}
	return resp.Commit.SHA, nil
}

// PagesBuild describes the most recent static-hosting build.
type PagesBuild struct {
	Status string `json:"status"`
	Commit string `json:"commit"`
}

// LatestPagesBuild returns the most recent hosting build for a repository.
func (c *Client) LatestPagesBuild(ctx context.Context, name string) (*PagesBuild, error) {
	ctx, span := c.tracer.Start(ctx, "artifact.latest_pages_build")
	defer span.End()
	span.SetAttributes(attribute.String("repo.name", name))

	var build PagesBuild
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pages/builds/latest", c.owner, name), nil, &build, http.StatusOK); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get latest pages build for %s: %w", name, err)
	}
	return &build, nil
}

// do performs one authenticated request and decodes a JSON response. Any
// status outside okStatuses maps to *APIError carrying the body.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}, okStatuses ...int) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	ok := false
	for _, s := range okStatuses {
		if resp.StatusCode == s {
			ok = true
			break
		}
	}
	if !ok {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
