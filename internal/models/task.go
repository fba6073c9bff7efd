package models

import (
	"fmt"
	"strings"
)

// Attachment references supplementary material for a task by name and URL.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Task is one unit of work accepted at request ingress. It is immutable after
// binding; its lifetime is the handling request plus any background execution
// it spawns.
type Task struct {
	Email         string       `json:"email"`
	Secret        string       `json:"secret"`
	Name          string       `json:"task" binding:"required"`
	Round         int          `json:"round" binding:"required"`
	Nonce         string       `json:"nonce" binding:"required"`
	Brief         string       `json:"brief"`
	Checks        []string     `json:"checks"`
	EvaluationURL string       `json:"evaluation_url"`
	Attachments   []Attachment `json:"attachments"`
}

// RepoName derives the artifact repository name for a task. It is a pure
// function of task name and nonce so round 2 resolves to the repository
// round 1 created.
func (t *Task) RepoName() string {
	return fmt.Sprintf("%s-%s", strings.TrimSpace(t.Name), strings.TrimSpace(t.Nonce))
}

// GeneratedFile is a single (path, content) pair extracted from generative
// service output. Both fields are non-empty after trimming; the parser never
// emits a malformed entry.
type GeneratedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// TaskResult is the externally visible outcome of a round, sent to the caller
// and to the notification sink.
type TaskResult struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}
