// Package reconcile upserts a generated file set into an artifact
// repository. Each file is resolved to create-or-update by probing for an
// existing revision token, then written with that token when present.
package reconcile

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskforge/pagesmith/internal/models"
)

var tracer = otel.Tracer("reconciler")

// RepoWriter is the subset of artifact repository operations the reconciler
// needs.
type RepoWriter interface {
	FileToken(ctx context.Context, repo, path string) (string, error)
	WriteFile(ctx context.Context, repo, path, content, token string) (string, error)
}

// Reconciler pushes file sets into repositories. The probe-then-write pair
// is not atomic, so pushes targeting the same repository are serialized by a
// per-repository-name mutex; with at most one writer per repository the
// stale-token race cannot occur.
type Reconciler struct {
	repo   RepoWriter
	tracer trace.Tracer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Reconciler over the given repository operations.
func New(repo RepoWriter) *Reconciler {
	return &Reconciler{
		repo:   repo,
		tracer: tracer,
		locks:  make(map[string]*sync.Mutex),
	}
}

// repoLock returns the mutex guarding one repository name.
func (r *Reconciler) repoLock(repoName string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[repoName]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[repoName] = lock
	}
	return lock
}

// Push upserts files into repoName, sequentially and in order. It is
// idempotent: re-invoking with the same file set turns every create into an
// update. A write rejected because its token went stale is surfaced as an
// error, not retried.
func (r *Reconciler) Push(ctx context.Context, repoName string, files []models.GeneratedFile) error {
	ctx, span := r.tracer.Start(ctx, "reconcile.push")
	defer span.End()
	span.SetAttributes(
		attribute.String("repo.name", repoName),
		attribute.Int("files.count", len(files)),
	)

	lock := r.repoLock(repoName)
	lock.Lock()
	defer lock.Unlock()

	for _, f := range files {
		token, err := r.repo.FileToken(ctx, repoName, f.Path)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to probe %s in %s: %w", f.Path, repoName, err)
		}

		if _, err := r.repo.WriteFile(ctx, repoName, f.Path, f.Content, token); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to push %s to %s: %w", f.Path, repoName, err)
		}
	}

	return nil
}
