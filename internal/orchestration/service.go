// Package orchestration sequences generation, publication and
// deployment-verification for one task: a two-round workflow over the
// generation client, the artifact repository client and the reconciler,
// followed by bounded convergence polling.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/taskforge/pagesmith/internal/artifact"
	"github.com/taskforge/pagesmith/internal/converge"
	"github.com/taskforge/pagesmith/internal/metrics"
	"github.com/taskforge/pagesmith/internal/models"
)

var serviceTracer = otel.Tracer("round-orchestrator")

// ErrEmptyGeneration means the generative service yielded no extractable
// files. It is fatal for both rounds: round 1 must not bootstrap an empty
// repository, round 2 must not wipe a working deployment with a no-op push.
var ErrEmptyGeneration = errors.New("generation produced no files")

// ErrInvalidRound is returned for any round other than 1 or 2.
var ErrInvalidRound = errors.New("invalid round")

// Generator produces files for a task, optionally seeded with existing file
// snapshots. An empty result means generation failed.
type Generator interface {
	Generate(ctx context.Context, task *models.Task, existing []models.GeneratedFile) []models.GeneratedFile
}

// RepositoryClient is the artifact repository surface the orchestrator uses.
type RepositoryClient interface {
	CreateRepository(ctx context.Context, name string) (string, error)
	EnablePages(ctx context.Context, name string) error
	LatestCommit(ctx context.Context, name, branch string) (string, error)
	ListFiles(ctx context.Context, name string) ([]string, error)
	ReadFile(ctx context.Context, name, path string) (string, error)
	LatestPagesBuild(ctx context.Context, name string) (*artifact.PagesBuild, error)
	RepoURL(name string) string
	PagesURL(name string) string
}

// Pusher reconciles a file set into a repository.
type Pusher interface {
	Push(ctx context.Context, repoName string, files []models.GeneratedFile) error
}

// Service is the round orchestrator.
type Service struct {
	repos  RepositoryClient
	gen    Generator
	pusher Pusher
	waiter *converge.Waiter
	events *EventBus
	tracer trace.Tracer

	taskMetrics *metrics.TaskMetrics

	// probePage reports whether a public URL is reachable. Injectable for
	// tests; defaults to an HTTP GET expecting a 2xx.
	probePage func(ctx context.Context, url string) (bool, error)
}

// NewService creates a round orchestrator.
func NewService(repos RepositoryClient, gen Generator, pusher Pusher, waiter *converge.Waiter, events *EventBus) *Service {
	return &Service{
		repos:     repos,
		gen:       gen,
		pusher:    pusher,
		waiter:    waiter,
		events:    events,
		tracer:    serviceTracer,
		probePage: probePageHTTP,
	}
}

// SetMetrics attaches a metrics collector. Optional.
func (s *Service) SetMetrics(tm *metrics.TaskMetrics) {
	s.taskMetrics = tm
}

// Run executes the workflow for the task's round and waits for convergence.
// Convergence timeout is non-fatal: the result is still returned, it just
// reflects an unconfirmed deployment.
func (s *Service) Run(ctx context.Context, runID string, task *models.Task) (*models.TaskResult, error) {
	ctx, span := s.tracer.Start(ctx, "orchestration.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("task.name", task.Name),
		attribute.Int("task.round", task.Round),
	)

	var result *models.TaskResult
	var err error

	switch task.Round {
	case 1:
		result, err = s.runRound1(ctx, runID, task)
	case 2:
		result, err = s.runRound2(ctx, runID, task)
	default:
		err = fmt.Errorf("%w: %d", ErrInvalidRound, task.Round)
	}

	if err != nil {
		span.RecordError(err)
		s.publish(runID, task, StateFailed, err.Error())
		return nil, err
	}

	s.awaitConvergence(ctx, runID, task, result)
	s.publish(runID, task, StateDone, "")
	return result, nil
}

// runRound1 bootstraps: generation and repository creation run concurrently,
// then publish, enable hosting and read the anchoring revision.
func (s *Service) runRound1(ctx context.Context, runID string, task *models.Task) (*models.TaskResult, error) {
	repoName := task.RepoName()

	var files []models.GeneratedFile
	var repoURL string

	// Generation and repository creation have no data dependency; publishing
	// needs both.
	g, gctx := errgroup.WithContext(ctx)
	s.publish(runID, task, StateGenerating, "")
	s.publish(runID, task, StateCreatingRepo, repoName)
	g.Go(func() error {
		files = s.gen.Generate(gctx, task, nil)
		return nil
	})
	g.Go(func() error {
		url, err := s.repos.CreateRepository(gctx, repoName)
		if err != nil {
			return err
		}
		repoURL = url
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	if len(files) == 0 {
		return nil, ErrEmptyGeneration
	}

	s.publish(runID, task, StatePublishing, "")
	if err := s.pusher.Push(ctx, repoName, files); err != nil {
		return nil, err
	}

	// Hosting is enabled after publishing so the first build observes real
	// content.
	s.publish(runID, task, StateEnablingHosting, "")
	if err := s.repos.EnablePages(ctx, repoName); err != nil {
		return nil, err
	}

	s.publish(runID, task, StateReadingRevision, "")
	sha, err := s.repos.LatestCommit(ctx, repoName, "main")
	if err != nil {
		return nil, err
	}

	return s.result(task, repoURL, sha), nil
}

// runRound2 updates incrementally: fetch context, generate against it,
// publish, read the final revision. Strictly sequential.
func (s *Service) runRound2(ctx context.Context, runID string, task *models.Task) (*models.TaskResult, error) {
	repoName := task.RepoName()

	s.publish(runID, task, StateFetchingContext, repoName)
	existing, err := s.fetchContext(ctx, repoName)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repository context: %w", err)
	}

	s.publish(runID, task, StateGenerating, "")
	files := s.gen.Generate(ctx, task, existing)
	if len(files) == 0 {
		return nil, ErrEmptyGeneration
	}

	s.publish(runID, task, StatePublishing, "")
	if err := s.pusher.Push(ctx, repoName, files); err != nil {
		return nil, err
	}

	s.publish(runID, task, StateReadingRevision, "")
	sha, err := s.repos.LatestCommit(ctx, repoName, "main")
	if err != nil {
		return nil, err
	}

	return s.result(task, s.repos.RepoURL(repoName), sha), nil
}

// fetchContext reads current repository contents as prompt context. Fetched
// fresh per invocation; never cached across invocations.
func (s *Service) fetchContext(ctx context.Context, repoName string) ([]models.GeneratedFile, error) {
	paths, err := s.repos.ListFiles(ctx, repoName)
	if err != nil {
		return nil, err
	}

	snapshots := make([]models.GeneratedFile, 0, len(paths))
	for _, path := range paths {
		content, err := s.repos.ReadFile(ctx, repoName, path)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, models.GeneratedFile{Path: path, Content: content})
	}
	return snapshots, nil
}

// awaitConvergence polls for the round's observable side effect. Round 1
// waits for the hosting URL to answer; round 2 waits for the hosting build
// to report the just-published revision.
func (s *Service) awaitConvergence(ctx context.Context, runID string, task *models.Task, result *models.TaskResult) {
	repoName := task.RepoName()
	s.publish(runID, task, StateConverging, "")

	var res converge.Result
	if task.Round == 1 {
		res = s.waiter.Await(ctx, func(ctx context.Context) (bool, error) {
			return s.probePage(ctx, result.PagesURL)
		})
	} else {
		res = s.waiter.Await(ctx, func(ctx context.Context) (bool, error) {
			build, err := s.repos.LatestPagesBuild(ctx, repoName)
			if err != nil {
				return false, err
			}
			return build.Status == "built" && build.Commit == result.CommitSHA, nil
		})
	}

	if res.Reached {
		log.Printf(`{"level":"info","message":"Deployment confirmed","task":"%s","round":%d,"attempts":%d}`,
			task.Name, task.Round, res.Attempts)
	} else {
		log.Printf(`{"level":"warn","message":"Deployment unconfirmed after polling","task":"%s","round":%d,"attempts":%d}`,
			task.Name, task.Round, res.Attempts)
		if s.taskMetrics != nil {
			s.taskMetrics.RecordConvergenceUnconfirmed(ctx, task.Name, task.Round)
		}
	}
}

func (s *Service) result(task *models.Task, repoURL, sha string) *models.TaskResult {
	return &models.TaskResult{
		Email:     task.Email,
		Task:      task.Name,
		Round:     task.Round,
		Nonce:     task.Nonce,
		RepoURL:   repoURL,
		CommitSHA: sha,
		PagesURL:  s.repos.PagesURL(task.RepoName()),
	}
}

func (s *Service) publish(runID string, task *models.Task, state State, detail string) {
	if s.events == nil {
		return
	}
	s.events.Publish(Event{
		RunID:  runID,
		Task:   task.Name,
		Round:  task.Round,
		State:  state,
		Detail: detail,
	})
}

func probePageHTTP(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false, err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}
