package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/model"
)

// Settler runs the settlement pipeline for one project
type Settler interface {
	Settle(ctx context.Context, projectID string) (*model.SettleResult, error)
}

// SettleJob settles one project
type SettleJob struct {
	ProjectID string
	Settler   Settler
}

// Execute runs the settlement. A project always stays on one goroutine.
func (j *SettleJob) Execute(ctx context.Context) Result {
	start := time.Now()
	res, err := j.Settler.Settle(ctx, j.ProjectID)
	return &SettleResult{
		ProjectID: j.ProjectID,
		Result:    res,
		Error:     err,
		Duration:  time.Since(start),
	}
}

// SettleResult is the outcome of one project in a batch
type SettleResult struct {
	ProjectID string
	Result    *model.SettleResult
	Error     error
	Duration  time.Duration
}

// GetError returns the settlement error
func (r *SettleResult) GetError() error {
	return r.Error
}

// OK reports whether the project settled without error and with ok=true
func (r *SettleResult) OK() bool {
	return r.Error == nil && r.Result != nil && r.Result.OK
}

// BatchProcessor settles several projects concurrently
type BatchProcessor struct {
	settler     Settler
	concurrency int
	logger      *zap.Logger
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(settler Settler, concurrency int, logger *zap.Logger) *BatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		settler:     settler,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ProcessProjects settles every project and returns results in input order
func (b *BatchProcessor) ProcessProjects(ctx context.Context, projectIDs []string) []*SettleResult {
	if len(projectIDs) == 0 {
		return []*SettleResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, id := range projectIDs {
		if !pool.Submit(&SettleJob{ProjectID: id, Settler: b.settler}) {
			b.logger.Warn("batch cancelled before project was queued", zap.String("project", id))
		}
	}

	results := pool.Wait()

	out := make([]*SettleResult, len(results))
	for i, r := range results {
		out[i] = r.(*SettleResult)
		b.logger.Debug("project settled",
			zap.String("project", out[i].ProjectID),
			zap.Bool("ok", out[i].OK()),
			zap.Duration("took", out[i].Duration))
	}
	return out
}

// ProcessFile reads project ids from a file and settles them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*SettleResult, error) {
	ids, err := ReadProjectIDs(filePath)
	if err != nil {
		return nil, fmt.Errorf("read project ids: %w", err)
	}

	return b.ProcessProjects(ctx, ids), nil
}

// Summarize counts successful and failed projects
func Summarize(results []*SettleResult) (ok, failed int) {
	for _, r := range results {
		if r.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// ReadProjectIDs reads one project id per line. Blank lines and # comments are
// skipped and duplicates dropped.
func ReadProjectIDs(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var ids []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			ids = append(ids, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return ids, nil
}
