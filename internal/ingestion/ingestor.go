// Package ingestion receives survey uploads over HTTP and stores them through
// a Gateway.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"drilltrack/internal/metrics"
	"drilltrack/internal/survey"

	"golang.org/x/sync/errgroup"
)

var (
	ErrRunInsert   = errors.New("failed to insert run")
	ErrPointInsert = errors.New("failed to insert point")
	ErrBind        = errors.New("failed to bind data server")
)

// Gateway is the persistence backend used by the ingestion pipeline.
type Gateway interface {
	InsertRun(ctx context.Context, run survey.Run) (int64, error)
	InsertPoint(ctx context.Context, p survey.Point) (int64, error)
	ListRuns(ctx context.Context) ([]survey.Run, error)
	ListPoints(ctx context.Context, runID int64) ([]survey.Point, error)
}

const defaultPointConcurrency = 8

// Ingestor stores uploads: the run first, then its points concurrently.
//
// Storage is not transactional. When a point insert fails the run and any
// points already written stay in place and the error is returned, so a client
// retry may store the run a second time.
type Ingestor struct {
	gateway     Gateway
	metrics     *metrics.Metrics
	log         *slog.Logger
	concurrency int
}

func NewIngestor(gateway Gateway, m *metrics.Metrics, log *slog.Logger) *Ingestor {
	if m == nil {
		m = metrics.New()
	}
	return &Ingestor{
		gateway:     gateway,
		metrics:     m,
		log:         log,
		concurrency: defaultPointConcurrency,
	}
}

// Persist stores the upload and returns the id assigned to its run. No point
// is written unless the run insert succeeded.
func (i *Ingestor) Persist(ctx context.Context, u survey.Upload) (int64, error) {
	const op = "ingestion.Persist"
	log := i.log.With(slog.String("op", op))

	if u.Run == nil {
		return 0, survey.ErrMissingRun
	}

	start := time.Now()
	defer func() {
		i.metrics.PersistDuration.Observe(time.Since(start).Seconds())
	}()

	runID, err := i.gateway.InsertRun(ctx, *u.Run)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRunInsert, err)
	}

	var g errgroup.Group
	g.SetLimit(i.concurrency)
	for _, p := range u.Points {
		p := p
		p.RunID = &runID
		g.Go(func() error {
			if _, err := i.gateway.InsertPoint(ctx, p); err != nil {
				return fmt.Errorf("%w: depth %v: %v", ErrPointInsert, p.Depth, err)
			}
			i.metrics.IngestionPoints.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return runID, err
	}

	log.Debug("Upload stored",
		slog.Int64("run_id", runID),
		slog.String("run", u.Run.Name),
		slog.Int("points", len(u.Points)),
		slog.String("device_id", u.DeviceID),
	)
	return runID, nil
}

func (i *Ingestor) Gateway() Gateway {
	return i.gateway
}
