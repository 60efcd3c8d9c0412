package metatile

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/paulmach/orb/maptile"

	"metatiled/internal/pkg/errors"
	"metatiled/internal/pkg/logger"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// RenderFunc renders the image of a single tile.
type RenderFunc func(ctx context.Context, tile maptile.Tile) (image.Image, error)

// Pool renders a batch of tile jobs on a fixed number of goroutines. A Pool
// holds no goroutines between calls to Run.
type Pool struct {
	workers int
	log     *logger.Logger
}

// NewPool returns a pool of the given size; workers < 1 selects DefaultWorkers.
func NewPool(workers int, log *logger.Logger) *Pool {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Pool{workers: workers, log: log}
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Run attempts every in-range job exactly once and returns after all of them
// finished. Out-of-range jobs are marked JobSkipped and never handed to
// render. Render failures do not stop the batch: the job is marked JobFailed
// and the failures are returned joined together.
func (p *Pool) Run(ctx context.Context, jobs []*TileJob, render RenderFunc) error {
	queue := make(chan *TileJob, len(jobs))
	for _, job := range jobs {
		if !inRange(job.Tile) {
			job.State = JobSkipped
			continue
		}
		queue <- job
	}
	close(queue)

	workers := min(p.workers, len(queue))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for job := range queue {
				p.renderJob(ctx, job, render)
			}
		}()
	}
	wg.Wait()

	var failures []error
	for _, job := range jobs {
		if job.State == JobFailed {
			failures = append(failures, job.Err)
		}
	}
	return errors.Join(failures...)
}

func (p *Pool) renderJob(ctx context.Context, job *TileJob, render RenderFunc) {
	img, err := safeRender(ctx, job.Tile, render)
	if err == nil && img == nil {
		err = fmt.Errorf("renderer returned no image")
	}
	if err != nil {
		job.State = JobFailed
		// A configuration error keeps its code so the encoder can fail the
		// whole request instead of writing an empty tile.
		if errors.IsConfiguration(err) {
			job.Err = errors.Wrapf(err, "metatile.render", "tile %d/%d/%d", job.Tile.Z, job.Tile.X, job.Tile.Y)
		} else {
			job.Err = errors.WrapWithCode(err, errors.CodeRender, "metatile.render",
				fmt.Sprintf("tile %d/%d/%d", job.Tile.Z, job.Tile.X, job.Tile.Y))
		}
		p.log.WithTile(uint32(job.Tile.Z), job.Tile.X, job.Tile.Y).WithError(err).Warn("tile render failed")
		return
	}

	job.Image = img
	job.State = JobRendered
}

// safeRender turns a renderer panic into an error so one bad tile cannot
// take the worker down.
func safeRender(ctx context.Context, tile maptile.Tile, render RenderFunc) (img image.Image, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("renderer panic: %v", rec)
		}
	}()
	return render(ctx, tile)
}
