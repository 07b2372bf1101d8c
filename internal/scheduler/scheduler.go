package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Job is one unit of fetch work.
type Job struct {
	// Connector names the collaborator the job uses, for per-connector limits.
	Connector string
	// Label identifies the job in logs.
	Label string
	Run   func(ctx context.Context) error
}

// Pool dispatches jobs to a bounded number of workers.
type Pool struct {
	config *Config

	mu              sync.Mutex
	slots           map[string]chan struct{}
	activeWorkers   int
	peakWorkers     int
	connectorCounts map[string]int
}

// New creates a pool.
func New(cfg *Config) *Pool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.GlobalMax < 1 {
		cfg.GlobalMax = 1
	}
	return &Pool{
		config:          cfg,
		slots:           make(map[string]chan struct{}),
		connectorCounts: make(map[string]int),
	}
}

// Run executes every job and returns once all of them finished.
// Job errors do not stop other jobs; errs[i] holds job i's error.
func (p *Pool) Run(ctx context.Context, jobs []Job) []error {
	errs := make([]error, len(jobs))

	var g errgroup.Group
	g.SetLimit(p.config.GlobalMax)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			slot := p.slot(job.Connector)
			select {
			case slot <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return nil
			}
			defer func() { <-slot }()

			p.begin(job.Connector)
			defer p.end(job.Connector)

			if err := job.Run(ctx); err != nil {
				slog.Warn("fetch job failed", "job", job.Label, "error", err)
				errs[i] = err
			}
			return nil
		})
	}
	g.Wait()
	return errs
}

func (p *Pool) slot(connector string) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.slots[connector]
	if !ok {
		s = make(chan struct{}, p.config.GetConnectorLimit(connector))
		p.slots[connector] = s
	}
	return s
}

func (p *Pool) begin(connector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeWorkers++
	p.connectorCounts[connector]++
	if p.activeWorkers > p.peakWorkers {
		p.peakWorkers = p.activeWorkers
	}
}

func (p *Pool) end(connector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeWorkers--
	p.connectorCounts[connector]--
}

// GetStats returns current pool statistics.
func (p *Pool) GetStats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	connectorCounts := make(map[string]int)
	for k, v := range p.connectorCounts {
		connectorCounts[k] = v
	}

	return map[string]interface{}{
		"active_workers":   p.activeWorkers,
		"peak_workers":     p.peakWorkers,
		"global_max":       p.config.GlobalMax,
		"connector_counts": connectorCounts,
	}
}
