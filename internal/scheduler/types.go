package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"taskpilot/internal/eventbus"
	"taskpilot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Workers        int
	DefaultTimeout time.Duration
	HistorySize    int
	Timezone       string // IANA TZ; empty means time.Local
}

// JobOptions tune retry and overlap behavior per registered job.
type JobOptions struct {
	// RetryMax is the retry budget after the first failed attempt.
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64 // 0.2 = ±20%

	// AllowOverlap lets a new trigger fire while the previous run is still
	// executing. Off by default: every job here scans the same candidate
	// pages, so overlapping runs only burn budget.
	AllowOverlap bool
}

func (o JobOptions) withDefaults() JobOptions {
	if o.RetryMax < 0 {
		o.RetryMax = 0
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 15 * time.Second
	}
	if o.RetryJitter <= 0 {
		o.RetryJitter = 0.2
	}
	return o
}

// RunEvent is the bus payload for run lifecycle events
// ("run.started" / "run.finished" / "run.failed" / "run.skipped").
type RunEvent struct {
	JobID    string
	Name     string
	Started  time.Time
	Duration time.Duration
	Attempts int
	Error    string
}

type HistoryItem struct {
	JobID    string
	Name     string
	Started  time.Time
	Duration time.Duration
	Attempts int
	Error    string
}

type runState struct {
	mu      sync.Mutex
	running bool
}

type execTask struct {
	id      string
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
	opt     JobOptions
	state   *runState
}

type jobDef struct {
	id      string
	name    string
	spec    string
	timeout time.Duration
	run     func(ctx context.Context) error
	opt     JobOptions
	entryID cron.EntryID
	state   *runState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []jobDef

	queue  chan execTask
	stopCh chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

// JobInfo is a read-only view of one registered job for introspection.
type JobInfo struct {
	ID   string
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

type Snapshot struct {
	Timezone string
	Workers  int
	QueueLen int
	Jobs     []JobInfo
	History  []HistoryItem
}
