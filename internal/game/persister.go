package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultPersistQueue   = 256
	defaultPersistTimeout = 5 * time.Second
)

type persistJob struct {
	name      string
	sessionID string
	run       func(ctx context.Context) error
}

// persister runs repository writes on a single background worker so a slow or
// failing store never holds up play. Jobs run in dispatch order.
type persister struct {
	jobs    chan persistJob
	timeout time.Duration
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newPersister(size int, timeout time.Duration) *persister {
	if size <= 0 {
		size = defaultPersistQueue
	}
	if timeout <= 0 {
		timeout = defaultPersistTimeout
	}
	p := &persister{
		jobs:    make(chan persistJob, size),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *persister) loop() {
	defer close(p.done)
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *persister) run(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("op", job.name).Str("gameId", job.sessionID).Msg("persist panicked")
		}
	}()
	if err := job.run(ctx); err != nil {
		log.Warn().Err(fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)).
			Str("op", job.name).Str("gameId", job.sessionID).Msg("persist failed")
	}
}

// dispatch queues a job. It never blocks: a full queue drops the job.
func (p *persister) dispatch(name, sessionID string, run func(ctx context.Context) error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		log.Debug().Str("op", name).Str("gameId", sessionID).Msg("persister closed; dropping job")
		return
	}
	select {
	case p.jobs <- persistJob{name: name, sessionID: sessionID, run: run}:
	default:
		log.Warn().Err(ErrPersistenceUnavailable).Str("op", name).Str("gameId", sessionID).Msg("persist queue full; dropping job")
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *persister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	<-p.done
}
