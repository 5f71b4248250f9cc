// Package workerpool generalizes the teacher's tomb-based WorkerPool
// (once internal/server.go, driving TCP connection handlers) into a
// fixed-size pool of long-lived goroutines draining a shared task
// channel under a tomb.Tomb. The websocket fan-out worker uses one of
// these to bound how many client write pumps run concurrently.
package workerpool

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

// WorkerFunc is the unit of work a pool runs; it receives the owning
// tomb so long-running work can observe shutdown.
type WorkerFunc = func(t *tomb.Tomb, task any) error

// Pool maintains exactly n live workers pulling from a shared task
// channel until its tomb dies.
type Pool struct {
	n     int
	tasks chan any
}

// New constructs a pool sized to run up to n concurrent tasks.
func New(n int) *Pool {
	return &Pool{n: n, tasks: make(chan any, taskChanSize)}
}

// AddTask enqueues task for the next free worker.
func (p *Pool) AddTask(task any) {
	p.tasks <- task
}

// Run starts n workers, each looping over the shared task channel until
// t dies, rather than spawning a fresh goroutine per task.
func (p *Pool) Run(t *tomb.Tomb, work WorkerFunc) {
	log.Info().Int("workers", p.n).Msg("workerpool starting")
	for i := 0; i < p.n; i++ {
		t.Go(func() error {
			return p.drain(t, work)
		})
	}
}

// drain is one worker's lifetime: pull a task, run it, repeat, until
// the tomb dies. A failed task is logged but does not end the worker —
// one bad task should not starve the rest of the queue.
func (p *Pool) drain(t *tomb.Tomb, work WorkerFunc) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-p.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Msg("workerpool task failed")
			}
		}
	}
}
