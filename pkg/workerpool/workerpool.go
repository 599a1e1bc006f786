// Package workerpool provides a bounded pool of workers shared by CPU-bound
// pipeline stages such as chunk hashing.
package workerpool

import (
	"runtime"
	"sync"
)

type Pool struct {
	config Config
	tasks  chan task

	closeOnce sync.Once
}

type Config struct {
	// WorkerCount is the number of worker goroutines. Values below 1 select
	// a CPU-derived default.
	WorkerCount int
	// QueueDepth bounds the number of queued tasks across all rooms.
	QueueDepth int
}

type task struct {
	run  func() interface{}
	room *Room
}

// Room groups related tasks so a caller can submit a batch and collect the
// results of exactly that batch.
type Room struct {
	pool    *Pool
	results chan interface{}
	wg      sync.WaitGroup
}

func New(config Config) *Pool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU() * 3
	}
	if config.QueueDepth < 1 {
		config.QueueDepth = 10000
	}

	p := &Pool{
		config: config,
		tasks:  make(chan task, config.QueueDepth),
	}

	for i := 0; i < config.WorkerCount; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	for t := range p.tasks {
		t.room.results <- t.run()
		t.room.wg.Done()
	}
}

// NewRoom creates a room whose result buffer holds size results. Submitting
// more than size tasks before collecting blocks the workers, so size should
// match the batch size.
func (p *Pool) NewRoom(size int) *Room {
	return &Room{
		pool:    p,
		results: make(chan interface{}, size),
	}
}

// Close stops the workers once all queued tasks have drained. Rooms must not
// submit after Close.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
}

// Submit queues one task. It blocks while the global queue is full.
func (r *Room) Submit(job func() interface{}) {
	r.wg.Add(1)
	r.pool.tasks <- task{run: job, room: r}
}

// Collect waits for every submitted task and returns the results in
// completion order. The room cannot be reused afterwards.
func (r *Room) Collect() []interface{} {
	go func() {
		r.wg.Wait()
		close(r.results)
	}()

	results := make([]interface{}, 0, cap(r.results))
	for result := range r.results {
		results = append(results, result)
	}
	return results
}
