// Package iopool provides a sharded worker pool for outbound socket writes.
//
// A Publish can fan out to thousands of subscribers; sending to each one
// synchronously on the caller's goroutine would hold the server's single
// logical thread (spec.md §5) for the duration of every Send call. Sharding
// by client id lets independent clients' writes run in parallel while still
// guaranteeing that frames to any one client are written in submission
// order, since a given id always hashes to the same worker's queue.
//
// Grounded on the teacher's transport.ConnPool: the same buffered-channel-
// as-FIFO-queue shape, repurposed from a borrow/return connection pool into
// a fixed set of always-running worker queues.
package iopool

import (
	"hash/crc32"
	"sync"
)

// Job is one unit of outbound work: typically a single Connection.SendPublish
// call closed over its arguments.
type Job func()

// Pool is a fixed set of worker goroutines, each draining its own queue.
type Pool struct {
	queues []chan Job
	wg     sync.WaitGroup
	closed chan struct{}
}

// New starts a Pool with the given number of workers, each with a queue of
// the given depth. workers defaults to 1 and queueDepth to 64 when <= 0.
func New(workers, queueDepth int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}

	p := &Pool{
		queues: make([]chan Job, workers),
		closed: make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan Job, queueDepth)
		p.wg.Add(1)
		go p.run(p.queues[i])
	}
	return p
}

func (p *Pool) run(queue chan Job) {
	defer p.wg.Done()
	for job := range queue {
		job()
	}
}

// Submit enqueues job on the worker selected by key, blocking if that
// worker's queue is full. Calls with the same key always land on the same
// worker, so their relative order is preserved.
func (p *Pool) Submit(key string, job Job) {
	select {
	case <-p.closed:
		return
	default:
	}
	idx := crc32.ChecksumIEEE([]byte(key)) % uint32(len(p.queues))
	select {
	case p.queues[idx] <- job:
	case <-p.closed:
	}
}

// Close stops accepting new work and waits for queued jobs to drain.
func (p *Pool) Close() {
	select {
	case <-p.closed:
		return
	default:
		close(p.closed)
	}
	for _, q := range p.queues {
		close(q)
	}
	p.wg.Wait()
}
