// The MIT License
//
// Copyright (c) 2017-2018 by the author(s)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//
// Description:
//
// This file implements the bounded point queue and the producer loop that
// fetches DMA blocks into it, honouring the fetch/paused/exit pause-latch
// state machine.

package vna

import "sync"

// Point is a single averaged (I,Q) sample pair for both the
// device-under-test and reference channels, in volts.
type Point struct {
	IDut, QDut float64
	IRef, QRef float64
}

// queueCapacity is the bounded point queue's capacity: 2^16 - 1.
const queueCapacity = 1<<16 - 1

// pauseLatch implements the three waitable flags the producer loop
// and its controller coordinate through: fetch (consumer sets to resume,
// clears to pause), paused (producer sets once it has observed a pause and
// finished any in-flight transfer; clears once actively fetching again),
// and exit (consumer sets to stop the producer permanently). It is built on
// a mutex and condition variable rather than channels because the desired
// semantics are level-triggered, not edge-triggered-and-consumed.
type pauseLatch struct {
	mu     sync.Mutex
	cond   *sync.Cond
	fetch  bool
	paused bool
	exit   bool
}

func newPauseLatch() *pauseLatch {
	l := &pauseLatch{paused: true}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *pauseLatch) setFetch(v bool) {
	l.mu.Lock()
	l.fetch = v
	l.cond.Broadcast()
	l.mu.Unlock()
}

func (l *pauseLatch) setExit() {
	l.mu.Lock()
	l.exit = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

func (l *pauseLatch) setPaused(v bool) {
	l.mu.Lock()
	l.paused = v
	l.cond.Broadcast()
	l.mu.Unlock()
}

// waitPaused blocks until the producer has reported itself paused.
func (l *pauseLatch) waitPaused() {
	l.mu.Lock()
	for !l.paused {
		l.cond.Wait()
	}
	l.mu.Unlock()
}

// wait blocks until fetch is requested or exit is signalled, then returns
// the observed (fetch, exit) pair.
func (l *pauseLatch) wait() (fetch, exit bool) {
	l.mu.Lock()
	for !l.fetch && !l.exit {
		l.cond.Wait()
	}
	fetch, exit = l.fetch, l.exit
	l.mu.Unlock()
	return
}

// PointQueue is the bounded FIFO of Points shared between the DMA producer
// goroutine and the command handler. It owns its own mutex, per the
// resource rule that the producer never needs to reach into the server's
// locking to push a sample.
type PointQueue struct {
	mu     sync.Mutex
	items  []Point
	latch  *pauseLatch
}

// NewPointQueue returns an empty, paused point queue.
func NewPointQueue() *PointQueue {
	return &PointQueue{latch: newPauseLatch()}
}

// Len returns the number of points currently queued.
func (q *PointQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Flush empties the queue atomically under its own mutex.
func (q *PointQueue) Flush() {
	q.mu.Lock()
	q.items = q.items[:0]
	q.mu.Unlock()
}

// tryEnqueue appends p if the queue has spare capacity, returning false if
// it is full.
func (q *PointQueue) tryEnqueue(p Point) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= queueCapacity {
		return false
	}
	q.items = append(q.items, p)
	return true
}

// Drain removes up to max points from the front of the queue and returns
// them.
func (q *PointQueue) Drain(max int) []Point {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max > len(q.items) {
		max = len(q.items)
	}
	out := make([]Point, max)
	copy(out, q.items[:max])
	q.items = q.items[max:]
	return out
}

// Paused reports whether the producer has latched into its paused state.
func (q *PointQueue) Paused() bool {
	q.latch.mu.Lock()
	defer q.latch.mu.Unlock()
	return q.latch.paused
}

// Resume sets the fetch flag, asking the producer to resume fetching.
func (q *PointQueue) Resume() {
	q.latch.setFetch(true)
}

// Pause clears the fetch flag and blocks until the producer reports paused.
func (q *PointQueue) Pause() {
	q.latch.setFetch(false)
	q.latch.waitPaused()
}

// Stop signals the producer to exit permanently; it does not wait for the
// producer goroutine to observe it (callers join via a sync.WaitGroup or
// similar at the call site that started the goroutine).
func (q *PointQueue) Stop() {
	q.latch.setExit()
}

// fetchFunc pulls the next block of raw voltages from the DMA buffer,
// returning ErrDmaNotAllowed if the PL is currently disabled.
type fetchFunc func() ([]float64, error)

// KeepFetching runs the producer loop until Stop is called. It must be run
// on its own goroutine. The paused flag is set on every exit path (the
// initial pause branch, the resume-wait branch on exit, and the
// queue-full branch) so that a concurrent Pause() call always completes.
func (q *PointQueue) KeepFetching(fetch fetchFunc) {
	l := q.latch
	for {
		l.mu.Lock()
		exitNow := l.exit
		fetchNow := l.fetch
		if fetchNow && !exitNow {
			l.paused = false
		}
		l.mu.Unlock()

		if exitNow {
			l.setPaused(true)
			return
		}

		if !fetchNow {
			l.setPaused(true)
			fetchWanted, exitWanted := l.wait()
			if exitWanted {
				l.setPaused(true)
				return
			}
			if !fetchWanted {
				continue
			}
			l.setPaused(false)
		}

		block, err := fetch()
		if err != nil {
			Log(LOG_WARN, "producer fetch failed: %v", err)
			continue
		}

		if len(block)%4 != 0 {
			Log(LOG_ERR, "producer received %d voltages, not a multiple of 4; dropping block", len(block))
			continue
		}

		full := false
		for i := 0; i+4 <= len(block); i += 4 {
			p := Point{IDut: block[i], QDut: block[i+1], IRef: block[i+2], QRef: block[i+3]}
			if !q.tryEnqueue(p) {
				full = true
				break
			}
		}
		if full {
			l.setFetch(false)
			l.setPaused(true)
		}
	}
}
