package journal

import (
	"sync"

	"github.com/flowpoint-xyz/go-flashledger/accountant"
)

// AsyncRecorder decouples record producers from the sink behind a
// buffered mailbox. Records are delivered to the wrapped recorder by a
// single goroutine, so the sink needs no locking of its own.
type AsyncRecorder struct {
	mu      sync.Mutex
	sink    accountant.Recorder
	inbox   chan accountant.Record
	stopCh  chan struct{}
	done    chan struct{}
	running bool
}

// NewAsyncRecorder creates a recorder draining into sink with the given
// mailbox capacity. Call Start before use and Stop to flush.
func NewAsyncRecorder(sink accountant.Recorder, buffer int) *AsyncRecorder {
	if buffer <= 0 {
		buffer = 100
	}
	return &AsyncRecorder{
		sink:  sink,
		inbox: make(chan accountant.Record, buffer),
	}
}

// Start begins the drain loop. Starting twice is a no-op.
func (a *AsyncRecorder) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.drain()
}

// Stop flushes the mailbox and halts the drain loop. It blocks until
// every record already accepted has reached the sink.
func (a *AsyncRecorder) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.stopCh)
	done := a.done
	a.mu.Unlock()
	<-done
}

// Record enqueues the record. A full mailbox blocks the caller rather
// than dropping the record; a stopped recorder drops it.
func (a *AsyncRecorder) Record(r accountant.Record) {
	a.mu.Lock()
	running := a.running
	a.mu.Unlock()
	if !running {
		return
	}
	a.inbox <- r
}

func (a *AsyncRecorder) drain() {
	defer close(a.done)
	for {
		select {
		case r := <-a.inbox:
			a.sink.Record(r)
		case <-a.stopCh:
			// Flush what has already been accepted.
			for {
				select {
				case r := <-a.inbox:
					a.sink.Record(r)
				default:
					return
				}
			}
		}
	}
}
