// Package processor implements the bounded, multi-threaded,
// optionally sequence-tagged work queue every venue connection uses
// to deserialize and dispatch JSON frames.
package processor

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sawpanic/mdgateway/internal/result"
)

// Doc is the decoded JSON document handed to a handler.
type Doc = map[string]interface{}

// Handler processes one document. Any panic raised inside it is
// recovered and logged by the worker loop; it never kills the worker.
type Handler func(doc Doc)

// TypeDetector classifies a document into the message-type string used
// to look up its handler.
type TypeDetector func(doc Doc) string

type item struct {
	doc     Doc
	handler Handler
	seqTag  *uint64
}

// Processor is the bounded FIFO work queue with worker-pool parallelism
// and sequence-tag mutual exclusion.
type Processor struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue         []*item
	maxSize       int
	openSequences map[uint64]bool

	detector TypeDetector
	handlers map[string]Handler

	autoflush bool
	batchSize int

	paused   bool
	stopping bool
	canceled bool

	wg  sync.WaitGroup
	log zerolog.Logger
}

// Option configures optional Processor behavior.
type Option func(*Processor)

// WithAutoflush enables batch-threshold notification: workers are only
// woken once the queue reaches batchSize, relying on an external
// periodic timer (see internal/scheduler) to flush stragglers.
func WithAutoflush(batchSize int) Option {
	return func(p *Processor) {
		p.autoflush = true
		p.batchSize = batchSize
	}
}

func New(maxSize int, logger zerolog.Logger, opts ...Option) *Processor {
	p := &Processor{
		maxSize:       maxSize,
		openSequences: make(map[uint64]bool),
		handlers:      make(map[string]Handler),
		log:           logger.With().Str("component", "processor").Logger(),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RegisterTypeDetector sets the classifier invoked by ProcessMessage.
// It may be set only once; later calls are ignored.
func (p *Processor) RegisterTypeDetector(fn TypeDetector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detector == nil {
		p.detector = fn
	}
}

// RegisterHandler inserts a handler for msgType, failing on a
// duplicate registration or a nil handler.
func (p *Processor) RegisterHandler(msgType string, handler Handler) error {
	if handler == nil {
		return result.New(result.KindInvalidArgument, "nil handler for "+msgType)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.handlers[msgType]; exists {
		return result.New(result.KindStateConflict, "duplicate handler for "+msgType)
	}
	p.handlers[msgType] = handler
	return nil
}

// ProcessMessage classifies doc via the registered detector and
// enqueues it against the matching handler.
func (p *Processor) ProcessMessage(doc Doc, seqTag *uint64) error {
	p.mu.Lock()
	detector := p.detector
	p.mu.Unlock()
	if detector == nil {
		return result.New(result.KindNotInitialized, "no type detector registered")
	}

	msgType := detector(doc)
	p.mu.Lock()
	handler, ok := p.handlers[msgType]
	p.mu.Unlock()
	if !ok {
		return result.New(result.KindInvalidArgument, fmt.Sprintf("no handler for message type %q", msgType))
	}
	return p.Enqueue(doc, handler, seqTag)
}

// Enqueue pushes (doc, handler, seqTag) onto the tail, failing
// QueueFull once maxSize is reached.
func (p *Processor) Enqueue(doc Doc, handler Handler, seqTag *uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopping {
		return result.New(result.KindTransportError, "processor is stopping")
	}
	if len(p.queue) >= p.maxSize {
		return result.New(result.KindQueueFull, fmt.Sprintf("queue at max size %d", p.maxSize))
	}

	p.queue = append(p.queue, &item{doc: doc, handler: handler, seqTag: seqTag})

	if !p.autoflush {
		p.cond.Signal()
	} else if len(p.queue) >= p.batchSize {
		p.cond.Broadcast()
	}
	return nil
}

// Flush wakes one worker unconditionally; used by the autoflush timer
// to rescue stragglers left below the batch threshold.
func (p *Processor) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) > 0 {
		p.cond.Signal()
	}
}

// QueueLen reports the current queue depth.
func (p *Processor) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Start spawns nWorkers goroutines named "<name>_NN". Go has no
// portable thread affinity API, so when pinToCore is true pinning is
// expressed as a best-effort runtime.LockOSThread() on the worker's own
// goroutine instead of an OS core assignment; coreMap is not consulted.
func (p *Processor) Start(name string, nWorkers int, pinToCore bool, coreMap map[string]int) {
	for i := 0; i < nWorkers; i++ {
		workerName := fmt.Sprintf("%s_%02d", name, i)
		p.wg.Add(1)
		go p.worker(workerName, pinToCore)
	}
}

func (p *Processor) worker(name string, pinToCore bool) {
	defer p.wg.Done()
	if pinToCore {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		for !p.stopping && (p.paused || len(p.queue) == 0) {
			p.cond.Wait()
		}
		if p.stopping && (p.canceled || len(p.queue) == 0) {
			return
		}

		idx := p.findRunnable()
		if idx < 0 {
			// Every queued item is tag-blocked; wait for one to clear.
			p.cond.Wait()
			continue
		}

		it := p.queue[idx]
		p.queue = append(p.queue[:idx], p.queue[idx+1:]...)
		if it.seqTag != nil {
			p.openSequences[*it.seqTag] = true
		}

		p.mu.Unlock()
		p.invoke(name, it)
		p.mu.Lock()

		if it.seqTag != nil {
			delete(p.openSequences, *it.seqTag)
			p.cond.Broadcast()
		}
	}
}

// findRunnable scans the queue for the first item whose seqTag is
// absent or not currently open. Caller must hold p.mu.
func (p *Processor) findRunnable() int {
	for i, it := range p.queue {
		if it.seqTag == nil || !p.openSequences[*it.seqTag] {
			return i
		}
	}
	return -1
}

func (p *Processor) invoke(workerName string, it *item) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("worker", workerName).Interface("panic", r).Msg("handler panicked, swallowed")
		}
	}()
	it.handler(it.doc)
}

// Stop signals shutdown. If cancelQueue, pending items are dropped
// immediately; in-flight handlers still run to completion. If detach,
// Stop returns without waiting for workers to exit.
func (p *Processor) Stop(cancelQueue, detach bool) {
	p.mu.Lock()
	p.stopping = true
	if cancelQueue {
		p.canceled = true
		p.queue = nil
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	if detach {
		return
	}
	p.wg.Wait()
}

// Pause/Resume support the worker-wait condition used by Stop and
// tests that need to freeze dispatch deterministically.
func (p *Processor) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *Processor) Resume() {
	p.mu.Lock()
	p.paused = false
	p.cond.Broadcast()
	p.mu.Unlock()
}
