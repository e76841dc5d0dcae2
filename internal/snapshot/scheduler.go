// Package snapshot periodically saves the current webcam frame, filed under
// the path token of the label the prediction loop last reported.
package snapshot

import (
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/fruitcam/internal/label"
)

// Interval between snapshots while the scheduler is active.
const Interval = 30 * time.Second

// Sink persists one named image. Names look like "apple/1712345678901.png".
type Sink interface {
	Save(name string, img image.Image) error
}

type Options struct {
	// CurrentLabel reports the most recent normalized label.
	CurrentLabel func() string
	// Frame returns the latest frame, or nil when none is available.
	Frame  func() image.Image
	Sink   Sink
	Logger *log.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Scheduler struct {
	currentLabel func() string
	frame        func() image.Image
	sink         Sink
	logger       *log.Logger
	now          func() time.Time
	interval     time.Duration

	mu     sync.Mutex
	active bool
	done   chan struct{}
	wg     sync.WaitGroup

	saved   atomic.Uint64
	skipped atomic.Uint64
}

func NewScheduler(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		currentLabel: opts.CurrentLabel,
		frame:        opts.Frame,
		sink:         opts.Sink,
		logger:       opts.Logger,
		now:          opts.Now,
		interval:     Interval,
	}
}

// Start begins saving a snapshot every Interval. Starting an active
// scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return
	}
	s.active = true
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.run(s.done)
	s.logger.Printf("snapshots started, every %s", s.interval)
}

// Stop cancels future snapshots and waits for the timer goroutine to exit.
// Stopping an inactive scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Printf("snapshots stopped")
}

func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Scheduler) run(done <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.fireOnce()
		}
	}
}

// fireOnce saves the current frame when the current label has a snapshot
// path. Empty or unrecognized labels skip the tick silently; a failed save
// is logged and otherwise treated the same as a skip.
func (s *Scheduler) fireOnce() {
	token, ok := label.Parse(s.currentLabel()).SnapshotToken()
	if !ok {
		s.skipped.Add(1)
		return
	}
	frame := s.frame()
	if frame == nil {
		s.skipped.Add(1)
		return
	}

	name := fmt.Sprintf("%s/%d.png", token, s.now().UnixMilli())
	if err := s.sink.Save(name, frame); err != nil {
		s.skipped.Add(1)
		s.logger.Printf("save %s: %v", name, err)
		return
	}
	s.saved.Add(1)
}

// Stats returns how many ticks saved a snapshot and how many were skipped.
func (s *Scheduler) Stats() (saved, skipped uint64) {
	return s.saved.Load(), s.skipped.Load()
}
