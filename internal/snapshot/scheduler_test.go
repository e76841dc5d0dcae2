package snapshot

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (r *recordingSink) Save(name string, _ image.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.names = append(r.names, name)
	return nil
}

func (r *recordingSink) saved() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func newTestScheduler(current string, sink Sink) (*Scheduler, *bytes.Buffer) {
	var logs bytes.Buffer
	frame := image.NewRGBA(image.Rect(0, 0, 2, 2))
	s := NewScheduler(Options{
		CurrentLabel: func() string { return current },
		Frame:        func() image.Image { return frame },
		Sink:         sink,
		Logger:       log.New(&logs, "", 0),
		Now:          func() time.Time { return time.UnixMilli(1712345678901) },
	})
	return s, &logs
}

func TestFireOnceSavesKnownLabel(t *testing.T) {
	sink := &recordingSink{}
	s, _ := newTestScheduler("Tender Coconut", sink)

	s.fireOnce()

	got := sink.saved()
	if len(got) != 1 || got[0] != "tender-coconut/1712345678901.png" {
		t.Fatalf("saved = %v", got)
	}
	if saved, skipped := s.Stats(); saved != 1 || skipped != 0 {
		t.Errorf("Stats = %d/%d", saved, skipped)
	}
}

func TestFireOnceSkipsEmptyAndUnknown(t *testing.T) {
	for _, current := range []string{"", "Mango"} {
		sink := &recordingSink{}
		s, logs := newTestScheduler(current, sink)

		s.fireOnce()

		if got := sink.saved(); len(got) != 0 {
			t.Errorf("label %q: saved %v", current, got)
		}
		if logs.Len() != 0 {
			t.Errorf("label %q: skip was not silent: %q", current, logs.String())
		}
		if _, skipped := s.Stats(); skipped != 1 {
			t.Errorf("label %q: skipped = %d", current, skipped)
		}
	}
}

func TestFireOnceSaveFailureCountsAsSkip(t *testing.T) {
	s, _ := newTestScheduler("Apple", &recordingSink{err: errors.New("disk full")})
	s.fireOnce()
	if saved, skipped := s.Stats(); saved != 0 || skipped != 1 {
		t.Errorf("Stats = %d/%d", saved, skipped)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s, _ := newTestScheduler("Apple", &recordingSink{})

	s.Start()
	first := s.done
	s.Start()
	if s.done != first {
		t.Error("second Start replaced the running timer")
	}
	if !s.Active() {
		t.Error("scheduler not active after Start")
	}

	s.Stop()
	if s.Active() {
		t.Error("scheduler still active after Stop")
	}
	s.Stop()
}

func TestTimerFiresUntilStopped(t *testing.T) {
	sink := &recordingSink{}
	s, _ := newTestScheduler("Banana", sink)
	s.interval = 5 * time.Millisecond

	s.Start()
	s.Start()
	deadline := time.Now().Add(2 * time.Second)
	for len(sink.saved()) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Stop()

	n := len(sink.saved())
	if n < 3 {
		t.Fatalf("timer fired %d times", n)
	}
	time.Sleep(20 * time.Millisecond)
	if after := len(sink.saved()); after != n {
		t.Errorf("saves continued after Stop: %d -> %d", n, after)
	}
}

func TestDiskSink(t *testing.T) {
	root := t.TempDir()
	sink, err := NewDiskSink(root)
	if err != nil {
		t.Fatal(err)
	}

	if err := sink.Save("apple/1712345678901.png", image.NewRGBA(image.Rect(0, 0, 3, 2))); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f, err := os.Open(filepath.Join(root, "apple", "1712345678901.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Errorf("bounds = %v", b)
	}

	if err := sink.Save("../escape.png", img); err == nil {
		t.Error("expected error for name outside root")
	}
}
