// Package controller runs the prediction loop: grab a webcam frame, classify
// it, and keep the current label and per-label counters on the display.
package controller

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/Brownie44l1/fruitcam/internal/display"
	"github.com/Brownie44l1/fruitcam/internal/label"
	"github.com/Brownie44l1/fruitcam/internal/model"
	"github.com/Brownie44l1/fruitcam/internal/webcam"
)

var (
	ErrInitialization = errors.New("controller: initialization failed")
	ErrNotInitialized = errors.New("controller: not initialized")
)

// Camera is the capture source the loop reads from.
type Camera interface {
	Setup(ctx context.Context) error
	Play() error
	Stop()
	Update() error
	Canvas() image.Image
}

// Classifier scores a frame against every class, in class order.
type Classifier interface {
	TotalClasses() int
	Predict(img image.Image) ([]model.Prediction, error)
}

// Loader acquires the classifier during Initialize.
type Loader func(ctx context.Context) (Classifier, error)

type Status int

const (
	Uninitialized Status = iota
	Running
	Terminated
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return "uninitialized"
	}
}

type Options struct {
	Camera  Camera
	Load    Loader
	Surface display.Surface
	// Interval between loop steps; one animation frame by default.
	Interval time.Duration
	Logger   *log.Logger
}

type Controller struct {
	camera   Camera
	load     Loader
	surface  display.Surface
	interval time.Duration
	logger   *log.Logger

	mu           sync.RWMutex
	status       Status
	initializing bool
	classifier   Classifier
	currentLabel string
	counts       map[label.Label]int
}

func New(opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = 16 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	counts := make(map[label.Label]int, len(label.Known))
	for _, l := range label.Known {
		counts[l] = 0
	}
	return &Controller{
		camera:   opts.Camera,
		load:     opts.Load,
		surface:  opts.Surface,
		interval: opts.Interval,
		logger:   opts.Logger,
		counts:   counts,
	}
}

// Initialize acquires the model and the webcam. A failure is final for the
// session: it is logged, returned wrapped in ErrInitialization, and Run will
// refuse to start.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.initializing:
		c.mu.Unlock()
		return errors.New("controller: initialization in progress")
	case c.status != Uninitialized:
		status := c.status
		c.mu.Unlock()
		return fmt.Errorf("controller: already %s", status)
	}
	c.initializing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.initializing = false
		c.mu.Unlock()
	}()

	classifier, err := c.load(ctx)
	if err != nil {
		return c.initFailed("load model", err)
	}
	c.logger.Printf("model loaded: %d classes", classifier.TotalClasses())

	if err := c.camera.Setup(ctx); err != nil {
		return c.initFailed("set up webcam", err)
	}
	if err := c.camera.Play(); err != nil {
		return c.initFailed("start webcam", err)
	}

	c.mu.Lock()
	c.classifier = classifier
	c.status = Running
	c.mu.Unlock()
	return nil
}

func (c *Controller) initFailed(step string, err error) error {
	c.logger.Printf("Error initializing webcam or model: %s: %v", step, err)
	return fmt.Errorf("%w: %s: %w", ErrInitialization, step, err)
}

// Run executes Step once per interval until ctx is cancelled or the capture
// source is permanently gone. A failed step is logged and the next one is
// still scheduled.
func (c *Controller) Run(ctx context.Context) error {
	if c.Status() != Running {
		return ErrNotInitialized
	}
	defer c.setStatus(Terminated)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	failures := failureLog{logger: c.logger}
	defer failures.flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := c.Step(ctx)
		switch {
		case err == nil:
			failures.flush()
		case errors.Is(err, webcam.ErrClosed):
			failures.flush()
			c.logger.Printf("capture source gone, stopping loop: %v", err)
			return err
		default:
			failures.record(err)
		}
	}
}

// failureLog logs every step failure. A run of identical failures is
// logged once when it starts and once, with its length, when it ends.
type failureLog struct {
	logger  *log.Logger
	last    string
	repeats int
}

func (f *failureLog) record(err error) {
	msg := err.Error()
	if msg == f.last {
		f.repeats++
		return
	}
	f.flush()
	f.last = msg
	f.logger.Printf("Error during the loop execution: %v", err)
}

func (f *failureLog) flush() {
	if f.repeats > 0 {
		f.logger.Printf("Error during the loop execution repeated %d more times: %s", f.repeats, f.last)
	}
	f.last = ""
	f.repeats = 0
}

// Step runs one capture, predict and update cycle.
func (c *Controller) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	classifier := c.classifier
	c.mu.RUnlock()
	if classifier == nil {
		return ErrNotInitialized
	}

	if err := c.camera.Update(); err != nil {
		return fmt.Errorf("update webcam: %w", err)
	}
	frame := c.camera.Canvas()
	if frame == nil {
		return errors.New("webcam has no frame yet")
	}

	predictions, err := classifier.Predict(frame)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	c.observe(SelectLabel(predictions))
	return nil
}

// observe records a raw predicted label. Only a change of the normalized
// label updates the display and counters.
func (c *Controller) observe(raw string) {
	normalized := label.Normalize(raw)

	c.mu.Lock()
	if normalized == c.currentLabel {
		c.mu.Unlock()
		return
	}
	c.currentLabel = normalized
	l := label.Parse(normalized)
	count := 0
	if l.Known() {
		c.counts[l]++
		count = c.counts[l]
	}
	c.mu.Unlock()

	c.setText(display.LabelKey, normalized)
	if l.Known() {
		c.logger.Printf("updated count for %s: %d", normalized, count)
		c.setText(l.DisplayKey(), strconv.Itoa(count))
	}
}

func (c *Controller) setText(key, text string) {
	if err := c.surface.SetText(key, text); err != nil {
		c.logger.Print(err)
	}
}

// SelectLabel returns the class with the highest probability. Ties keep the
// first class seen; all-zero scores select "".
func SelectLabel(predictions []model.Prediction) string {
	var highest float32
	name := ""
	for _, p := range predictions {
		if p.Probability > highest {
			highest = p.Probability
			name = p.ClassName
		}
	}
	return name
}

// Classify scores img with the loaded model without touching loop state.
func (c *Controller) Classify(img image.Image) ([]model.Prediction, string, error) {
	c.mu.RLock()
	classifier := c.classifier
	c.mu.RUnlock()
	if classifier == nil {
		return nil, "", ErrNotInitialized
	}
	predictions, err := classifier.Predict(img)
	if err != nil {
		return nil, "", err
	}
	return predictions, label.Normalize(SelectLabel(predictions)), nil
}

// StopCamera halts frame capture. Loop steps keep firing and fail with
// webcam.ErrNotPlaying until PlayCamera.
func (c *Controller) StopCamera() {
	c.camera.Stop()
	c.logger.Printf("camera stopped")
}

func (c *Controller) PlayCamera() error {
	if err := c.camera.Play(); err != nil {
		return err
	}
	c.logger.Printf("camera playing")
	return nil
}

// Frame returns the latest webcam frame, or nil.
func (c *Controller) Frame() image.Image {
	return c.camera.Canvas()
}

func (c *Controller) CurrentLabel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentLabel
}

// Counts returns a copy of the per-label counters.
func (c *Controller) Counts() map[label.Label]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[label.Label]int, len(c.counts))
	for l, n := range c.counts {
		out[l] = n
	}
	return out
}

func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Controller) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// State is a point-in-time view for the HTTP layer.
type State struct {
	Status string         `json:"status"`
	Label  string         `json:"label"`
	Counts map[string]int `json:"counts"`
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[string]int, len(c.counts))
	for l, n := range c.counts {
		counts[l.String()] = n
	}
	return State{Status: c.status.String(), Label: c.currentLabel, Counts: counts}
}
