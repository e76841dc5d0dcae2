// Package webcam captures frames from a local camera through OpenCV.
//
// A Webcam is set up once, then toggled between playing and stopped. Update
// grabs the newest frame into the canvas while playing; Canvas returns the
// last frame grabbed. Update swaps in a fresh image.Image on every frame and
// never writes into one already handed out, so callers may keep it. Close
// releases the device for good.
package webcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

var (
	// ErrNotPlaying is returned by Update while the capture is stopped.
	ErrNotPlaying = errors.New("webcam: not playing")
	// ErrClosed is returned once the device has been released.
	ErrClosed = errors.New("webcam: closed")
)

type Webcam struct {
	width, height int
	flip          bool
	device        int

	mu      sync.Mutex
	capture *gocv.VideoCapture
	raw     gocv.Mat
	frame   gocv.Mat
	canvas  image.Image
	playing bool
	closed  bool
}

// New describes a webcam; nothing is opened until Setup.
func New(width, height int, flip bool, device int) *Webcam {
	return &Webcam{width: width, height: height, flip: flip, device: device}
}

// Setup opens the capture device and requests the configured resolution.
func (w *Webcam) Setup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.capture != nil {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(w.device)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", w.device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open camera %d: device not available", w.device)
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(w.width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(w.height))

	w.capture = capture
	w.raw = gocv.NewMat()
	w.frame = gocv.NewMat()
	return nil
}

// Play starts (or resumes) frame capture.
func (w *Webcam) Play() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.capture == nil {
		return errors.New("webcam: not set up")
	}
	w.playing = true
	return nil
}

// Stop halts frame capture. The device stays open so Play can resume.
func (w *Webcam) Stop() {
	w.mu.Lock()
	w.playing = false
	w.mu.Unlock()
}

// Playing reports whether Update currently grabs frames.
func (w *Webcam) Playing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.playing
}

// Update grabs the newest frame, resized to the configured size and mirrored
// when flip is set.
func (w *Webcam) Update() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.closed:
		return ErrClosed
	case !w.playing:
		return ErrNotPlaying
	}

	if ok := w.capture.Read(&w.raw); !ok || w.raw.Empty() {
		return errors.New("webcam: read returned no frame")
	}

	gocv.Resize(w.raw, &w.frame, image.Pt(w.width, w.height), 0, 0, gocv.InterpolationLinear)
	if w.flip {
		gocv.Flip(w.frame, &w.frame, 1)
	}

	img, err := w.frame.ToImage()
	if err != nil {
		return fmt.Errorf("webcam: convert frame: %w", err)
	}
	w.canvas = img
	return nil
}

// Canvas returns the last frame grabbed, or nil before the first Update.
func (w *Webcam) Canvas() image.Image {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canvas
}

// Close releases the device. Update returns ErrClosed afterwards.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.playing = false
	if w.capture == nil {
		return nil
	}
	w.raw.Close()
	w.frame.Close()
	return w.capture.Close()
}
