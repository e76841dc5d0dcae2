package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Brownie44l1/fruitcam/internal/controller"
	"github.com/Brownie44l1/fruitcam/internal/display"
	"github.com/Brownie44l1/fruitcam/internal/label"
	"github.com/Brownie44l1/fruitcam/internal/model"
	"github.com/Brownie44l1/fruitcam/internal/snapshot"
)

type stubCamera struct {
	mu      sync.Mutex
	playing bool
	frame   image.Image
}

func (s *stubCamera) Setup(context.Context) error { return nil }
func (s *stubCamera) Update() error               { return nil }
func (s *stubCamera) Canvas() image.Image         { return s.frame }

func (s *stubCamera) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = true
	return nil
}

func (s *stubCamera) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
}

func (s *stubCamera) isPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

type stubClassifier struct{}

func (stubClassifier) TotalClasses() int { return 2 }

func (stubClassifier) Predict(image.Image) ([]model.Prediction, error) {
	return []model.Prediction{
		{ClassName: "apple", Probability: 0.2},
		{ClassName: "banana", Probability: 0.8},
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubCamera, *controller.Controller) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)

	keys := []string{display.LabelKey}
	for _, l := range label.Known {
		keys = append(keys, l.DisplayKey())
	}
	board := display.NewBoard(keys...)

	cam := &stubCamera{frame: image.NewRGBA(image.Rect(0, 0, 8, 6))}
	c := controller.New(controller.Options{
		Camera:   cam,
		Load:     func(context.Context) (controller.Classifier, error) { return stubClassifier{}, nil },
		Surface:  board,
		Interval: time.Millisecond,
		Logger:   logger,
	})
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	sched := snapshot.NewScheduler(snapshot.Options{
		CurrentLabel: c.CurrentLabel,
		Frame:        c.Frame,
		Sink:         discardSink{},
		Logger:       logger,
	})
	t.Cleanup(sched.Stop)

	srv := httptest.NewServer(NewHandler(c, sched, board, logger).Router())
	t.Cleanup(srv.Close)
	return srv, cam, c
}

type discardSink struct{}

func (discardSink) Save(string, image.Image) error { return nil }

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["status"] != "healthy" {
		t.Errorf("status = %q", body["status"])
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}
}

func TestStateAfterStep(t *testing.T) {
	srv, _, c := newTestServer(t)
	if err := c.Step(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatal(err)
	}
	var st stateResponse
	decode(t, resp, &st)
	if st.Label != "Banana" || st.Counts["Banana"] != 1 || st.Counts["Tender Coconut"] != 0 {
		t.Errorf("state = %+v", st)
	}

	resp, err = http.Get(srv.URL + "/display")
	if err != nil {
		t.Fatal(err)
	}
	var elements []display.Element
	decode(t, resp, &elements)
	found := false
	for _, e := range elements {
		if e.Key == "count-Banana" && e.Text == "1" {
			found = true
		}
	}
	if !found {
		t.Errorf("count-Banana not shown: %+v", elements)
	}
}

func TestSnapshotsStartStop(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp, err := http.Post(srv.URL+"/snapshots/start", "", nil)
		if err != nil {
			t.Fatal(err)
		}
		var st snapshotState
		decode(t, resp, &st)
		if !st.Active {
			t.Errorf("start #%d: not active", i+1)
		}
	}

	resp, err := http.Post(srv.URL+"/snapshots/stop", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	var st snapshotState
	decode(t, resp, &st)
	if st.Active {
		t.Error("still active after stop")
	}
}

func TestCameraStopPlay(t *testing.T) {
	srv, cam, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/camera/stop", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if cam.isPlaying() {
		t.Error("camera still playing after stop")
	}

	resp, err = http.Post(srv.URL+"/camera/play", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !cam.isPlaying() {
		t.Error("camera not playing after play")
	}
}

func TestFrame(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/frame.jpg")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("status %d, content type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestPredictFromImage(t *testing.T) {
	srv, _, c := newTestServer(t)

	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "fruit.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(img.Bytes())
	mw.Close()

	resp, err := http.Post(srv.URL+"/predict/image", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	var pr predictionResponse
	decode(t, resp, &pr)
	if pr.Class != "Banana" || len(pr.Predictions) != 2 {
		t.Errorf("response = %+v", pr)
	}
	if c.CurrentLabel() != "" {
		t.Errorf("upload changed loop label to %q", c.CurrentLabel())
	}
}

func TestPredictFromImageRejectsBadInput(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("image", "notes.txt")
	part.Write([]byte("not an image"))
	mw.Close()

	resp, err := http.Post(srv.URL+"/predict/image", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/predict/image")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", resp.StatusCode)
	}
}
