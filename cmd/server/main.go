package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/fruitcam/internal/config"
	"github.com/Brownie44l1/fruitcam/internal/controller"
	"github.com/Brownie44l1/fruitcam/internal/display"
	"github.com/Brownie44l1/fruitcam/internal/handlers"
	"github.com/Brownie44l1/fruitcam/internal/label"
	"github.com/Brownie44l1/fruitcam/internal/model"
	"github.com/Brownie44l1/fruitcam/internal/snapshot"
	"github.com/Brownie44l1/fruitcam/internal/webcam"
)

func main() {
	configPath := flag.String("config", "fruitcam.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("fruitcam: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	newLogger := func(prefix string) *log.Logger {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}

	keys := []string{display.LabelKey}
	for _, l := range label.Known {
		keys = append(keys, l.DisplayKey())
	}
	board := display.NewBoard(keys...)

	cam := webcam.New(cfg.Camera.Width, cfg.Camera.Height, *cfg.Camera.Flip, cfg.Camera.Device)
	defer cam.Close()

	model.SetSharedLibraryPath(cfg.Model.OrtLibrary)
	var loaded *model.Model
	defer func() {
		if loaded != nil {
			loaded.Close()
		}
	}()

	ctrl := controller.New(controller.Options{
		Camera: cam,
		Load: func(context.Context) (controller.Classifier, error) {
			log.Printf("Loading model from: %s", cfg.Model.Path)
			m, err := model.Load(cfg.Model.Path, cfg.Model.MetadataPath)
			if err != nil {
				return nil, err
			}
			loaded = m
			log.Printf("Classes: %v", m.Metadata.Classes)
			return m, nil
		},
		Surface:  board,
		Interval: cfg.Loop.FrameInterval,
		Logger:   newLogger("controller: "),
	})
	if err := ctrl.Initialize(ctx); err != nil {
		return err
	}

	sink, err := snapshot.NewDiskSink(cfg.Snapshot.Dir)
	if err != nil {
		return err
	}
	snapshots := snapshot.NewScheduler(snapshot.Options{
		CurrentLabel: ctrl.CurrentLabel,
		Frame:        ctrl.Frame,
		Sink:         sink,
		Logger:       newLogger("snapshot: "),
	})
	defer snapshots.Stop()

	handler := handlers.NewHandler(ctrl, snapshots, board, newLogger("http: "))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		log.Println("Endpoints:")
		log.Println("  GET  /health          - Health check")
		log.Println("  GET  /state           - Current label and counts")
		log.Println("  GET  /frame.jpg       - Latest webcam frame")
		log.Println("  POST /predict/image   - Predict from image upload")
		log.Println("  POST /snapshots/start - Save a snapshot every 30s")
		log.Println("  POST /camera/stop     - Stop the webcam")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	loopErr := make(chan error, 1)
	go func() { loopErr <- ctrl.Run(loopCtx) }()

	var result error
	select {
	case <-ctx.Done():
		log.Println("Shutting down")
	case err := <-serveErr:
		result = err
	case err := <-loopErr:
		result = err
		loopErr = nil
	}

	cancelLoop()
	if loopErr != nil {
		<-loopErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	return result
}
