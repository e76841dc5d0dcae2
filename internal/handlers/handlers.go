package handlers

import (
	"encoding/json"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Brownie44l1/fruitcam/internal/controller"
	"github.com/Brownie44l1/fruitcam/internal/display"
	"github.com/Brownie44l1/fruitcam/internal/model"
	"github.com/Brownie44l1/fruitcam/internal/snapshot"
)

type Handler struct {
	controller *controller.Controller
	snapshots  *snapshot.Scheduler
	board      *display.Board
	logger     *log.Logger
}

func NewHandler(c *controller.Controller, s *snapshot.Scheduler, board *display.Board, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		controller: c,
		snapshots:  s,
		board:      board,
		logger:     logger,
	}
}

// Router wires every endpoint behind the CORS middleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(enableCORS)

	r.Get("/health", h.Health)
	r.Get("/state", h.State)
	r.Get("/display", h.Display)
	r.Get("/frame.jpg", h.Frame)
	r.Post("/predict/image", h.PredictFromImage)

	r.Route("/snapshots", func(r chi.Router) {
		r.Post("/start", h.StartSnapshots)
		r.Post("/stop", h.StopSnapshots)
	})
	r.Route("/camera", func(r chi.Router) {
		r.Post("/stop", h.StopCamera)
		r.Post("/play", h.PlayCamera)
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.controller.Status() != controller.Running {
		status = h.controller.Status().String()
	}
	respondJSON(w, map[string]string{"status": status}, http.StatusOK)
}

type stateResponse struct {
	controller.State
	Snapshots snapshotState `json:"snapshots"`
}

type snapshotState struct {
	Active  bool   `json:"active"`
	Saved   uint64 `json:"saved"`
	Skipped uint64 `json:"skipped"`
}

func (h *Handler) snapshotState() snapshotState {
	saved, skipped := h.snapshots.Stats()
	return snapshotState{Active: h.snapshots.Active(), Saved: saved, Skipped: skipped}
}

func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, stateResponse{
		State:     h.controller.State(),
		Snapshots: h.snapshotState(),
	}, http.StatusOK)
}

// Display returns every display element with its current text.
func (h *Handler) Display(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.board.Snapshot(), http.StatusOK)
}

func (h *Handler) Frame(w http.ResponseWriter, r *http.Request) {
	frame := h.controller.Frame()
	if frame == nil {
		respondError(w, "No frame captured yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if err := jpeg.Encode(w, frame, &jpeg.Options{Quality: 85}); err != nil {
		h.logger.Printf("encode frame: %v", err)
	}
}

type predictionResponse struct {
	Class       string             `json:"class"`
	Predictions []model.Prediction `json:"predictions"`
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	// Parse multipart form (10MB max)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	h.logger.Printf("Received file: %s, size: %d bytes", header.Filename, header.Size)

	img, format, err := image.Decode(file)
	if err != nil {
		respondError(w, "Invalid image format. Supported: JPEG, PNG", http.StatusBadRequest)
		return
	}

	h.logger.Printf("Image format: %s, dimensions: %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())

	predictions, class, err := h.controller.Classify(img)
	if err != nil {
		h.logger.Printf("Prediction error: %v", err)
		respondError(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	respondJSON(w, predictionResponse{Class: class, Predictions: predictions}, http.StatusOK)
}

func (h *Handler) StartSnapshots(w http.ResponseWriter, r *http.Request) {
	h.snapshots.Start()
	respondJSON(w, h.snapshotState(), http.StatusOK)
}

func (h *Handler) StopSnapshots(w http.ResponseWriter, r *http.Request) {
	h.snapshots.Stop()
	respondJSON(w, h.snapshotState(), http.StatusOK)
}

func (h *Handler) StopCamera(w http.ResponseWriter, r *http.Request) {
	h.controller.StopCamera()
	respondJSON(w, map[string]string{"camera": "stopped"}, http.StatusOK)
}

func (h *Handler) PlayCamera(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.PlayCamera(); err != nil {
		h.logger.Printf("play camera: %v", err)
		respondError(w, "Camera unavailable", http.StatusConflict)
		return
	}
	respondJSON(w, map[string]string{"camera": "playing"}, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
