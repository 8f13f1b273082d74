package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ModelServer provides HTTP API for model predictions
type ModelServer struct {
	model    *LogisticModel
	metrics  MetricsInterface
	loadedAt time.Time
	server   *http.Server
}

// PredictionResponse is the body of a successful /predict call
type PredictionResponse struct {
	Prediction int `json:"prediction"`
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// NewModelServer creates a new HTTP server for model serving. The model is
// shared read-only by every request. metrics may be nil.
func NewModelServer(model *LogisticModel, port int, metrics MetricsInterface) *ModelServer {
	ms := &ModelServer{
		model:    model,
		metrics:  metrics,
		loadedAt: time.Now(),
	}

	if metrics != nil && !model.TrainedAt.IsZero() {
		metrics.MLModelAgeSet(time.Since(model.TrainedAt).Seconds())
	}

	ms.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           ms.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return ms
}

// Handler returns the routed endpoints without starting a listener.
func (ms *ModelServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", ms.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/predict", ms.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/model/info", ms.handleModelInfo).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// Start begins serving HTTP requests
func (ms *ModelServer) Start() error {
	log.Info().Str("addr", ms.server.Addr).Msg("starting model server")
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (ms *ModelServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

func (ms *ModelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (ms *ModelServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q := r.URL.Query()
	passengers, err := strconv.Atoi(q.Get("passenger_count"))
	if err != nil {
		ms.reject(w, "passenger_count", q.Get("passenger_count"), "a valid integer")
		return
	}
	distance, err := strconv.ParseFloat(q.Get("trip_distance"), 64)
	if err != nil {
		ms.reject(w, "trip_distance", q.Get("trip_distance"), "a valid number")
		return
	}

	features := FeatureVector(passengers, distance)
	prediction, err := ms.model.Predict(features)
	if err != nil {
		if ms.metrics != nil {
			ms.metrics.MLFailuresInc()
		}
		log.Error().Err(err).Msg("prediction failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}

	if ms.metrics != nil {
		ms.metrics.MLPredictionsInc(prediction)
		if p, err := ms.model.PredictProba(features); err == nil {
			ms.metrics.MLPredictionScoresObserve(p)
		}
		ms.metrics.MLLatencyObserve(time.Since(start).Seconds())
	}

	log.Debug().
		Int("passenger_count", passengers).
		Float64("trip_distance", distance).
		Int("prediction", prediction).
		Msg("prediction served")

	writeJSON(w, http.StatusOK, PredictionResponse{Prediction: prediction})
}

func (ms *ModelServer) reject(w http.ResponseWriter, field, value, want string) {
	if ms.metrics != nil {
		ms.metrics.MLFailuresInc()
	}
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
		Detail: fmt.Sprintf("query parameter %s=%q is not %s", field, value, want),
	})
}

func (ms *ModelServer) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"kind":          ms.model.Kind,
		"features":      ms.model.Features,
		"coef":          ms.model.Coef,
		"intercept":     ms.model.Intercept,
		"C":             ms.model.C,
		"random_state":  ms.model.RandomState,
		"trained_at":    ms.model.TrainedAt,
		"training_rows": ms.model.TrainingRows,
		"loaded_at":     ms.loadedAt,
	}
	writeJSON(w, http.StatusOK, info)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
