// Package http implements the admin surface: health probes, metrics and a
// read-only vehicle listing.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Alanbenny123/bustrackingnew/internal/pkg/metrics"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/model"
	"github.com/Alanbenny123/bustrackingnew/internal/relay/core/service"
	"github.com/Alanbenny123/bustrackingnew/pkg/log"
	"github.com/Alanbenny123/bustrackingnew/pkg/options"
)

type vehiclesResponse struct {
	Vehicles []model.VehicleState `json:"vehicles"`
}

// Server is the admin HTTP server.
type Server struct {
	server  *http.Server
	options *options.HttpOptions
	svc     *service.Service
	logger  log.Logger
}

// NewServer creates the admin server and installs its routes.
func NewServer(opts *options.HttpOptions, svc *service.Service, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Server{
		options: opts,
		svc:     svc,
		logger:  logger.WithName("http"),
	}

	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/api/v1/vehicles", s.handleListVehicles).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/vehicles/{id}", s.handleGetVehicle).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: opts.Timeout,
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the server until the context is done, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting admin http server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, vehiclesResponse{Vehicles: s.svc.SnapshotAll()})
}

func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, err := s.svc.Snapshot(id)
	if err != nil {
		if errors.Is(err, model.ErrVehicleNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
