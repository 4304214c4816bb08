package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskmesh/taskmesh-backend/internal/marketplace/controller"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
)

// Server exposes the marketplace request surface over HTTP.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	logger     logging.Logger
}

func NewServer(ctrl *controller.Controller, port int, logger logging.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		router: router,
		logger: logger,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}

	s.routes(ctrl)
	return s
}

func (s *Server) routes(ctrl *controller.Controller) {
	handler := NewHandler(ctrl, s.logger)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/jobs", handler.PostJob).Methods("POST")
	api.HandleFunc("/jobs/{id}", handler.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/accept", handler.AcceptJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/result", handler.SubmitResult).Methods("POST")
	api.HandleFunc("/jobs/{id}/validate", handler.ValidateJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/cancel", handler.CancelJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/timeout", handler.ClaimTimeout).Methods("POST")
	api.HandleFunc("/agents", handler.RegisterAgent).Methods("POST")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/health", handler.Health).Methods("GET")
}

func (s *Server) Start() error {
	s.logger.Infof("Marketplace API listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server stopped: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
