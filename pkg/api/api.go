// Package api exposes the latest pressure reading over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/itohio/insole/pkg/sensor"
	"github.com/rs/cors"
)

// RootMessage is returned by GET /.
const RootMessage = "API da GaitVision ativa 🚀"

// Source provides the latest reading. *reader.Reader implements it.
type Source interface {
	Latest(timeout time.Duration, allowSimulated bool) (sensor.Reading, bool)
}

// Server serves the polling endpoints.
type Server struct {
	source         Source
	waitTimeout    time.Duration
	allowSimulated bool
	metrics        http.Handler
	logger         *log.Logger
}

// New creates a server. A nil metrics handler leaves /metrics unrouted.
func New(source Source, waitTimeout time.Duration, allowSimulated bool, metrics http.Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		source:         source,
		waitTimeout:    waitTimeout,
		allowSimulated: allowSimulated,
		metrics:        metrics,
		logger:         logger,
	}
}

// Handler returns the routed handler with permissive CORS, as browsers poll
// it from the dashboard origin.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.root).Methods("GET")
	r.HandleFunc("/pressao", s.pressure).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods("GET")
	}
	return cors.AllowAll().Handler(r)
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": RootMessage})
}

type pressureResponse struct {
	Pressure sensor.Reading `json:"pressao"`
}

// pressure answers with {"pressao": null} when no real data arrived in time
// and simulation is off.
func (s *Server) pressure(w http.ResponseWriter, r *http.Request) {
	reading, ok := s.source.Latest(s.waitTimeout, s.allowSimulated)
	if !ok {
		reading = nil
	}
	s.writeJSON(w, http.StatusOK, pressureResponse{Pressure: reading})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "err", err)
	}
}
