// Package api exposes the live state of a run: a JSON status endpoint,
// Prometheus metrics and a gRPC health service.
package api

import (
	"Go2FlowFeatures/internal/engine/runner"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service reporting the run.
const ServiceName = "flowfeat.Runner"

// Status is the JSON body of GET /api/v1/status.
type Status struct {
	RunID       string    `json:"run_id"`
	State       string    `json:"state"`
	Packets     uint64    `json:"packets"`
	Skipped     uint64    `json:"skipped"`
	ActiveFlows int       `json:"active_flows"`
	Flows       int       `json:"flows"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Server publishes run status. It implements runner.Observer.
type Server struct {
	mu     sync.RWMutex
	status Status

	router *mux.Router
	health *health.Server

	httpServer *http.Server
	grpcServer *grpc.Server
}

// NewServer creates a status server in the idle state.
func NewServer() *Server {
	s := &Server{
		status: Status{State: runner.Idle.String(), UpdatedAt: time.Now()},
		router: mux.NewRouter(),
		health: health.NewServer(),
	}
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	s.router.HandleFunc("/api/v1/status", s.statusHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.healthzHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Health returns the gRPC health service.
func (s *Server) Health() healthpb.HealthServer {
	return s.health
}

// StateChanged records a state transition.
func (s *Server) StateChanged(runID string, state runner.State) {
	s.mu.Lock()
	s.status.RunID = runID
	s.status.State = state.String()
	s.status.UpdatedAt = time.Now()
	s.mu.Unlock()

	switch state {
	case runner.Running:
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	case runner.Done:
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Progress records a progress report.
func (s *Server) Progress(p runner.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.RunID = p.RunID
	s.status.Packets = p.Packets
	s.status.Skipped = p.Skipped
	s.status.ActiveFlows = p.ActiveFlows
	s.status.Flows = p.Flows
	s.status.UpdatedAt = time.Now()
}

// Finished records the final counters of a run.
func (s *Server) Finished(res *runner.Result) {
	s.Progress(runner.Progress{
		RunID:   res.RunID,
		Packets: res.Packets,
		Skipped: res.Skipped,
		Flows:   res.Flows,
	})
}

// Status returns a copy of the current status.
func (s *Server) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(s.Status())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Start serves HTTP on httpAddr and gRPC health on grpcAddr. Empty addresses are skipped.
func (s *Server) Start(httpAddr, grpcAddr string) error {
	if httpAddr != "" {
		lis, err := net.Listen("tcp", httpAddr)
		if err != nil {
			return err
		}
		s.httpServer = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.WithField("addr", lis.Addr().String()).Info("Status API listening")
			if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Status API stopped")
			}
		}()
	}

	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return err
		}
		s.grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(s.grpcServer, s.health)
		go func() {
			log.WithField("addr", lis.Addr().String()).Info("gRPC health listening")
			if err := s.grpcServer.Serve(lis); err != nil {
				log.WithError(err).Error("gRPC health stopped")
			}
		}()
	}
	return nil
}

// Shutdown stops both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
