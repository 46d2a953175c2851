// internal/publish/rest.go
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tamzrod/bms-telemetry/internal/reading"
)

// Source exposes the latest state of one supervised link.
type Source interface {
	LinkID() string
	Latest() (reading.Snapshot, bool)
}

// RESTServer serves the latest snapshots over HTTP.
type RESTServer struct {
	addr    string
	sources []Source
	log     *slog.Logger
}

func NewREST(addr string, sources []Source, log *slog.Logger) *RESTServer {
	if log == nil {
		log = slog.Default()
	}
	return &RESTServer{addr: addr, sources: sources, log: log}
}

// Handler returns the route table.
func (s *RESTServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	return mux
}

// Run serves until the context ends, then shuts down gracefully.
func (s *RESTServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("rest listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
		return ctx.Err()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *RESTServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// handleSnapshot returns every link's latest snapshot. Until the first
// poll cycle completes there is nothing to serve.
func (s *RESTServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	links := make(map[string]any, len(s.sources))
	have := 0
	for _, src := range s.sources {
		if snap, ok := src.Latest(); ok {
			links[src.LinkID()] = snap
			have++
		} else {
			links[src.LinkID()] = nil
		}
	}

	if have == 0 {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"links": links}); err != nil {
		s.log.Warn("snapshot encode failed", "err", err)
	}
}
