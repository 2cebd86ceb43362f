// Package httpapi is the HTTP boundary of the receipt service.
//
// Routes:
//   - POST /api/process/  multipart upload, field "file", JPEG or PNG
//   - GET  /health        {"status":"ok"} when ready, {"status":"loading"} otherwise
//
// Every response to /api/process/ uses the envelope
//
//	{"status":"success","data":{...}}
//	{"status":"error","data":{},"error":"..."}
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ironsheep/receipt-extractor/internal/log"
	"github.com/ironsheep/receipt-extractor/internal/pipeline"
)

// DefaultMaxUploadBytes caps uploads when Options.MaxUploadBytes is zero.
const DefaultMaxUploadBytes = 20 << 20

// Processor is the extraction service behind the routes.
type Processor interface {
	Ready() bool
	Process(ctx context.Context, data []byte) (*pipeline.Result, error)
}

// Options configure the HTTP boundary.
type Options struct {
	// MaxUploadBytes limits the request body. Zero means
	// DefaultMaxUploadBytes.
	MaxUploadBytes int64

	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
}

// Server routes HTTP requests to a Processor.
type Server struct {
	proc    Processor
	opts    Options
	router  *mux.Router
	handler http.Handler
	log     log.Logger
}

// New builds the router.
func New(p Processor, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		proc:   p,
		opts:   opts,
		router: mux.NewRouter(),
		log:    log.Named("http"),
	}
	s.registerRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{RequestIDHeader},
	})
	// CORS wraps the router so that preflight requests never reach route
	// matching.
	s.handler = c.Handler(s.withRequestID(s.router))
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/process/", s.handleProcess).Methods(http.MethodPost)
	s.router.HandleFunc("/api/process", s.handleProcess).Methods(http.MethodPost)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.log.Infof("shutting down http server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
