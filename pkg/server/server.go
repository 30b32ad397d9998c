// Package server exposes signed asset downloads, metrics and a health
// check over HTTP.
package server

import (
	"context"
	"errors"
	"mime"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tableflip.dev/shopdesk/pkg/logging"
	"tableflip.dev/shopdesk/pkg/metrics"
	"tableflip.dev/shopdesk/pkg/store"
)

// AssetOpener returns object bytes for a path once its token checks out.
type AssetOpener interface {
	Open(path, token string) ([]byte, error)
}

// Server serves the console's HTTP surface.
type Server struct {
	Assets  AssetOpener
	Metrics *metrics.Recorder
	Log     *zap.Logger
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.count)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			s.logger().Warn("write error", zap.Error(err))
		}
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Metrics.Registry(), promhttp.HandlerOpts{}))
	r.Get("/assets/*", s.asset)
	return r
}

func (s *Server) asset(w http.ResponseWriter, req *http.Request) {
	if s.Assets == nil {
		http.Error(w, "assets unavailable", http.StatusServiceUnavailable)
		return
	}
	p := chi.URLParam(req, "*")
	token := req.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	data, err := s.Assets.Open(p, token)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrPermissionDenied):
		s.logger().Info("asset token rejected", zap.String("path", p), zap.Error(err))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
		return
	default:
		s.logger().Warn("asset read failed", zap.String("path", p), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ctype := mime.TypeByExtension(path.Ext(p))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "private, no-store")
	if _, err := w.Write(data); err != nil {
		s.logger().Warn("write error", zap.Error(err))
	}
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		route := req.URL.Path
		if rctx := chi.RouteContext(req.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.Metrics.Request(route, status)
	})
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string, onListening func(net.Addr)) error {
	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if onListening != nil {
		onListening(ln.Addr())
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	s.logger().Info("serving", zap.String("addr", ln.Addr().String()))
	err = httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) logger() *zap.Logger {
	return logging.OrNop(s.Log)
}
