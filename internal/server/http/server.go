package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rzbill/quarry/internal/runtime"
	"github.com/rzbill/quarry/internal/server/http/controllers"
	queuesvc "github.com/rzbill/quarry/internal/services/queues"
	logpkg "github.com/rzbill/quarry/pkg/log"
)

// Server is the REST gateway over the queues service.
type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	logger logpkg.Logger
}

// New builds the server and registers every route.
func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	logger = logger.WithComponent("http")

	svc := queuesvc.NewWithLogger(rt, logger.WithComponent("queues"))
	registry := controllers.NewControllerRegistry(rt, svc)

	mux := http.NewServeMux()
	registry.RegisterAllRoutes(mux)

	var handler http.Handler = cors(mux)
	httpCfg := rt.Config().HTTP
	if httpCfg.RateLimitRPS > 0 {
		limiter := newClientLimiter(httpCfg.RateLimitRPS, httpCfg.RateLimitBurst)
		handler = limiter.middleware(handler)
	}

	return &Server{
		rt:     rt,
		srv:    &http.Server{Handler: handler},
		logger: logger,
	}
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http server listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases the listener.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
