package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/seednote/seed-worker/internal/worker"
	"github.com/seednote/seed-worker/pkg/log"
	"github.com/seednote/seed-worker/pkg/metrics"
	"github.com/seednote/seed-worker/pkg/middleware"
	"go.uber.org/zap"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type StatusProvider interface {
	Status() worker.Status
}

var httpMetrics = sync.OnceValue(func() *metrics.Middleware {
	m := metrics.NewMiddleware("metrics_server")
	if err := m.Register(nil); err != nil {
		zap.S().Named("metrics_server").Warnw("failed to register http metrics", "error", err)
	}
	return m
})

// MetricServer exposes the Prometheus metrics and the worker health.
type MetricServer struct {
	bindAddress string
	httpServer  *http.Server
	listener    net.Listener
}

func NewMetricServer(bindAddress string, listener net.Listener, status StatusProvider, logLevel string) *MetricServer {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		log.ConditionalLogger(logLevel, zap.L(), "metrics_server"),
		httpMetrics().Handler,
	)

	prometheusMetricHandler := metrics.NewPrometheusMetricsHandler()
	router.Handle("/metrics", prometheusMetricHandler.Handler())
	router.Get("/health", healthHandler(status))

	s := &MetricServer{
		bindAddress: bindAddress,
		listener:    listener,
		httpServer: &http.Server{
			Addr:              bindAddress,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	return s
}

// healthHandler answers 503 once the loop has stopped.
func healthHandler(status StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := status.Status()
		if s.State == worker.StateStopped {
			render.Status(r, http.StatusServiceUnavailable)
		}
		render.JSON(w, r, s)
	}
}

func (m *MetricServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		m.httpServer.SetKeepAlivesEnabled(false)
		_ = m.httpServer.Shutdown(ctxTimeout)
		zap.S().Named("metrics_server").Info("metrics server terminated")
	}()

	zap.S().Named("metrics_server").Infof("serving metrics: %s", m.bindAddress)
	if err := m.httpServer.Serve(m.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
