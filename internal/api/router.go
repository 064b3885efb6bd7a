package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalcayman/netbank/internal/handler"
	"github.com/capitalcayman/netbank/internal/infrastructure/auth"
	"github.com/capitalcayman/netbank/internal/infrastructure/redis"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func init() {
	prometheus.MustRegister(RequestCounter, RequestDuration)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// The route template keeps cardinality bounded; raw paths carry ids.
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		status := fmt.Sprintf("%d", recorder.status)
		RequestCounter.WithLabelValues(r.Method, endpoint, status).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// SetupRouter wires the public, authenticated and admin route groups.
func SetupRouter(
	h *handler.Handler,
	wh *handler.WithdrawHandler,
	ah *handler.AdminHandler,
	redisClient redis.RedisClient,
	jwtSecret string,
) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	h.RegisterPublicRoutes(r)

	protected := r.PathPrefix("/").Subrouter()
	protected.Use(auth.Middleware(redisClient, jwtSecret))
	h.RegisterProtectedRoutes(protected)
	wh.RegisterRoutes(protected)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(auth.Middleware(redisClient, jwtSecret), auth.AdminOnly)
	ah.RegisterRoutes(admin)

	r.Handle("/metrics", promhttp.Handler())
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
