package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalcayman/netbank/internal/infrastructure/observability"
)

func Setup(serviceName string) (func(context.Context) error, http.Handler) {
	observability.InitLogger()
	observability.InitMetrics()
	tracerShutdown := observability.InitTracing(serviceName)
	return tracerShutdown, promhttp.Handler()
}
