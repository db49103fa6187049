package youtube

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var apiCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "youtube_api_calls_total",
	Help: "Successful YouTube Data API calls by operation.",
}, []string{"operation"})
