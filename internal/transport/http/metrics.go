package http

import (
	"net/http"
	"strconv"

	"event-trivia-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trivia_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		},
		[]string{"route", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trivia_http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// result: correct, incorrect or the rejection code
	answersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trivia_answers_total",
			Help: "Answer submissions by outcome",
		},
		[]string{"transport", "result"},
	)

	liveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trivia_ws_connections_current",
			Help: "Open live leaderboard connections",
		},
	)
)

func instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(requestDuration.WithLabelValues(route))
		defer timer.ObserveDuration()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		requestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	}
}

func observeAnswer(transport string, result domain.AnswerResult, err error) {
	outcome := "incorrect"
	switch {
	case err != nil:
		outcome = string(domain.CodeOf(err))
	case result.IsCorrect:
		outcome = "correct"
	}
	answersTotal.WithLabelValues(transport, outcome).Inc()
}
