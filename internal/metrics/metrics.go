package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	totalTokens atomic.Int64
	totalRounds atomic.Int64
)

var (
	TokensGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quantchat_tokens_generated_total",
		Help: "Total number of tokens sampled by the generator",
	})

	Rounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantchat_rounds_total",
		Help: "Completed conversation rounds by finish reason",
	}, []string{"finish"})

	RoundErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantchat_round_errors_total",
		Help: "Rounds aborted with an error, by cause",
	}, []string{"cause"})

	ScoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quantchat_score_duration_seconds",
		Help:    "Latency of a single Score call",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"precision"})

	HistoryLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quantchat_history_tokens",
		Help:    "Conversation history length after each round",
		Buckets: []float64{16, 64, 128, 256, 512, 1000, 1500, 2000, 4000},
	})

	EvictedTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quantchat_evicted_tokens_total",
		Help: "Tokens dropped from the front of history by the slide policy",
	})

	ConvertedLayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quantchat_converted_layers",
		Help: "Layers running with int8 weights after the last conversion",
	})

	FallbackLayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quantchat_fallback_layers",
		Help: "Layers left in full precision after the last conversion",
	})

	BenchmarkMean = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quantchat_benchmark_mean_seconds",
		Help: "Mean Score latency from the last benchmark run",
	}, []string{"label"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quantchat_active_sessions",
		Help: "Sessions currently held by the HTTP server",
	})
)

func RecordToken() {
	TokensGenerated.Inc()
	totalTokens.Add(1)
}

func RecordRound(finish string, historyLen int) {
	Rounds.WithLabelValues(finish).Inc()
	HistoryLength.Observe(float64(historyLen))
	totalRounds.Add(1)
}

func RecordRoundError(cause string) {
	RoundErrors.WithLabelValues(cause).Inc()
}

func RecordScore(precision string, d time.Duration) {
	ScoreDuration.WithLabelValues(precision).Observe(d.Seconds())
}

func RecordEviction(n int) {
	if n > 0 {
		EvictedTokens.Add(float64(n))
	}
}

func RecordConversion(converted, fallback int) {
	ConvertedLayers.Set(float64(converted))
	FallbackLayers.Set(float64(fallback))
}

func RecordBenchmark(label string, mean time.Duration) {
	BenchmarkMean.WithLabelValues(label).Set(mean.Seconds())
}

// TotalTokens is the process-wide number of sampled tokens.
func TotalTokens() int64 { return totalTokens.Load() }

// TotalRounds is the process-wide number of completed rounds.
func TotalRounds() int64 { return totalRounds.Load() }
