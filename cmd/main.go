package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrkyc/sqlite-stddev-extension/internal/analytics"
	"github.com/mrkyc/sqlite-stddev-extension/internal/model"
	"github.com/mrkyc/sqlite-stddev-extension/internal/persistence"
)

const (
	defaultHTTPAddr   = ":8080"
	defaultRedisAddr  = "127.0.0.1:6379"
	defaultRedisDB    = 0
	defaultSQLitePath = "samples.db"
	defaultWindowSize = 50
	defaultThreshold  = 2.0
)

type app struct {
	store    *persistence.SampleStore
	history  *persistence.SampleDB
	analyzer *analytics.Analyzer
	queue    chan model.Sample
	ctx      context.Context
	cancel   context.CancelFunc
	prom     promMetrics
}

type promMetrics struct {
	ingestedTotal   prometheus.Counter
	badReqTotal     prometheus.Counter
	queueFullTotal  prometheus.Counter
	nullTotal       prometheus.Counter
	redisErrTotal   prometheus.Counter
	historyErrTotal prometheus.Counter
	procTimeSeconds prometheus.Histogram
	mean            *prometheus.GaugeVec
	stddev          *prometheus.GaugeVec
	zscore          *prometheus.GaugeVec
	windowCount     *prometheus.GaugeVec
	anomalyTotal    *prometheus.CounterVec
}

func main() {
	cfg := readConfig()

	store := persistence.NewSampleStore(cfg.redisAddr, cfg.redisPassword, cfg.redisDB)
	history, err := persistence.OpenSampleDB(cfg.sqlitePath)
	if err != nil {
		log.Fatalf("sqlite open failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Check(ctx); err != nil {
		log.Printf("redis ping failed: %v", err)
	}

	engine := analytics.NewAnalyzer(cfg.windowSize, cfg.threshold)

	service := newApp(ctx, store, history, engine)
	go service.workerLoop()

	httpServer := &http.Server{
		Addr:              cfg.httpAddr,
		Handler:           service.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("http server listening on %s", cfg.httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen failed: %v", err)
		}
	}()

	awaitSignal(cancel)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if err := store.Stop(); err != nil {
		log.Printf("redis close error: %v", err)
	}
	if err := history.Close(); err != nil {
		log.Printf("sqlite close error: %v", err)
	}
}

type config struct {
	httpAddr      string
	redisAddr     string
	redisPassword string
	redisDB       int
	sqlitePath    string
	windowSize    int
	threshold     float64
}

func readConfig() config {
	return config{
		httpAddr:      readEnv("HTTP_ADDR", defaultHTTPAddr),
		redisAddr:     readEnv("REDIS_ADDR", defaultRedisAddr),
		redisPassword: readEnv("REDIS_PASSWORD", ""),
		redisDB:       readEnvInt("REDIS_DB", defaultRedisDB),
		sqlitePath:    readEnv("SQLITE_PATH", defaultSQLitePath),
		windowSize:    readEnvInt("ANALYTICS_WINDOW", defaultWindowSize),
		threshold:     readEnvFloat("ANALYTICS_THRESHOLD", defaultThreshold),
	}
}

func readEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func readEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func newApp(ctx context.Context, store *persistence.SampleStore, history *persistence.SampleDB, engine *analytics.Analyzer) *app {
	queue := make(chan model.Sample, 1024)

	service := &app{
		store:    store,
		history:  history,
		analyzer: engine,
		queue:    queue,
		prom:     buildPromMetrics(),
	}
	service.ctx, service.cancel = context.WithCancel(ctx)
	service.prom.register()

	return service
}

func buildPromMetrics() promMetrics {
	return promMetrics{
		ingestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_total",
			Help: "Total samples ingested",
		}),
		badReqTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_bad_request_total",
			Help: "Total bad ingest requests",
		}),
		queueFullTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_queue_full_total",
			Help: "Total ingest requests rejected because queue is full",
		}),
		nullTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_null_value_total",
			Help: "Total null-valued samples kept out of the statistics window",
		}),
		redisErrTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redis_error_total",
			Help: "Total redis errors",
		}),
		historyErrTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "history_error_total",
			Help: "Total sqlite history errors",
		}),
		procTimeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_processing_seconds",
			Help:    "Latency for processing samples",
			Buckets: prometheus.DefBuckets,
		}),
		mean: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stats_window_mean",
			Help: "Rolling mean per series",
		}, []string{"series"}),
		stddev: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stats_window_stddev",
			Help: "Rolling population standard deviation per series",
		}, []string{"series"}),
		zscore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stats_window_zscore",
			Help: "Z-score of the latest sample per series",
		}, []string{"series"}),
		windowCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stats_window_count",
			Help: "Number of samples in the window per series",
		}, []string{"series"}),
		anomalyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stats_anomaly_total",
			Help: "Total anomalies detected per series",
		}, []string{"series"}),
	}
}

func (m promMetrics) register() {
	prometheus.MustRegister(
		m.ingestedTotal,
		m.badReqTotal,
		m.queueFullTotal,
		m.nullTotal,
		m.redisErrTotal,
		m.historyErrTotal,
		m.procTimeSeconds,
		m.mean,
		m.stddev,
		m.zscore,
		m.windowCount,
		m.anomalyTotal,
	)
}

func (a *app) router() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/ingest", a.ingestHandler)
	mux.HandleFunc("/stats", a.statsHandler)
	mux.HandleFunc("/aggregate", a.aggregateHandler)
	mux.HandleFunc("/latest", a.latestHandler)
	return mux
}

func (a *app) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.store.Check(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("redis unavailable"))
		return
	}

	_, _ = w.Write([]byte("ok"))
}

func (a *app) ingestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	defer func() {
		a.prom.procTimeSeconds.Observe(time.Since(start).Seconds())
	}()

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var sample model.Sample
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&sample); err != nil {
		a.prom.badReqTotal.Inc()
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid json"))
		return
	}

	if !isSampleValid(sample) {
		a.prom.badReqTotal.Inc()
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid sample"))
		return
	}

	if sample.Timestamp == 0 {
		sample.Timestamp = time.Now().Unix()
	}

	select {
	case a.queue <- sample:
		a.prom.ingestedTotal.Inc()
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("accepted"))
	default:
		a.prom.queueFullTotal.Inc()
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("queue full"))
	}
}

// isSampleValid keeps non-finite values out of the statistics engine;
// a null value is valid and is filtered further down the pipeline.
func isSampleValid(m model.Sample) bool {
	if m.SeriesID == "" {
		return false
	}
	if m.Value != nil && (math.IsNaN(*m.Value) || math.IsInf(*m.Value, 0)) {
		return false
	}
	return true
}

func (a *app) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if seriesID := r.URL.Query().Get("series"); seriesID != "" {
		snap, ok := a.analyzer.Latest(seriesID)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("no data"))
			return
		}
		respondJSON(w, snap)
		return
	}

	respondJSON(w, a.analyzer.All())
}

func (a *app) aggregateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	seriesID := r.URL.Query().Get("series")
	if seriesID == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("series is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	agg, err := a.history.Aggregate(ctx, seriesID)
	if err != nil {
		a.prom.historyErrTotal.Inc()
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("history error"))
		return
	}

	respondJSON(w, agg)
}

func (a *app) latestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	seriesID := r.URL.Query().Get("series")
	if seriesID == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("series is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	sample, err := a.store.FetchLatest(ctx, seriesID)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("redis error"))
		return
	}
	if sample == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no data"))
		return
	}

	respondJSON(w, sample)
}

// workerLoop is the sole owner of the analyzer and its accumulators.
func (a *app) workerLoop() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case sample := <-a.queue:
			ctx, cancel := context.WithTimeout(a.ctx, 2*time.Second)
			if err := a.store.Save(ctx, sample); err != nil {
				a.prom.redisErrTotal.Inc()
				log.Printf("redis store error: %v", err)
			}
			if err := a.history.Append(ctx, sample); err != nil {
				a.prom.historyErrTotal.Inc()
				log.Printf("sqlite history error: %v", err)
			}
			cancel()

			snap, ok := a.analyzer.Process(sample)
			if !ok {
				a.prom.nullTotal.Inc()
				continue
			}
			a.updateAnalyticsGauges(snap)
		}
	}
}

func (a *app) updateAnalyticsGauges(snap analytics.Snapshot) {
	a.prom.mean.WithLabelValues(snap.SeriesID).Set(snap.Mean)
	a.prom.zscore.WithLabelValues(snap.SeriesID).Set(snap.ZScore)
	a.prom.windowCount.WithLabelValues(snap.SeriesID).Set(float64(snap.Count))
	if snap.StddevPopulation != nil {
		a.prom.stddev.WithLabelValues(snap.SeriesID).Set(*snap.StddevPopulation)
	}
	if snap.Anomaly {
		a.prom.anomalyTotal.WithLabelValues(snap.SeriesID).Inc()
	}
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func awaitSignal(cancel context.CancelFunc) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()
	log.Printf("shutdown signal received")
}
