package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/ribit-api/internal/cache"
	"github.com/example/ribit-api/internal/geo"
	"github.com/example/ribit-api/internal/models"
	"github.com/example/ribit-api/internal/storage"
)

// minMoveMeters is the movement threshold below which a sample is treated
// as a duplicate of the last stored coordinate and skipped.
const minMoveMeters = 5.0

var (
	samplesConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_samples_consumed_total",
		Help: "Total coordinate samples consumed",
	})
	samplesInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_samples_invalid_total",
		Help: "Total invalid samples received",
	})
	samplesDeduped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_samples_deduped_total",
		Help: "Total samples skipped for moving below the distance threshold",
	})
	insertsDone = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_inserts_total",
		Help: "Total successful coordinate inserts",
	})
	insertErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_insert_errors_total",
		Help: "Total coordinate insert failures after retries",
	})
)

func init() {
	prometheus.MustRegister(samplesConsumed, samplesInvalid, samplesDeduped, insertsDone, insertErrors)
}

func main() {
	// allow some flags for local runs
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	brokersEnv := os.Getenv("KAFKA_BROKERS")
	if brokersEnv == "" {
		brokersEnv = os.Getenv("KAFKA_BROKER")
	}
	brokers := []string{}
	if brokersEnv != "" {
		for _, b := range strings.Split(brokersEnv, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	} else {
		brokers = []string{"localhost:9092"}
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "tracking-coordinates"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "ribit-tracking-consumer"
	}

	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		log.Fatal("PG_DSN is required")
	}
	store, err := storage.NewPostgresStore(dsn)
	if err != nil {
		log.Fatalf("postgres connect failed: %v", err)
	}

	var lastCache *cache.RedisCache
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		lastCache = cache.NewRedisCache(redisAddr, os.Getenv("REDIS_PASSWORD"), 5*time.Second)
		defer lastCache.Close()
	}

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if lastCache != nil {
				if err := lastCache.Ping(r.Context()); err != nil {
					http.Error(w, "redis not ready", 503)
					return
				}
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
	}()

	log.Printf("consumer listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down consumer")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		samplesConsumed.Inc()

		var report models.CoordinateReport
		if err := json.Unmarshal(m.Value, &report); err != nil {
			samplesInvalid.Inc()
			log.Printf("invalid sample: %v", err)
			continue
		}
		if !validReport(report) {
			samplesInvalid.Inc()
			log.Printf("rejected sample for session=%s", report.SessionID)
			continue
		}
		if report.Timestamp.IsZero() {
			report.Timestamp = time.Now().UTC()
		}

		if lastCache != nil {
			if last, ok := lastCache.LastCoordinate(ctx, report.SessionID); ok {
				if geo.Haversine(last.Latitude, last.Longitude, report.Latitude, report.Longitude) < minMoveMeters {
					samplesDeduped.Inc()
					continue
				}
			}
		}

		if err := insertWithRetry(ctx, store, report, 3, 200*time.Millisecond); err != nil {
			insertErrors.Inc()
			log.Printf("coordinate insert failed for session=%s: %v", report.SessionID, err)
			continue
		}
		insertsDone.Inc()

		if lastCache != nil {
			sample := models.CoordinateSample{Latitude: report.Latitude, Longitude: report.Longitude, Timestamp: report.Timestamp}
			if err := lastCache.SetLastCoordinate(ctx, report.SessionID, sample); err != nil {
				log.Printf("last-coordinate cache update failed: %v", err)
			}
		}
	}
}

func validReport(r models.CoordinateReport) bool {
	if strings.TrimSpace(r.SessionID) == "" {
		return false
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		return false
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return false
	}
	return true
}

// CoordinateInserter is the small persistence subset this binary needs,
// kept as an interface so tests can fail inserts deterministically.
type CoordinateInserter interface {
	InsertCoordinate(ctx context.Context, sessionID string, c models.CoordinateSample) error
}

// insertWithRetry persists one sample with bounded retry/backoff.
func insertWithRetry(ctx context.Context, store CoordinateInserter, report models.CoordinateReport, attempts int, delay time.Duration) error {
	sample := models.CoordinateSample{Latitude: report.Latitude, Longitude: report.Longitude, Timestamp: report.Timestamp}
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.InsertCoordinate(ctx, report.SessionID, sample); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
