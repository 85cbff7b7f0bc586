package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/quadrant/featureflag"
	quadranthttp "github.com/aukilabs/quadrant/http"
	"github.com/aukilabs/quadrant/models"
	"github.com/aukilabs/quadrant/smoketest"
	qwebsocket "github.com/aukilabs/quadrant/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The quadrant version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "quadrant_info",
		Help:        "Quadrant information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"QUADRANT_ADDR"                  help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"QUADRANT_ADMIN_ADDR"            help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"QUADRANT_PUBLIC_ENDPOINT"       help:"The public endpoint where this server is reachable."`
	AuthToken          string        `cli:""        env:"QUADRANT_AUTH_TOKEN"            help:"The bearer token required by the world API. Empty disables authentication."`
	LogLevel           string        `cli:""        env:"QUADRANT_LOG_LEVEL"             help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"QUADRANT_LOG_INDENT"            help:"Indent logs."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"QUADRANT_CLIENT_IDLE_TIMEOUT"   help:"Time until an idle client will be disconnected"`
	FrameDuration      time.Duration `cli:",hidden" env:"QUADRANT_FRAME_DURATION"        help:"The duration of a world frame."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"QUADRANT_LOG_SUMMARY_INTERVAL"  help:"The duration between each log summary by connection."`
	DefaultMaxLevel    int           `cli:",hidden" env:"QUADRANT_DEFAULT_MAX_LEVEL"     help:"The index max level of worlds created without one."`
	DefaultMaxObjects  int           `cli:",hidden" env:"QUADRANT_DEFAULT_MAX_OBJECTS"   help:"The index node capacity of worlds created without one."`
	SmokeTestMaxPoints int           `cli:",hidden" env:"QUADRANT_SMOKE_TEST_MAX_POINTS" help:"The maximum number of points inserted by a smoke test."`
	Events             eventsConfig  `cli:",hidden" env:"-"                              help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"QUADRANT_FEATURE_FLAGS"         help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                              help:"Show version."`
	Help               bool          `cli:""        env:"-"                              help:"Show help."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"QUADRANT_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"QUADRANT_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"QUADRANT_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"QUADRANT_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		LogLevel:           logs.InfoLevel.String(),
		ClientIdleTimeout:  time.Minute * 5,
		FrameDuration:      time.Millisecond * 50,
		LogSummaryInterval: time.Minute,
		DefaultMaxLevel:    8,
		DefaultMaxObjects:  4,
		SmokeTestMaxPoints: 100000,
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the quadrant spatial index server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	transport := metrics.HTTPTransport(http.DefaultTransport)

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     transport,
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "quadrant",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)

	var worlds models.WorldStore
	defer worlds.Close()

	worldAPI := quadranthttp.WorldAPI{
		Worlds:            &worlds,
		FrameDuration:     conf.FrameDuration,
		DefaultMaxLevel:   conf.DefaultMaxLevel,
		DefaultMaxObjects: conf.DefaultMaxObjects,
		FeatureFlags:      featureFlags,
	}

	var worldsMux http.ServeMux
	worldAPI.Register(&worldsMux)

	featureFlags.IfNotSet(featureflag.FlagDisableWebsocket, func() {
		worldsMux.Handle("GET /worlds/{id}/ws", websocket.Server{
			// Authentication is done before the upgrade.
			Handshake: func(c *websocket.Config, r *http.Request) error {
				return nil
			},
			Handler: func(conn *websocket.Conn) {
				defer conn.Close()

				var h qwebsocket.Handler = &qwebsocket.RealtimeHandler{
					ClientIdleTimeout: conf.ClientIdleTimeout,
					Worlds:            &worlds,
				}
				h = qwebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
				h = qwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
				defer h.Close()

				qwebsocket.Handle(ctx, conn, h)
			},
		})
	})

	worldsHandler := quadranthttp.HandleWithCORS(
		quadranthttp.VerifyAuthTokenHandler(conf.AuthToken, &worldsMux),
	)

	readinessCheck := func() bool {
		return ctx.Err() == nil
	}

	var service http.ServeMux
	service.Handle("/worlds", worldsHandler)
	service.Handle("/worlds/", worldsHandler)
	service.Handle("/health", quadranthttp.HandleWithCORS(http.HandlerFunc(quadranthttp.HandleHealthCheck)))
	service.Handle("/ready", quadranthttp.HandleWithCORS(http.HandlerFunc(quadranthttp.HandleReadyCheck(readinessCheck))))
	service.Handle("/version", quadranthttp.HandleWithCORS(http.HandlerFunc(quadranthttp.HandleVersion(version))))

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", quadranthttp.HandleHealthCheck)
	admin.HandleFunc("/ready", quadranthttp.HandleReadyCheck(readinessCheck))
	admin.HandleFunc("POST /smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		MaxPoints: conf.SmokeTestMaxPoints,
		SendResult: func(ctx context.Context, res smoketest.Result) error {
			logs.WithTag("passed", res.Passed).
				WithTag("inserted", res.Inserted).
				WithTag("missing", res.Missing).
				WithTag("nodes", res.Nodes).
				WithTag("depth", res.Depth).
				WithTag("duration", res.Duration).
				Info("smoke test completed")
			return nil
		},
	}))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("feature_flags", featureFlags.List()).
		Info("starting quadrant server")

	quadranthttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			quadranthttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.ClientIdleTimeout <= 0 {
		return errors.New("client idle timeout must be positive").
			WithTag("client_idle_timeout", conf.ClientIdleTimeout)
	}

	if conf.DefaultMaxLevel < 0 {
		return errors.New("default max level must not be negative").
			WithTag("default_max_level", conf.DefaultMaxLevel)
	}

	if conf.DefaultMaxObjects <= 0 {
		return errors.New("default max objects must be positive").
			WithTag("default_max_objects", conf.DefaultMaxObjects)
	}

	return nil
}
