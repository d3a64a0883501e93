package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/binding"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/candidates"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/config"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/hub"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/match"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/metrics"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/middleware"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/notify"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/service"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/session"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/storage"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/storage/memory"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/storage/sqlite"
	"github.com/SensualOdin/ChickenTendies-sub000/pkg/logging"
)

const (
	shutdownTimeout = 10 * time.Second
	webhookTimeout  = 5 * time.Second
	deckTTL         = 12 * time.Hour
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	Addr       string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session server",
		Long: `Run the session server: connect RPCs, the /ws event stream, join QR codes
and Prometheus metrics on one port.

Settings come from .env, an optional YAML file and the environment, in that
order of increasing precedence.

Example:
  chickentendies serve
  STORAGE=sqlite BINDING_SECRET=... chickentendies serve --addr :9000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides ADDR)")

	return cmd
}

func runServer(ctx context.Context, opts *ServeOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	logging.Setup(cfg.LogFormat, cfg.LogLevel)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	rule, err := match.ParseRule(cfg.MatchRule)
	if err != nil {
		return err
	}

	// The manager invalidates decks when preferences change; the cache reads
	// preferences from the manager.
	var cache *candidates.Cache
	sessions := session.NewManager(store, binding.NewLeaderTokens(bcrypt.DefaultCost),
		session.WithCandidateInvalidator(session.InvalidatorFunc(func(groupID string) {
			cache.Invalidate(groupID)
		})),
	)

	cacheOpts := []candidates.Option{
		candidates.WithMetrics(m),
		candidates.WithTimeout(cfg.ProviderTimeout),
	}
	if cfg.RatingsAPIURL != "" {
		cacheOpts = append(cacheOpts, candidates.WithRatings(
			candidates.NewRatingsClient(cfg.RatingsAPIURL, cfg.RatingsAPIKey, cfg.ProviderTimeout)))
	}
	if cfg.RedisAddr != "" {
		rdb, err := openRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		cacheOpts = append(cacheOpts, candidates.WithDeckStore(candidates.NewRedisDecks(rdb, deckTTL)))
	}
	var provider candidates.Provider
	if cfg.PlacesAPIURL != "" {
		provider = candidates.NewPlacesClient(cfg.PlacesAPIURL, cfg.PlacesAPIKey, cfg.PageSize, cfg.ProviderTimeout)
	} else {
		slog.Warn("PLACES_API_URL not set, serving the built-in restaurant set")
	}
	cache = candidates.NewCache(provider, sessions, cacheOpts...)

	h := hub.New(m)
	signer := binding.NewSigner(cfg.BindingSecret, cfg.BindingTTL)

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = "http://localhost" + cfg.Addr
	}

	svc := service.NewSessionService(sessions, cache, h, signer,
		service.WithMatchRule(rule),
		service.WithNotifier(newNotifier(cfg)),
		service.WithMetrics(m),
		service.WithBindingCookie(cfg.BindingTTL, strings.HasPrefix(publicURL, "https://")),
	)

	mux := http.NewServeMux()

	rpcPath, rpcHandler := service.NewSessionServiceHandler(svc, connect.WithInterceptors(
		middleware.LoggingInterceptor(),
		middleware.RequireBinding(signer),
	))
	mux.Handle(rpcPath, rpcHandler)
	mux.Handle("GET /ws", hub.NewHandler(h, svc.Realtime(), originChecker(cfg.AllowedOrigins)))
	mux.Handle("GET /api/groups/{code}/qr.png", service.NewQRHandler(sessions, publicURL))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	handler := middleware.HTTPLogger(rpcPath, newCORS(cfg.AllowedOrigins).Handler(mux))

	// Wrap with h2c for HTTP/2 without TLS
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting",
			"address", cfg.Addr,
			"storage", cfg.Storage,
			"match_rule", rule,
			"public_url", publicURL,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	h.Close()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage == config.StorageMemory {
		slog.Info("Storage initialized", "storage", cfg.Storage)
		return memory.New(), nil
	}
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	slog.Info("Storage initialized", "storage", cfg.Storage, "database", cfg.DBPath)
	return store, nil
}

func openRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	slog.Info("Sharing candidate decks through redis", "address", addr)
	return rdb, nil
}

func newNotifier(cfg *config.Config) notify.Notifier {
	if cfg.NotifyWebhookURL == "" {
		return notify.LogNotifier{}
	}
	return notify.Multi{
		notify.LogNotifier{},
		notify.NewWebhookNotifier(cfg.NotifyWebhookURL, webhookTimeout),
	}
}

func newCORS(origins []string) *cors.Cors {
	wildcard := slices.Contains(origins, "*")
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			"Connect-Protocol-Version",
			"Connect-Timeout-Ms",
			binding.HeaderName,
		},
		ExposedHeaders:   []string{"Connect-Protocol-Version", "Connect-Timeout-Ms"},
		AllowCredentials: !wildcard,
	})
}

// originChecker limits websocket upgrades to the allowed origins. Requests
// without an Origin header are not browsers and pass.
func originChecker(origins []string) func(r *http.Request) bool {
	if slices.Contains(origins, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}
