package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/eth"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/events"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/ledger"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/metrics"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/store"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/tokenizer"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/config"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/service"
	httptransport "github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/transport/http"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/transport/ws"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Debug {
		logger.Warn("debug mode enabled; error details are exposed to clients")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.New()

	identities, err := store.OpenSQLIdentityStore(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return fmt.Errorf("opening identity store: %w", err)
	}
	defer identities.Close()

	g, ctx := errgroup.WithContext(ctx)

	// Redis backs nonces and events when configured; otherwise everything stays in process
	var (
		nonces    ports.NonceStore
		publisher message.Publisher
	)
	wmLogger := watermill.NewStdLogger(cfg.Server.Debug, false)
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}

		nonces = store.NewRedisNonceStore(redisClient, cfg.Auth.NonceTTL)
		publisher, err = redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return fmt.Errorf("creating event publisher: %w", err)
		}
		logger.Info("using redis for nonces and events")
	} else {
		memNonces := store.NewMemoryNonceStore(cfg.Auth.NonceTTL, store.WithLogger(logger))
		g.Go(func() error {
			return memNonces.Run(ctx, cfg.Auth.NonceSweepInterval)
		})
		nonces = memNonces
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		logger.Warn("using in-process nonce store; run a single replica or set REDIS_URL")
	}
	defer publisher.Close()
	eventPub := events.NewWatermillPublisher(publisher)

	chain, err := ethclient.DialContext(ctx, cfg.Ledger.RPCURL)
	if err != nil {
		return fmt.Errorf("dialing ledger endpoint: %w", err)
	}
	defer chain.Close()

	oracle, err := ledger.NewERC1155Oracle(chain, cfg.Ledger.Timeout, logger, m)
	if err != nil {
		return fmt.Errorf("creating ownership oracle: %w", err)
	}

	tokens := tokenizer.NewJWTTokenizer([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer)
	resolver := service.NewIdentityResolver(identities, logger, m)
	authService := service.NewAuthService(
		nonces,
		eth.NewPersonalSignVerifier(),
		tokens,
		resolver,
		service.WithSessionTTL(cfg.Auth.JWTExpiry),
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithEventPublisher(eventPub),
	)
	gateway := service.NewGateway(tokens)

	socket := ws.NewServer(gateway, ws.NewHub(logger),
		ws.WithPingInterval(cfg.WebSocket.PingInterval),
		ws.WithOriginPatterns(ws.ParseOrigins(cfg.WebSocket.AllowedOrigins)...),
		ws.WithEventPublisher(eventPub),
		ws.WithMetrics(m),
		ws.WithLogger(logger),
	)

	router := httptransport.SetupRouter(httptransport.Dependencies{
		AuthService: authService,
		Gateway:     gateway,
		Oracle:      oracle,
		Logger:      logger,
		Debug:       cfg.Server.Debug,
		Metrics:     m.Handler(),
		Socket:      socket,
	})

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Hijacked WebSocket connections outlive Shutdown; tie them to ctx instead
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
