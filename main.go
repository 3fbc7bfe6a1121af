package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mixa1334/ProductApp/config"
	"github.com/mixa1334/ProductApp/form"
	"github.com/mixa1334/ProductApp/handlers"
	"github.com/mixa1334/ProductApp/middleware"
	"github.com/mixa1334/ProductApp/remote"
	"github.com/mixa1334/ProductApp/session"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const (
	shutdownTimeout = 10 * time.Second
	settleTimeout   = 5 * time.Second
	reapInterval    = time.Minute
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	app := &cli.App{
		Name:  "productapp",
		Usage: "product management console over the remote record service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "remote-url",
				Usage: "record service base URL (overrides PRODUCTAPP_REMOTE_BASE_URL)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the console HTTP server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "listen address (overrides PRODUCTAPP_LISTEN_ADDR)",
					},
				},
				Action: func(c *cli.Context) error {
					return serve(c, logger)
				},
			},
			{
				Name:  "products",
				Usage: "list products, optionally filtered by name",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "search", Usage: "name filter"},
					formatFlag(),
				},
				Action: func(c *cli.Context) error {
					client, err := initClient(c, logger)
					if err != nil {
						return err
					}
					products, err := client.GetProducts(c.Context, c.String("search"))
					if err != nil {
						return err
					}
					return printOutput(c.App.Writer, c.String("format"), products)
				},
			},
			{
				Name:  "types",
				Usage: "list the valid product types",
				Flags: []cli.Flag{formatFlag()},
				Action: func(c *cli.Context) error {
					client, err := initClient(c, logger)
					if err != nil {
						return err
					}
					types, err := client.GetProductTypes(c.Context)
					if err != nil {
						return err
					}
					return printOutput(c.App.Writer, c.String("format"), types)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal("Command failed", zap.Error(err))
	}
}

func serve(c *cli.Context, logger *zap.Logger) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	client, err := remote.InitClient(cfg.Remote, logger)
	if err != nil {
		return err
	}

	store := session.NewStore(client, form.NewValidator(time.Now), cfg.SessionIdleTimeout, logger)
	defer store.CloseAll()

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())
	handlers.NewConsoleHandler(store, settleTimeout, logger).Register(router)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Product console started", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "failed to start server")
		}
		return nil
	})
	g.Go(func() error {
		store.RunReaper(ctx, reapInterval)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received. Exiting...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
			return err
		}
		logger.Info("Server stopped gracefully")
		return nil
	})

	return g.Wait()
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if url := c.String("remote-url"); url != "" {
		cfg.Remote.BaseURL = url
	}
	if addr := c.String("listen"); addr != "" {
		cfg.ListenAddr = addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initClient(c *cli.Context, logger *zap.Logger) (*remote.Client, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return remote.InitClient(cfg.Remote, logger)
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "format",
		Value: "json",
		Usage: "output format: json or yaml",
	}
}

func printOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
