// Package app provides the dependency injection container assembling the
// order, product and payment services from shared infrastructure.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	cleanerUsecase "github.com/allisson/ordersaga/internal/cleaner/usecase"
	"github.com/allisson/ordersaga/internal/config"
	"github.com/allisson/ordersaga/internal/database"
	"github.com/allisson/ordersaga/internal/http"
	inboxRepository "github.com/allisson/ordersaga/internal/inbox/repository"
	"github.com/allisson/ordersaga/internal/messaging"
	"github.com/allisson/ordersaga/internal/metrics"
	outboxRepository "github.com/allisson/ordersaga/internal/outbox/repository"
	outboxUsecase "github.com/allisson/ordersaga/internal/outbox/usecase"
)

// Container holds all application dependencies and provides methods to access
// them. It follows the lazy initialization pattern - components are created on
// first access. One process hosts one service, so only that service's slice of
// the container is ever initialized.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	txManager       database.TxManager
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	publisher       *messaging.KafkaPublisher
	consumer        *messaging.Consumer

	// Staging repositories shared by every service
	outboxRepo *outboxRepository.PostgreSQLOutboxMessageRepository
	inboxRepo  *inboxRepository.PostgreSQLInboxMessageRepository

	// Relay workers shared by every service
	dispatcher *outboxUsecase.Dispatcher
	cleaner    *cleanerUsecase.Cleaner

	// Servers
	metricsServer *http.MetricsServer

	// Order service components
	order orderComponents

	// Product service components
	product productComponents

	// Payment service components
	payment paymentComponents

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	txManagerInit       sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	publisherInit       sync.Once
	outboxRepoInit      sync.Once
	inboxRepoInit       sync.Once
	dispatcherInit      sync.Once
	cleanerInit         sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided
// configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance. It creates a new logger on
// first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection. It creates and configures the database
// connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := database.Connect(database.Config{
			ConnectionString:   c.config.DBConnectionString,
			MaxOpenConnections: c.config.DBMaxOpenConnections,
			MaxIdleConnections: c.config.DBMaxIdleConnections,
			ConnMaxLifetime:    c.config.DBConnMaxLifetime,
		})
		if err != nil {
			c.initErrors["db"] = fmt.Errorf("failed to connect to database: %w", err)
			return
		}
		c.db = db
	})
	if err, exists := c.initErrors["db"]; exists {
		return nil, err
	}
	return c.db, nil
}

// TxManager returns the transaction manager. It requires a database connection
// to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	c.txManagerInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["txManager"] = fmt.Errorf("failed to get database for tx manager: %w", err)
			return
		}
		c.txManager = database.NewTxManager(db)
	})
	if err, exists := c.initErrors["txManager"]; exists {
		return nil, err
	}
	return c.txManager, nil
}

// MetricsProvider returns the OpenTelemetry/Prometheus metrics provider, or
// nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = fmt.Errorf("failed to create metrics provider: %w", err)
			return
		}
		c.metricsProvider = provider
	})
	if err, exists := c.initErrors["metricsProvider"]; exists {
		return nil, err
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. When metrics are
// disabled it returns a no-op implementation so use cases never nil-check.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	c.businessMetricsInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["businessMetrics"] = err
			return
		}
		if provider == nil {
			c.businessMetrics = metrics.NewNoOpBusinessMetrics()
			return
		}
		businessMetrics, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["businessMetrics"] = fmt.Errorf("failed to create business metrics: %w", err)
			return
		}
		c.businessMetrics = businessMetrics
	})
	if err, exists := c.initErrors["businessMetrics"]; exists {
		return nil, err
	}
	return c.businessMetrics, nil
}

// Publisher returns the Kafka publisher used by the outbox dispatcher.
func (c *Container) Publisher() (*messaging.KafkaPublisher, error) {
	c.publisherInit.Do(func() {
		publisher, err := messaging.NewKafkaPublisher(c.config.KafkaBrokers)
		if err != nil {
			c.initErrors["publisher"] = fmt.Errorf("failed to create kafka publisher: %w", err)
			return
		}
		c.publisher = publisher
	})
	if err, exists := c.initErrors["publisher"]; exists {
		return nil, err
	}
	return c.publisher, nil
}

// OutboxRepository returns the outbox message repository instance.
func (c *Container) OutboxRepository() (*outboxRepository.PostgreSQLOutboxMessageRepository, error) {
	c.outboxRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["outboxRepo"] = fmt.Errorf("failed to get database for outbox repository: %w", err)
			return
		}
		c.outboxRepo = outboxRepository.NewPostgreSQLOutboxMessageRepository(db)
	})
	if err, exists := c.initErrors["outboxRepo"]; exists {
		return nil, err
	}
	return c.outboxRepo, nil
}

// InboxRepository returns the inbox message repository instance.
func (c *Container) InboxRepository() (*inboxRepository.PostgreSQLInboxMessageRepository, error) {
	c.inboxRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["inboxRepo"] = fmt.Errorf("failed to get database for inbox repository: %w", err)
			return
		}
		c.inboxRepo = inboxRepository.NewPostgreSQLInboxMessageRepository(db)
	})
	if err, exists := c.initErrors["inboxRepo"]; exists {
		return nil, err
	}
	return c.inboxRepo, nil
}

// Dispatcher returns the outbox dispatcher instance.
func (c *Container) Dispatcher() (*outboxUsecase.Dispatcher, error) {
	c.dispatcherInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.initErrors["dispatcher"] = err
			return
		}
		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			c.initErrors["dispatcher"] = err
			return
		}
		publisher, err := c.Publisher()
		if err != nil {
			c.initErrors["dispatcher"] = err
			return
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			c.initErrors["dispatcher"] = err
			return
		}

		c.dispatcher = outboxUsecase.NewDispatcher(
			outboxUsecase.Config{
				Interval:          c.config.OutboxDispatchInterval,
				BatchSize:         c.config.OutboxBatchSize,
				ProcessingTimeout: c.config.OutboxProcessingTimeout,
			},
			txManager,
			outboxRepo,
			publisher,
			businessMetrics,
			c.Logger(),
		)
	})
	if err, exists := c.initErrors["dispatcher"]; exists {
		return nil, err
	}
	return c.dispatcher, nil
}

// Cleaner returns the staging table cleaner instance.
func (c *Container) Cleaner() (*cleanerUsecase.Cleaner, error) {
	c.cleanerInit.Do(func() {
		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			c.initErrors["cleaner"] = err
			return
		}
		inboxRepo, err := c.InboxRepository()
		if err != nil {
			c.initErrors["cleaner"] = err
			return
		}

		c.cleaner = cleanerUsecase.NewCleaner(
			cleanerUsecase.Config{
				Interval:      c.config.CleanerInterval,
				BatchSize:     c.config.CleanerBatchSize,
				MaxRetryCount: c.config.InboxMaxRetryCount,
			},
			outboxRepo,
			inboxRepo,
			c.Logger(),
		)
	})
	if err, exists := c.initErrors["cleaner"]; exists {
		return nil, err
	}
	return c.cleaner, nil
}

// MetricsServer returns the Prometheus scrape server, or nil when metrics are
// disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	c.metricsServerInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["metricsServer"] = err
			return
		}
		if provider == nil {
			return
		}
		c.metricsServer = http.NewMetricsServer(
			c.config.ServerHost,
			c.config.MetricsPort,
			c.Logger(),
			provider,
		)
	})
	if err, exists := c.initErrors["metricsServer"]; exists {
		return nil, err
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources. It should be called
// when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.order.httpServer != nil {
		if err := c.order.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.consumer != nil {
		if err := c.consumer.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("consumer close: %w", err))
		}
	}

	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("publisher close: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}
