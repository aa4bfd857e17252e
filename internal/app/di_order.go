package app

import (
	"fmt"
	"sync"

	"github.com/allisson/ordersaga/internal/http"
	inboxUsecase "github.com/allisson/ordersaga/internal/inbox/usecase"
	"github.com/allisson/ordersaga/internal/messaging"
	orderHTTP "github.com/allisson/ordersaga/internal/order/http"
	orderRepository "github.com/allisson/ordersaga/internal/order/repository"
	orderUsecase "github.com/allisson/ordersaga/internal/order/usecase"
)

// orderComponents holds the order service's lazily initialized components.
type orderComponents struct {
	repo       *orderRepository.PostgreSQLOrderRepository
	useCase    *orderUsecase.Order
	processor  *inboxUsecase.Processor
	httpServer *http.Server

	repoInit       sync.Once
	useCaseInit    sync.Once
	processorInit  sync.Once
	httpServerInit sync.Once
	consumerInit   sync.Once
}

// OrderRepository returns the order repository instance.
func (c *Container) OrderRepository() (*orderRepository.PostgreSQLOrderRepository, error) {
	c.order.repoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["orderRepo"] = fmt.Errorf("failed to get database for order repository: %w", err)
			return
		}
		c.order.repo = orderRepository.NewPostgreSQLOrderRepository(db)
	})
	if err, exists := c.initErrors["orderRepo"]; exists {
		return nil, err
	}
	return c.order.repo, nil
}

// OrderUseCase returns the order use case instance.
func (c *Container) OrderUseCase() (*orderUsecase.Order, error) {
	c.order.useCaseInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.initErrors["orderUseCase"] = err
			return
		}
		orderRepo, err := c.OrderRepository()
		if err != nil {
			c.initErrors["orderUseCase"] = err
			return
		}
		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			c.initErrors["orderUseCase"] = err
			return
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			c.initErrors["orderUseCase"] = err
			return
		}

		c.order.useCase = orderUsecase.NewOrder(
			txManager,
			orderRepo,
			outboxRepo,
			orderUsecase.Topics{
				ReservationRequest: c.config.TopicReservationRequest,
				PaymentRequest:     c.config.TopicPaymentRequest,
			},
			businessMetrics,
			c.Logger(),
		)
	})
	if err, exists := c.initErrors["orderUseCase"]; exists {
		return nil, err
	}
	return c.order.useCase, nil
}

// OrderProcessor returns the inbox processor driving the order saga state
// machine from reservation and payment responses.
func (c *Container) OrderProcessor() (*inboxUsecase.Processor, error) {
	c.order.processorInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.initErrors["orderProcessor"] = err
			return
		}
		inboxRepo, err := c.InboxRepository()
		if err != nil {
			c.initErrors["orderProcessor"] = err
			return
		}
		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			c.initErrors["orderProcessor"] = err
			return
		}
		orderUseCase, err := c.OrderUseCase()
		if err != nil {
			c.initErrors["orderProcessor"] = err
			return
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			c.initErrors["orderProcessor"] = err
			return
		}

		c.order.processor = inboxUsecase.NewProcessor(
			c.processorConfig(),
			txManager,
			inboxRepo,
			outboxRepo,
			orderUsecase.NewSagaHandler(orderUseCase),
			// The order service consumes responses and emits requests; a
			// duplicated response has no stored reply to republish.
			func(string) []string { return nil },
			businessMetrics,
			c.Logger(),
		)
	})
	if err, exists := c.initErrors["orderProcessor"]; exists {
		return nil, err
	}
	return c.order.processor, nil
}

// OrderConsumer returns the Kafka consumer feeding the order service inbox
// from the reservation and payment response topics.
func (c *Container) OrderConsumer() (*messaging.Consumer, error) {
	c.order.consumerInit.Do(func() {
		processor, err := c.OrderProcessor()
		if err != nil {
			c.initErrors["orderConsumer"] = err
			return
		}

		consumer, err := messaging.NewConsumer(
			c.config.KafkaBrokers,
			c.config.ConsumerGroup("order"),
			[]string{c.config.TopicReservationResponse, c.config.TopicPaymentResponse},
			processor,
			c.Logger(),
		)
		if err != nil {
			c.initErrors["orderConsumer"] = fmt.Errorf("failed to create order consumer: %w", err)
			return
		}
		c.consumer = consumer
	})
	if err, exists := c.initErrors["orderConsumer"]; exists {
		return nil, err
	}
	return c.consumer, nil
}

// HTTPServer returns the order API server instance.
func (c *Container) HTTPServer() (*http.Server, error) {
	c.order.httpServerInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}
		orderUseCase, err := c.OrderUseCase()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}

		options := []http.Option{
			http.WithOrderRoutes(orderHTTP.NewOrderHandler(orderUseCase, c.Logger())),
			http.WithCORS(c.config.CORSEnabled, c.config.CORSAllowOrigins),
		}

		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}
		if provider != nil {
			options = append(options, http.WithHTTPMetrics(provider.MeterProvider(), c.config.MetricsNamespace))
		}

		c.order.httpServer = http.NewServer(
			db,
			c.config.ServerHost,
			c.config.ServerPort,
			c.Logger(),
			options...,
		)
	})
	if err, exists := c.initErrors["httpServer"]; exists {
		return nil, err
	}
	return c.order.httpServer, nil
}

// processorConfig builds the inbox processor configuration shared by the
// three services.
func (c *Container) processorConfig() inboxUsecase.Config {
	return inboxUsecase.Config{
		PollInterval:  c.config.InboxPollInterval,
		BatchSize:     c.config.InboxBatchSize,
		MaxRetryCount: c.config.InboxMaxRetryCount,
		RetryInterval: c.config.InboxRetryInterval,
	}
}
