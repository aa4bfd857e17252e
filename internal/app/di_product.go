package app

import (
	"fmt"
	"sync"

	inboxUsecase "github.com/allisson/ordersaga/internal/inbox/usecase"
	"github.com/allisson/ordersaga/internal/messaging"
	productRepository "github.com/allisson/ordersaga/internal/product/repository"
	productUsecase "github.com/allisson/ordersaga/internal/product/usecase"
)

// productComponents holds the product service's lazily initialized components.
type productComponents struct {
	repo      *productRepository.PostgreSQLProductRepository
	useCase   *productUsecase.Product
	processor *inboxUsecase.Processor

	repoInit      sync.Once
	useCaseInit   sync.Once
	processorInit sync.Once
	consumerInit  sync.Once
}

// ProductRepository returns the product repository instance.
func (c *Container) ProductRepository() (*productRepository.PostgreSQLProductRepository, error) {
	c.product.repoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["productRepo"] = fmt.Errorf("failed to get database for product repository: %w", err)
			return
		}
		c.product.repo = productRepository.NewPostgreSQLProductRepository(db)
	})
	if err, exists := c.initErrors["productRepo"]; exists {
		return nil, err
	}
	return c.product.repo, nil
}

// ProductUseCase returns the product use case instance.
func (c *Container) ProductUseCase() (*productUsecase.Product, error) {
	c.product.useCaseInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.initErrors["productUseCase"] = err
			return
		}
		productRepo, err := c.ProductRepository()
		if err != nil {
			c.initErrors["productUseCase"] = err
			return
		}
		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			c.initErrors["productUseCase"] = err
			return
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			c.initErrors["productUseCase"] = err
			return
		}

		c.product.useCase = productUsecase.NewProduct(
			txManager,
			productRepo,
			outboxRepo,
			productUsecase.Topics{
				ReservationResponse: c.config.TopicReservationResponse,
			},
			businessMetrics,
			c.Logger(),
		)
	})
	if err, exists := c.initErrors["productUseCase"]; exists {
		return nil, err
	}
	return c.product.useCase, nil
}

// ProductProcessor returns the inbox processor applying reservation requests
// to product stock.
func (c *Container) ProductProcessor() (*inboxUsecase.Processor, error) {
	c.product.processorInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.initErrors["productProcessor"] = err
			return
		}
		inboxRepo, err := c.InboxRepository()
		if err != nil {
			c.initErrors["productProcessor"] = err
			return
		}
		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			c.initErrors["productProcessor"] = err
			return
		}
		productUseCase, err := c.ProductUseCase()
		if err != nil {
			c.initErrors["productProcessor"] = err
			return
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			c.initErrors["productProcessor"] = err
			return
		}

		c.product.processor = inboxUsecase.NewProcessor(
			c.processorConfig(),
			txManager,
			inboxRepo,
			outboxRepo,
			productUsecase.NewSagaHandler(productUseCase),
			productUsecase.ResponseTypes,
			businessMetrics,
			c.Logger(),
		)
	})
	if err, exists := c.initErrors["productProcessor"]; exists {
		return nil, err
	}
	return c.product.processor, nil
}

// ProductConsumer returns the Kafka consumer feeding the product service inbox
// from the reservation request topic.
func (c *Container) ProductConsumer() (*messaging.Consumer, error) {
	c.product.consumerInit.Do(func() {
		processor, err := c.ProductProcessor()
		if err != nil {
			c.initErrors["productConsumer"] = err
			return
		}

		consumer, err := messaging.NewConsumer(
			c.config.KafkaBrokers,
			c.config.ConsumerGroup("product"),
			[]string{c.config.TopicReservationRequest},
			processor,
			c.Logger(),
		)
		if err != nil {
			c.initErrors["productConsumer"] = fmt.Errorf("failed to create product consumer: %w", err)
			return
		}
		c.consumer = consumer
	})
	if err, exists := c.initErrors["productConsumer"]; exists {
		return nil, err
	}
	return c.consumer, nil
}
