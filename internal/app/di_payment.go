package app

import (
	"fmt"
	"sync"

	inboxUsecase "github.com/allisson/ordersaga/internal/inbox/usecase"
	"github.com/allisson/ordersaga/internal/messaging"
	paymentRepository "github.com/allisson/ordersaga/internal/payment/repository"
	paymentUsecase "github.com/allisson/ordersaga/internal/payment/usecase"
)

// paymentComponents holds the payment service's lazily initialized components.
type paymentComponents struct {
	repo      *paymentRepository.PostgreSQLPaymentRepository
	useCase   *paymentUsecase.Payment
	processor *inboxUsecase.Processor

	repoInit      sync.Once
	useCaseInit   sync.Once
	processorInit sync.Once
	consumerInit  sync.Once
}

// PaymentRepository returns the payment repository instance.
func (c *Container) PaymentRepository() (*paymentRepository.PostgreSQLPaymentRepository, error) {
	c.payment.repoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["paymentRepo"] = fmt.Errorf("failed to get database for payment repository: %w", err)
			return
		}
		c.payment.repo = paymentRepository.NewPostgreSQLPaymentRepository(db)
	})
	if err, exists := c.initErrors["paymentRepo"]; exists {
		return nil, err
	}
	return c.payment.repo, nil
}

// PaymentUseCase returns the payment use case instance.
func (c *Container) PaymentUseCase() (*paymentUsecase.Payment, error) {
	c.payment.useCaseInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.initErrors["paymentUseCase"] = err
			return
		}
		paymentRepo, err := c.PaymentRepository()
		if err != nil {
			c.initErrors["paymentUseCase"] = err
			return
		}
		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			c.initErrors["paymentUseCase"] = err
			return
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			c.initErrors["paymentUseCase"] = err
			return
		}

		c.payment.useCase = paymentUsecase.NewPayment(
			txManager,
			paymentRepo,
			outboxRepo,
			paymentUsecase.Topics{
				PaymentResponse: c.config.TopicPaymentResponse,
			},
			businessMetrics,
			c.Logger(),
		)
	})
	if err, exists := c.initErrors["paymentUseCase"]; exists {
		return nil, err
	}
	return c.payment.useCase, nil
}

// PaymentProcessor returns the inbox processor charging and refunding customer
// credit from payment requests.
func (c *Container) PaymentProcessor() (*inboxUsecase.Processor, error) {
	c.payment.processorInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.initErrors["paymentProcessor"] = err
			return
		}
		inboxRepo, err := c.InboxRepository()
		if err != nil {
			c.initErrors["paymentProcessor"] = err
			return
		}
		outboxRepo, err := c.OutboxRepository()
		if err != nil {
			c.initErrors["paymentProcessor"] = err
			return
		}
		paymentUseCase, err := c.PaymentUseCase()
		if err != nil {
			c.initErrors["paymentProcessor"] = err
			return
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			c.initErrors["paymentProcessor"] = err
			return
		}

		c.payment.processor = inboxUsecase.NewProcessor(
			c.processorConfig(),
			txManager,
			inboxRepo,
			outboxRepo,
			paymentUsecase.NewSagaHandler(paymentUseCase),
			paymentUsecase.ResponseTypes,
			businessMetrics,
			c.Logger(),
		)
	})
	if err, exists := c.initErrors["paymentProcessor"]; exists {
		return nil, err
	}
	return c.payment.processor, nil
}

// PaymentConsumer returns the Kafka consumer feeding the payment service inbox
// from the payment request topic.
func (c *Container) PaymentConsumer() (*messaging.Consumer, error) {
	c.payment.consumerInit.Do(func() {
		processor, err := c.PaymentProcessor()
		if err != nil {
			c.initErrors["paymentConsumer"] = err
			return
		}

		consumer, err := messaging.NewConsumer(
			c.config.KafkaBrokers,
			c.config.ConsumerGroup("payment"),
			[]string{c.config.TopicPaymentRequest},
			processor,
			c.Logger(),
		)
		if err != nil {
			c.initErrors["paymentConsumer"] = fmt.Errorf("failed to create payment consumer: %w", err)
			return
		}
		c.consumer = consumer
	})
	if err, exists := c.initErrors["paymentConsumer"]; exists {
		return nil, err
	}
	return c.consumer, nil
}
