package provider

import (
	"github.com/paycore-next/internal/cache"
	"github.com/paycore-next/internal/config"
	"github.com/paycore-next/internal/constants"
	"github.com/paycore-next/internal/gateway"
	"github.com/paycore-next/internal/gateway/cardgw"
	"github.com/paycore-next/internal/gateway/sandbox"
	"github.com/paycore-next/internal/logger"
	"github.com/paycore-next/internal/models"
	"github.com/paycore-next/internal/queue"
	"github.com/paycore-next/internal/repository"
	"github.com/paycore-next/internal/service"

	"github.com/shopspring/decimal"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	OrderRepo        repository.OrderRepository
	PaymentRepo      repository.PaymentRepository
	CancellationRepo repository.CancellationRepository
	IdempotencyRepo  repository.IdempotencyRepository

	// Gateway
	GatewayAdapter gateway.Adapter

	// Services
	IdempotencyService *service.IdempotencyService
	PaymentService     *service.PaymentService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化网关适配器
	c.initGateway()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.OrderRepo = repository.NewOrderRepository(db)
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.CancellationRepo = repository.NewCancellationRepository(db)
	c.IdempotencyRepo = repository.NewIdempotencyRepository(db)
}

func (c *Container) initGateway() {
	gatewayCfg := c.Config.Payment.Gateway
	switch gatewayCfg.Provider {
	case constants.GatewayProviderCardGW:
		adapter, err := cardgw.New(gatewayCfg.Config)
		if err != nil {
			logger.Errorw("provider_init_gateway_failed", "provider", gatewayCfg.Provider, "error", err)
			panic(err)
		}
		c.GatewayAdapter = adapter
	default:
		c.GatewayAdapter = sandbox.New(gatewayCfg.Config)
	}
}

func (c *Container) initServices() {
	c.IdempotencyService = service.NewIdempotencyService(c.IdempotencyRepo, c.Config.Payment.IdempotencyTTLHours)

	maxAmount := decimal.Zero
	if parsed, err := decimal.NewFromString(c.Config.Payment.MaxAmount); err == nil {
		maxAmount = parsed
	}
	submissionLock := cache.NewSubmissionLock(c.Config.Payment.LockTTLSeconds)
	c.PaymentService = service.NewPaymentService(
		c.OrderRepo,
		c.PaymentRepo,
		c.CancellationRepo,
		c.IdempotencyService,
		submissionLock,
		c.GatewayAdapter,
		c.QueueClient,
		c.Config.Payment.Currency,
		maxAmount,
	)
}
