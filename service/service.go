package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gorm.io/gorm"

	"github.com/velohost/velohub/actions"
	"github.com/velohost/velohub/catalog"
	"github.com/velohost/velohub/config"
	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/db/migrations"
	"github.com/velohost/velohub/events"
	"github.com/velohost/velohub/gateway"
	"github.com/velohost/velohub/logger"
	"github.com/velohost/velohub/notify"
	"github.com/velohost/velohub/orders"
	"github.com/velohost/velohub/provider"
	"github.com/velohost/velohub/provider/manual"
	"github.com/velohost/velohub/provider/rackvm"
	"github.com/velohost/velohub/provider/skyvirt"
	"github.com/velohost/velohub/provisioning"
	"github.com/velohost/velohub/reconcile"
	"github.com/velohost/velohub/renewal"
)

type Service interface {
	GetConfig() *config.AppConfig
	GetDB() *gorm.DB
	GetEventPublisher() events.EventPublisher
	GetOrdersService() orders.OrdersService
	GetActionsService() actions.ActionsService
	GetRenewalService() renewal.RenewalService
	GetReconcileService() *reconcile.Service
	GetOrchestrator() *provisioning.Orchestrator
	GetBatchRunner() *provisioning.BatchRunner
	GetGatewayChain() *gateway.Chain
	Shutdown()
}

type service struct {
	cfg *config.AppConfig

	db             *gorm.DB
	eventPublisher events.EventPublisher
	ordersSvc      orders.OrdersService
	actionsSvc     actions.ActionsService
	renewalSvc     renewal.RenewalService
	reconcileSvc   *reconcile.Service
	orchestrator   *provisioning.Orchestrator
	batchRunner    *provisioning.BatchRunner
	gatewayChain   *gateway.Chain
	pool           *provider.Pool
	notifier       notify.Notifier
	ctx            context.Context
}

func NewService(ctx context.Context) (*service, error) {
	// load config from environment variables / .env file
	godotenv.Load(".env")
	appConfig := &config.AppConfig{}
	err := envconfig.Process("", appConfig)
	if err != nil {
		return nil, err
	}

	logger.Init(appConfig.LogLevel)
	logger.Logger.Info().Msg("Starting " + constants.APP_IDENTIFIER)

	if appConfig.Workdir == "" {
		appConfig.Workdir = filepath.Join(xdg.DataHome, constants.APP_IDENTIFIER)
		logger.Logger.Info().Str("workdir", appConfig.Workdir).Msg("No workdir specified, using default")
	}
	os.MkdirAll(appConfig.Workdir, os.ModePerm)

	if appConfig.LogToFile {
		err = logger.AddFileLogger(appConfig.Workdir)
		if err != nil {
			return nil, err
		}
	}

	// if DATABASE_URI only contains a filename, prepend the workdir
	if !strings.HasPrefix(appConfig.DatabaseUri, "file:") {
		databasePath, _ := filepath.Split(appConfig.DatabaseUri)
		if databasePath == "" {
			appConfig.DatabaseUri = filepath.Join(appConfig.Workdir, appConfig.DatabaseUri)
		}
	}

	gormDB, err := db.NewDB(appConfig.DatabaseUri, appConfig.LogDBQueries)
	if err != nil {
		return nil, err
	}
	if err := migrations.Migrate(gormDB); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to migrate database")
		return nil, err
	}

	eventPublisher := events.NewEventPublisher()

	pool := provider.NewPool(
		skyvirt.NewSkyvirtClient(appConfig.SkyvirtApiUrl, appConfig.SkyvirtApiKey, appConfig.ProviderApiTimeout),
		rackvm.NewRackvmClient(appConfig.RackvmApiUrl, appConfig.RackvmApiKey, appConfig.RackvmApiPass, appConfig.ProviderApiTimeout),
		manual.NewManualClient(),
	)

	gatewayChain := gateway.NewChain(
		gateway.NewFlashpayGateway(appConfig.FlashpayKeyId, appConfig.FlashpayKeySecret, appConfig.FlashpayWebhookSecret),
		gateway.NewPaymintGateway(appConfig.PaymintAppId, appConfig.PaymintSecretKey),
		gateway.NewUpilinkGateway(appConfig.UpilinkMerchantId, appConfig.UpilinkApiToken),
	)

	var catalogSvc catalog.Service
	if appConfig.CatalogApiUrl != "" {
		catalogSvc = catalog.NewHTTPCatalog(appConfig.CatalogApiUrl)
	}

	var notifier notify.Notifier = notify.NoopNotifier{}
	if appConfig.NotifyHookUrl != "" {
		notifier = notify.NewWebhookNotifier(appConfig.NotifyHookUrl)
	}

	ordersSvc := orders.NewOrdersService(gormDB, eventPublisher, catalogSvc)
	orchestrator := provisioning.NewOrchestrator(gormDB, pool, ordersSvc, eventPublisher)
	batchRunner := provisioning.NewBatchRunner(gormDB, orchestrator)
	renewalSvc := renewal.NewRenewalService(gormDB, pool, eventPublisher)
	reconcileSvc := reconcile.NewService(gormDB, gatewayChain, pool, renewalSvc)
	actionsSvc := actions.NewActionsService(gormDB, eventPublisher)

	svc := &service{
		cfg:            appConfig,
		ctx:            ctx,
		db:             gormDB,
		eventPublisher: eventPublisher,
		ordersSvc:      ordersSvc,
		actionsSvc:     actionsSvc,
		renewalSvc:     renewalSvc,
		reconcileSvc:   reconcileSvc,
		orchestrator:   orchestrator,
		batchRunner:    batchRunner,
		gatewayChain:   gatewayChain,
		pool:           pool,
		notifier:       notifier,
	}

	eventPublisher.RegisterSubscriber(&notificationConsumer{
		db:       gormDB,
		notifier: notifier,
	})

	return svc, nil
}

func (svc *service) GetConfig() *config.AppConfig {
	return svc.cfg
}

func (svc *service) GetDB() *gorm.DB {
	return svc.db
}

func (svc *service) GetEventPublisher() events.EventPublisher {
	return svc.eventPublisher
}

func (svc *service) GetOrdersService() orders.OrdersService {
	return svc.ordersSvc
}

func (svc *service) GetActionsService() actions.ActionsService {
	return svc.actionsSvc
}

func (svc *service) GetRenewalService() renewal.RenewalService {
	return svc.renewalSvc
}

func (svc *service) GetReconcileService() *reconcile.Service {
	return svc.reconcileSvc
}

func (svc *service) GetOrchestrator() *provisioning.Orchestrator {
	return svc.orchestrator
}

func (svc *service) GetBatchRunner() *provisioning.BatchRunner {
	return svc.batchRunner
}

func (svc *service) GetGatewayChain() *gateway.Chain {
	return svc.gatewayChain
}

func (svc *service) Shutdown() {
	sqlDB, err := svc.db.DB()
	if err == nil {
		sqlDB.Close()
	}
	logger.Logger.Info().Msg("Service shut down")
}
