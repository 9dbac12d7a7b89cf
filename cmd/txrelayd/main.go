package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"TxRelay-Chain/internal/api"
	"TxRelay-Chain/internal/config"
	"TxRelay-Chain/internal/observability/alerting"
	"TxRelay-Chain/internal/observability/metrics"
	"TxRelay-Chain/internal/tx"
	"TxRelay-Chain/internal/wallet"
	"TxRelay-Chain/internal/web3/provider"
	"TxRelay-Chain/pkg/logger"
)

// main 是 TxRelay 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("txrelayd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("TXRELAY_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "txrelay.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	var store tx.Store
	switch cfg.Storage.Driver {
	case "", "memory":
		store = tx.NewMemoryStore()
	case "mysql":
		mysqlStore, err := tx.NewMySQLStore(ctx, tx.MySQLConfig{
			DSN:             cfg.Storage.DSN,
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		store = mysqlStore
	default:
		return fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}

	var queue tx.Queue
	switch cfg.Queue.Driver {
	case "", "memory":
		queue = tx.NewMemoryQueue(1024)
	case "redis":
		redisQueue, err := tx.NewRedisQueue(tx.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Queue.Redis.BlockWait) * time.Second,
		})
		if err != nil {
			return err
		}
		queue = redisQueue
	case "rabbitmq":
		rabbitQueue, err := tx.NewRabbitMQQueue(tx.RabbitMQConfig{
			URL:        cfg.Queue.RabbitMQ.URL,
			Queue:      cfg.Queue.RabbitMQ.Queue,
			Prefetch:   cfg.Queue.RabbitMQ.Prefetch,
			Durable:    cfg.Queue.RabbitMQ.Durable,
			AutoDelete: cfg.Queue.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		queue = rabbitQueue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}

	chainRegistry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	web3Client, err := chainRegistry.DefaultClient()
	if err != nil {
		return err
	}

	signer, err := wallet.NewKeyedSignerFromEnv(cfg.Wallet.PrivateKeyEnv)
	if err != nil {
		return err
	}
	logger.L().Info("签名账户已加载", slog.String("address", signer.Address().Hex()))

	relay := tx.NewRelay(web3Client, signer,
		tx.WithPollInterval(cfg.Web3.PollInterval()),
		tx.WithConfirmTimeout(cfg.Web3.ConfirmTimeout()),
	)

	service := tx.NewService(store, queue)
	defer func() {
		_ = service.Close()
	}()

	processorOpts := []tx.ProcessorOption{
		tx.WithWorkerCount(cfg.Queue.Worker),
		tx.WithProcessorLogger(logger.Named("processor")),
	}
	if dispatcher := buildAlertDispatcher(cfg.Alerting); dispatcher != nil {
		processorOpts = append(processorOpts, tx.WithAlertDispatcher(dispatcher))
	}
	processor := tx.NewProcessor(relay, store, queue, processorOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("提交处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Server.MetricsAddr != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddr); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, service,
		api.WithChainLister(chainRegistry),
		api.WithAuthToken(cfg.ResolveAuthToken()),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildAlertDispatcher 根据配置组装 webhook 告警渠道，未配置任何渠道时返回 nil。
func buildAlertDispatcher(cfg config.AlertingConfig) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.DingTalkWebhook != "" {
		notifiers = append(notifiers, &alerting.DingTalkNotifier{
			Sender: &alerting.WebhookSender{URL: cfg.DingTalkWebhook},
		})
	}
	if cfg.SlackWebhook != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{
			Sender:    &alerting.SlackWebhookSender{WebhookSender: alerting.WebhookSender{URL: cfg.SlackWebhook}},
			ChannelID: cfg.SlackChannel,
		})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}
