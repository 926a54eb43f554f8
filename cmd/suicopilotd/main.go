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
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"SuiCoPilot/internal/api"
	"SuiCoPilot/internal/auth"
	"SuiCoPilot/internal/chat"
	"SuiCoPilot/internal/config"
	"SuiCoPilot/internal/history"
	"SuiCoPilot/internal/knowledge"
	"SuiCoPilot/internal/llm"
	"SuiCoPilot/internal/llm/gemini"
	"SuiCoPilot/internal/llm/openai"
	"SuiCoPilot/internal/observability/alerting"
	"SuiCoPilot/internal/storage/mysql"
	"SuiCoPilot/internal/storage/redis"
	"SuiCoPilot/internal/storage/sqlite"
	"SuiCoPilot/internal/sui"
	"SuiCoPilot/internal/task"
	"SuiCoPilot/internal/txflow"
	"SuiCoPilot/internal/wallet"
	"SuiCoPilot/pkg/logger"
)

// main 是 SuiCoPilot 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("suicopilotd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	if err := config.LoadEnv(".env", ".env.local"); err != nil {
		return err
	}
	configPath := os.Getenv("SUICOPILOT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "suicopilot.json")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Rotation: logger.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		},
		Audit: logger.AuditConfig{Enabled: cfg.Logging.AuditPath != "", Path: cfg.Logging.AuditPath},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.WebhookURL})
	}
	alerts := alerting.NewFanout(notifiers...)

	historyStore, userStore, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}

	queue, err := openQueue(ctx, cfg)
	if err != nil {
		_ = historyStore.Close()
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.L().Warn("关闭任务队列失败", slog.Any("error", err))
		}
	}()

	processor := task.NewProcessor(queue, queue,
		task.WithWorkerCount(cfg.Queue.Worker),
		task.WithMaxAttempts(cfg.Queue.MaxAttempts),
		task.WithAlertDispatcher(alerts),
		task.WithProcessorLogger(logger.Named("task")),
	)
	historySvc := history.NewService(historyStore,
		history.WithQueue(processor),
		history.WithAlertDispatcher(alerts),
	)
	defer historySvc.Close()

	authSvc, err := auth.NewService(ctx, authConfig(cfg), userStore)
	if err != nil {
		return err
	}

	llmClient, err := createLLMClient(ctx, cfg)
	if err != nil {
		return err
	}

	catalogue, err := knowledge.Load(cfg.Knowledge.Source, cfg.Knowledge.MaxResults)
	if err != nil {
		return err
	}

	defs, err := sui.LoadNetworkDefinitions(cfg.Sui.NetworksFile)
	if err != nil {
		return err
	}
	if cfg.Sui.DefaultNetwork != "" {
		defs.Default = cfg.Sui.DefaultNetwork
	}
	registry := sui.NewRegistry(defs)
	defer registry.Close()
	gateway := sui.NewGateway(registry, sui.WithGasBudget(cfg.Sui.GasBudget))

	var signer sui.Signer
	if cfg.Sui.Signer.URL != "" {
		remote, err := sui.NewRemoteSigner(sui.SignerConfig{
			URL:     cfg.Sui.Signer.URL,
			Token:   cfg.Sui.Signer.Token,
			Timeout: time.Duration(cfg.Sui.Signer.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		signer = remote
	} else {
		logger.L().Warn("未配置钱包签名服务，交易只能预执行")
	}

	walletOpts := []wallet.Option{
		wallet.WithProfiles(historySvc),
		wallet.WithTTL(time.Duration(cfg.Cache.WalletTTLSeconds) * time.Second),
	}
	if cfg.Cache.Redis.Address != "" {
		cache, err := redis.New(ctx, redis.Config{
			Address:  cfg.Cache.Redis.Address,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer cache.Close()
		walletOpts = append(walletOpts, wallet.WithCache(cache))
	}
	wallets := wallet.NewService(gateway, registry, walletOpts...)

	assistant := chat.New(llmClient,
		chat.WithRecorder(historySvc),
		chat.WithKnowledgeProvider(catalogue),
		chat.WithWalletSource(wallets),
		chat.WithHistoryDepth(cfg.LLM.HistoryDepth),
		chat.WithLLMTimeout(cfg.LLM.Timeout()),
		chat.WithDefaults(cfg.LLM.MaxTokens, cfg.LLM.Temperature),
	)

	server := api.NewServer(api.Config{
		Address:         cfg.Server.Address,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout(),
	}, api.Dependencies{
		Auth:         authSvc,
		Assistant:    assistant,
		Catalogue:    catalogue,
		Chain:        gateway,
		Networks:     registry,
		Wallets:      wallets,
		Transactions: txflow.NewRegistry(gateway, signer, historySvc),
		History:      historySvc,
	})

	logger.L().Info("suicopilotd 启动",
		slog.String("address", cfg.Server.Address),
		slog.String("auth", string(authSvc.Mode())),
		slog.String("llm", cfg.LLM.Provider),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("queue", cfg.Queue.Driver),
		slog.String("network", registry.Default()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(processor.Start(gctx)) })
	g.Go(func() error { return ignoreCanceled(server.Start(gctx)) })
	return g.Wait()
}

// openStores 按配置创建历史存储与账号存储，二者共享同一个数据库连接。
func openStores(ctx context.Context, cfg *config.Config) (history.Store, auth.UserStore, error) {
	switch cfg.Storage.Driver {
	case "memory", "":
		store, err := history.NewFileStore(cfg.Runtime.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return store, auth.NewMemoryStore(), nil
	case "mysql":
		db, err := mysql.Open(ctx, mysql.Config{
			DSN:             cfg.Storage.DSN,
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return mysql.NewHistoryRepository(db), mysql.NewUserStore(db), nil
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}
}

func openQueue(ctx context.Context, cfg *config.Config) (task.Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return task.NewMemoryQueue(1024), nil
	case "redis":
		return task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.Queue.Redis.Address,
			Password:  cfg.Queue.Redis.Password,
			DB:        cfg.Queue.Redis.DB,
			Queue:     cfg.Queue.Redis.Queue,
			BlockWait: time.Duration(cfg.Queue.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        cfg.Queue.RabbitMQ.URL,
			Queue:      cfg.Queue.RabbitMQ.Queue,
			Prefetch:   cfg.Queue.RabbitMQ.Prefetch,
			Durable:    cfg.Queue.RabbitMQ.Durable,
			AutoDelete: cfg.Queue.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
}

func authConfig(cfg *config.Config) auth.Config {
	seeds := make([]auth.Credentials, 0, len(cfg.Auth.Seeds))
	for _, seed := range cfg.Auth.Seeds {
		seeds = append(seeds, auth.Credentials{Email: seed.Email, Password: seed.Password})
	}
	return auth.Config{
		Mode:            auth.Mode(cfg.Auth.Mode),
		JWTSecret:       cfg.Auth.JWTSecret,
		Issuer:          cfg.Auth.Issuer,
		AccessTTL:       time.Duration(cfg.Auth.AccessTTLSeconds) * time.Second,
		SupabaseURL:     cfg.Auth.SupabaseURL,
		SupabaseAnonKey: cfg.Auth.SupabaseAnonKey,
		Timeout:         30 * time.Second,
		Seeds:           seeds,
	}
}

// createLLMClient 根据配置创建大模型客户端，并包装指标与日志。
func createLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	switch provider {
	case "openai":
		client, err := openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: cfg.LLM.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		return llm.Instrument(provider, client), nil
	case "gemini":
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey: cfg.LLM.Gemini.APIKey,
			Model:  cfg.LLM.Gemini.Model,
		})
		if err != nil {
			return nil, err
		}
		return llm.Instrument(provider, client), nil
	default:
		return nil, fmt.Errorf("未知的大模型提供方: %s", cfg.LLM.Provider)
	}
}

func ignoreCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
