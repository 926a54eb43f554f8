package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"SuiCoPilot/internal/auth"
	"SuiCoPilot/internal/chat"
	"SuiCoPilot/internal/history"
	"SuiCoPilot/internal/knowledge"
	"SuiCoPilot/internal/observability/metrics"
	"SuiCoPilot/internal/sui"
	"SuiCoPilot/internal/txflow"
	"SuiCoPilot/internal/wallet"
	"SuiCoPilot/pkg/logger"
)

// Chain 是边缘函数直接使用的链网关能力，*sui.Gateway 满足该接口。
type Chain interface {
	WalletInfo(ctx context.Context, address, network string, opts sui.WalletOptions) (*sui.WalletInfo, error)
	Simulate(ctx context.Context, block *sui.TransactionBlock, sender, network string) (*sui.SimulationResult, error)
}

// Networks 列出已配置的网络，*sui.Registry 满足该接口。
type Networks interface {
	Networks() []sui.NetworkInfo
	Default() string
}

// Dependencies 汇总处理请求所需的服务。
type Dependencies struct {
	Auth         *auth.Service
	Assistant    *chat.Assistant
	Catalogue    *knowledge.Catalogue
	Chain        Chain
	Networks     Networks
	Wallets      *wallet.Service
	Transactions *txflow.Registry
	History      *history.Service
}

// Config 配置 HTTP 服务。
type Config struct {
	Address         string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Server 负责暴露 HTTP 接口。
type Server struct {
	cfg    Config
	deps   Dependencies
	logger *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(cfg Config, deps Dependencies) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if deps.Auth == nil {
		deps.Auth = auth.NewServiceWithProvider(auth.ModeDisabled, nil)
	}
	return &Server{cfg: cfg, deps: deps, logger: logger.Named("api")}
}

// Handler 构建路由。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&requestFormatter{logger: s.logger}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))
	r.Use(cors(s.cfg.AllowedOrigins))

	r.Handle("/metrics", metrics.Handler())

	authenticated := s.deps.Auth.Middleware(auth.MiddlewareConfig{})

	r.Route("/functions/v1", func(r chi.Router) {
		r.Use(authenticated)
		r.Post("/ask-ai", s.handleAskAI)
		r.Post("/get-wallet-info", s.handleGetWalletInfo)
		r.Post("/run-transaction-sim", s.handleRunTransactionSim)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/signin", s.handleSignIn)
		r.Post("/auth/signup", s.handleSignUp)

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Post("/auth/signout", s.handleSignOut)
			r.Get("/auth/session", s.handleSession)

			r.Post("/chat/ask", s.handleChatAsk)
			r.Get("/chat/history", s.handleChatHistory)
			r.Post("/code/generate", s.handleGenerateCode)
			r.Post("/ai/test", s.handleAITest)

			r.Get("/concepts", s.handleConcepts)
			r.Get("/concepts/{id}", s.handleConcept)
			r.Get("/snippets", s.handleSnippets)

			r.Get("/wallet", s.handleWallet)
			r.Post("/wallet/connect", s.handleWalletConnect)

			r.Post("/transactions/simulate", s.handleSimulate)
			r.Post("/transactions/execute", s.handleExecute)
			r.Get("/transactions/state", s.handleTransactionState)
			r.Post("/transactions/reset", s.handleTransactionReset)
			r.Get("/transactions/logs", s.handleTransactionLogs)

			r.Get("/networks", s.handleNetworks)
		})
	})
	return r
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP 服务已启动", slog.String("address", s.cfg.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP 服务关闭超时", slog.Any("error", err))
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
