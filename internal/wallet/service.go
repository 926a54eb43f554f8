package wallet

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"SuiCoPilot/internal/auth"
	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/history"
	"SuiCoPilot/internal/notify"
	"SuiCoPilot/internal/sui"
	"SuiCoPilot/pkg/logger"
)

const defaultTTL = 30 * time.Second

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)

// Chain 读取链上钱包数据，*sui.Gateway 满足该接口。
type Chain interface {
	WalletInfo(ctx context.Context, address, network string, opts sui.WalletOptions) (*sui.WalletInfo, error)
}

// Networks 解析网络名称，*sui.Registry 满足该接口。
type Networks interface {
	Resolve(network string) (string, error)
	ExplorerURL(network, path, id string) string
}

// Profiles 保存用户绑定的钱包，*history.Service 满足该接口。
type Profiles interface {
	SaveProfile(ctx context.Context, userID, walletAddress string) (*history.Profile, error)
	Profile(ctx context.Context, userID string) (*history.Profile, error)
}

// Service 负责钱包快照的刷新与缓存。
type Service struct {
	chain    Chain
	networks Networks
	cache    Cache
	profiles Profiles
	ttl      time.Duration
	logger   *slog.Logger
}

// Option 定义 Service 的可选配置。
type Option func(*Service)

// WithCache 替换默认的进程内缓存。
func WithCache(cache Cache) Option {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithTTL 设置快照缓存时间。
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithProfiles 启用钱包绑定的持久化。
func WithProfiles(profiles Profiles) Option {
	return func(s *Service) {
		s.profiles = profiles
	}
}

// NewService 创建 Service。
func NewService(chain Chain, networks Networks, opts ...Option) *Service {
	s := &Service{
		chain:    chain,
		networks: networks,
		cache:    NewMemoryCache(),
		ttl:      defaultTTL,
		logger:   logger.Named("wallet"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Refresh 拉取并整体替换 network 上的快照。链上请求失败时返回空快照与提示，不返回错误。
func (s *Service) Refresh(ctx context.Context, session *auth.Session, network string) (*Result, error) {
	address, network, err := s.target(ctx, session, network)
	if err != nil {
		return nil, err
	}

	info, err := s.chain.WalletInfo(ctx, address, network, sui.WalletOptions{IncludeTransactions: true, IncludeCoinMetadata: true})
	if err != nil {
		if !xerrors.HasCode(err, xerrors.CodeNetwork) {
			return nil, err
		}
		s.logger.Warn("刷新钱包失败",
			slog.String("user_id", session.UserID()),
			slog.String("network", network),
			slog.Any("error", err),
		)
		toast := notify.FromError(err)
		toast.Description = "Failed to fetch wallet information"
		return &Result{Snapshot: Empty(address, network), Toast: &toast}, nil
	}

	snap := fromWalletInfo(info)
	snap.Network = network
	snap.ExplorerURL = s.networks.ExplorerURL(network, "account", address)
	if err := s.cache.Set(ctx, cacheKey(address, network), snap, s.ttl); err != nil {
		s.logger.Warn("写入钱包缓存失败", slog.String("network", network), slog.Any("error", err))
	}
	return &Result{Snapshot: snap}, nil
}

// Current 优先返回缓存中的快照，未命中时刷新。
func (s *Service) Current(ctx context.Context, session *auth.Session, network string) (*Result, error) {
	address, network, err := s.target(ctx, session, network)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	hit, err := s.cache.Get(ctx, cacheKey(address, network), &snap)
	if err != nil {
		s.logger.Warn("读取钱包缓存失败", slog.String("network", network), slog.Any("error", err))
	}
	if hit {
		return &Result{Snapshot: snap, Cached: true}, nil
	}
	return s.Refresh(ctx, session.WithWallet(address, network), network)
}

// Connect 绑定钱包地址并刷新快照。
func (s *Service) Connect(ctx context.Context, session *auth.Session, address, network string) (*Result, error) {
	if session == nil {
		return nil, auth.ErrMissingToken
	}
	address = strings.TrimSpace(address)
	if !addressPattern.MatchString(address) {
		return nil, xerrors.Validation("Invalid Sui wallet address")
	}
	resolved, err := s.networks.Resolve(network)
	if err != nil {
		return nil, err
	}
	if s.profiles != nil {
		if _, err := s.profiles.SaveProfile(ctx, session.UserID(), address); err != nil {
			return nil, err
		}
	}
	return s.Refresh(ctx, session.WithWallet(address, resolved), resolved)
}

// target 确定地址与网络：地址取自会话，其次取自已保存的资料；网络为空时沿用会话或默认网络。
func (s *Service) target(ctx context.Context, session *auth.Session, network string) (string, string, error) {
	if session == nil {
		return "", "", auth.ErrMissingToken
	}
	address := strings.TrimSpace(session.Wallet.Address)
	if address == "" && s.profiles != nil {
		profile, err := s.profiles.Profile(ctx, session.UserID())
		if err != nil && !xerrors.HasCode(err, xerrors.CodeNotFound) {
			return "", "", err
		}
		if profile != nil {
			address = profile.WalletAddress
		}
	}
	if address == "" {
		return "", "", xerrors.Validation("Wallet address is required")
	}
	if strings.TrimSpace(network) == "" {
		network = session.Wallet.Network
	}
	resolved, err := s.networks.Resolve(network)
	if err != nil {
		return "", "", err
	}
	return address, resolved, nil
}

func cacheKey(address, network string) string {
	return "wallet:" + network + ":" + strings.ToLower(address)
}
