package sui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "SuiCoPilot/internal/errors"
)

// SignRequest is what a signer receives: the exact bytes that were dry-run
// plus the serialized block for display.
type SignRequest struct {
	TxBytes     string          `json:"txBytes"`
	Sender      string          `json:"sender"`
	Network     string          `json:"network"`
	Transaction json.RawMessage `json:"transaction"`
}

// Signer signs and submits a transaction on behalf of the wallet owner.
type Signer interface {
	SignAndExecute(ctx context.Context, req SignRequest) (*ExecutionResult, error)
}

// SignerConfig locates the wallet bridge.
type SignerConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// RemoteSigner forwards sign requests to a wallet bridge over HTTP.
type RemoteSigner struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewRemoteSigner creates a bridge client. The bridge must expose
// POST /sign-and-execute.
func NewRemoteSigner(cfg SignerConfig) (*RemoteSigner, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("未配置钱包签名服务地址")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteSigner{
		endpoint:   base + "/sign-and-execute",
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// SignAndExecute posts req to the bridge and returns the transaction digest.
func (s *RemoteSigner) SignAndExecute(ctx context.Context, req SignRequest) (*ExecutionResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化签名请求失败: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("构建签名请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, xerrors.Network(err, "调用钱包签名服务失败")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, xerrors.Network(err, "读取签名服务响应失败")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return nil, xerrors.Network(fmt.Errorf("status %d: %s", resp.StatusCode, msg), "钱包签名服务返回错误")
	}

	var out ExecutionResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, xerrors.Network(err, "解析签名服务响应失败")
	}
	if strings.TrimSpace(out.Digest) == "" {
		return nil, xerrors.Network(errors.New("empty digest"), "签名服务未返回交易摘要")
	}
	return &out, nil
}
