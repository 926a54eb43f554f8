package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"SuiCoPilot/internal/chat"
	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/llm"
	"SuiCoPilot/internal/sui"
)

type askAIResponse struct {
	Response string      `json:"response"`
	Tokens   llm.Usage   `json:"tokens"`
	Stats    *chat.Stats `json:"stats,omitempty"`
}

func (s *Server) handleAskAI(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		writeFunctionError(w, xerrors.New(xerrors.CodeInitializationFailure, "AI service is not configured"))
		return
	}
	var req chat.CompletionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFunctionError(w, err)
		return
	}
	completion, err := s.deps.Assistant.Complete(r.Context(), req)
	if err != nil {
		writeFunctionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, askAIResponse{
		Response: completion.Response,
		Tokens:   completion.Tokens,
		Stats:    &completion.Stats,
	})
}

type walletInfoRequest struct {
	WalletAddress       string `json:"walletAddress"`
	Network             string `json:"network"`
	IncludeTransactions bool   `json:"includeTransactions"`
}

type walletInfoResponse struct {
	Balance      sui.Balance              `json:"balance"`
	Objects      []sui.OwnedObject        `json:"objects"`
	Transactions []sui.TransactionSummary `json:"transactions,omitempty"`
	Network      string                   `json:"network"`
	CoinMetadata *sui.CoinMetadata        `json:"coinMetadata,omitempty"`
}

func (s *Server) handleGetWalletInfo(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chain == nil {
		writeFunctionError(w, xerrors.New(xerrors.CodeInitializationFailure, "Chain gateway is not configured"))
		return
	}
	var req walletInfoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFunctionError(w, err)
		return
	}
	if strings.TrimSpace(req.WalletAddress) == "" {
		writeFunctionError(w, xerrors.Validation("Wallet address is required"))
		return
	}
	info, err := s.deps.Chain.WalletInfo(r.Context(), req.WalletAddress, req.Network, sui.WalletOptions{
		IncludeTransactions: req.IncludeTransactions,
		IncludeCoinMetadata: true,
	})
	if err != nil {
		writeFunctionError(w, err)
		return
	}
	objects := info.Objects
	if objects == nil {
		objects = []sui.OwnedObject{}
	}
	writeJSON(w, http.StatusOK, walletInfoResponse{
		Balance:      info.Balance,
		Objects:      objects,
		Transactions: info.Transactions,
		Network:      info.Network,
		CoinMetadata: info.CoinMetadata,
	})
}

type transactionSimRequest struct {
	TXB     json.RawMessage `json:"txb"`
	Sender  string          `json:"sender"`
	Network string          `json:"network"`
}

func (s *Server) handleRunTransactionSim(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chain == nil {
		writeFunctionError(w, xerrors.New(xerrors.CodeInitializationFailure, "Chain gateway is not configured"))
		return
	}
	var req transactionSimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFunctionError(w, err)
		return
	}
	block, err := parseBlock(req.TXB)
	if err != nil {
		writeFunctionError(w, err)
		return
	}
	result, err := s.deps.Chain.Simulate(r.Context(), block, req.Sender, req.Network)
	if err != nil {
		writeFunctionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseBlock 接受 JSON 对象，或包含序列化结果的 JSON 字符串。
func parseBlock(raw json.RawMessage) (*sui.TransactionBlock, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, xerrors.Validation("Transaction block data and sender address are required")
	}
	if raw[0] == '"' {
		var serialized string
		if err := json.Unmarshal(raw, &serialized); err != nil {
			return nil, xerrors.Validation("Invalid transaction block")
		}
		raw = []byte(serialized)
	}
	return sui.ParseTransactionBlock(raw)
}
