package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/notify"
)

// maxBodyBytes 限制请求体大小。
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 以 toast 形式输出错误。
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, notify.Status(err), notify.FromError(err))
}

// writeFunctionError 按边缘函数的约定输出 {error}。
func writeFunctionError(w http.ResponseWriter, err error) {
	writeJSON(w, notify.Status(err), map[string]string{"error": notify.FromError(err).Description})
}

func decodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return xerrors.Validation("Request body is required")
		}
		return xerrors.Validation("Invalid request body")
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
