package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	xerrors "SuiCoPilot/internal/errors"
)

const (
	recordsFile      = "history.log"
	transactionsFile = "transactions.log"
	profilesFile     = "profiles.log"
)

// FileStore 使用本地 JSON Lines 文件保存数据，适合开发环境与单机部署。
// 所有内容在启动时载入内存，写入以追加方式落盘。
type FileStore struct {
	mu       sync.RWMutex
	dir      string
	records  []Record
	nextID   int64
	txLogs   []TransactionLog
	profiles map[string]Profile
}

// NewFileStore 在 dataDir 下创建或恢复文件存储。
func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	s := &FileStore{dir: dataDir, nextID: 1, profiles: make(map[string]Profile)}
	if err := s.loadFromDisk(); err != nil {
		return nil, err
	}
	return s, nil
}

// AppendRecord 追加一条历史记录并分配自增 ID。
func (s *FileStore) AppendRecord(_ context.Context, record *Record) error {
	if record == nil {
		return xerrors.Validation("history record is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *record
	stored.ID = s.nextID
	if err := s.appendLine(recordsFile, stored); err != nil {
		return err
	}
	s.nextID++
	s.records = append(s.records, stored)
	record.ID = stored.ID
	return nil
}

// ListRecent 实现 Store。
func (s *FileStore) ListRecent(_ context.Context, userID string, kind Kind, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s.mu.RLock()
	var matched []Record
	for _, record := range s.records {
		if record.UserID != userID {
			continue
		}
		if kind != "" && record.Type != kind {
			continue
		}
		matched = append(matched, record)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// AppendTransactionLog 追加一条交易日志。
func (s *FileStore) AppendTransactionLog(_ context.Context, entry *TransactionLog) error {
	if entry == nil {
		return xerrors.Validation("transaction log is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLine(transactionsFile, entry); err != nil {
		return err
	}
	s.txLogs = append(s.txLogs, *entry)
	return nil
}

// ListTransactionLogs 按时间倒序返回用户的交易日志。
func (s *FileStore) ListTransactionLogs(_ context.Context, userID string, limit int) ([]TransactionLog, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []TransactionLog
	for i := len(s.txLogs) - 1; i >= 0 && len(results) < limit; i-- {
		if s.txLogs[i].UserID == userID {
			results = append(results, s.txLogs[i])
		}
	}
	return results, nil
}

// UpsertProfile 以追加方式写入资料，恢复时后写入的覆盖先写入的。
func (s *FileStore) UpsertProfile(_ context.Context, profile Profile) error {
	if strings.TrimSpace(profile.ID) == "" {
		return xerrors.Validation("profile id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLine(profilesFile, profile); err != nil {
		return err
	}
	s.profiles[profile.ID] = profile
	return nil
}

// Profile 实现 Store。
func (s *FileStore) Profile(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "profile not found")
	}
	return &profile, nil
}

// Close 文件按次打开，无需释放资源。
func (s *FileStore) Close() error { return nil }

func (s *FileStore) appendLine(name string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return xerrors.Persistence(err, "序列化记录失败")
	}
	file, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Persistence(err, fmt.Sprintf("打开 %s 失败", name))
	}
	defer file.Close()
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Persistence(err, fmt.Sprintf("写入 %s 失败", name))
	}
	return nil
}

func (s *FileStore) loadFromDisk() error {
	err := scanLines(filepath.Join(s.dir, recordsFile), func(line []byte) {
		var record Record
		if json.Unmarshal(line, &record) != nil {
			return
		}
		s.records = append(s.records, record)
		if record.ID >= s.nextID {
			s.nextID = record.ID + 1
		}
	})
	if err != nil {
		return err
	}
	err = scanLines(filepath.Join(s.dir, transactionsFile), func(line []byte) {
		var entry TransactionLog
		if json.Unmarshal(line, &entry) == nil {
			s.txLogs = append(s.txLogs, entry)
		}
	})
	if err != nil {
		return err
	}
	return scanLines(filepath.Join(s.dir, profilesFile), func(line []byte) {
		var profile Profile
		if json.Unmarshal(line, &profile) == nil && profile.ID != "" {
			s.profiles[profile.ID] = profile
		}
	})
}

// scanLines 逐行读取文件，无法解析的行由回调自行跳过。
func scanLines(path string, fn func(line []byte)) error {
	file, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取 %s 失败: %w", filepath.Base(path), err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		fn(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析 %s 失败: %w", filepath.Base(path), err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
