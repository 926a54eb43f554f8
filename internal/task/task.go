package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	xerrors "SuiCoPilot/internal/errors"
)

// Kind 标识任务类型，处理器按 Kind 分发给对应的 JobHandler。
type Kind string

// Job 是在队列中流转的一次后台写入。
type Job struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt int64           `json:"enqueued_at"`
}

const (
	CodeJobDecode    xerrors.Code = "JOB_DECODE_FAILED"
	CodeJobUnknown   xerrors.Code = "JOB_KIND_UNKNOWN"
	CodeJobPublish   xerrors.Code = "JOB_PUBLISH_FAILED"
	CodeJobExhausted xerrors.Code = "JOB_RETRIES_EXHAUSTED"
)

func init() {
	xerrors.Register(CodeJobDecode, xerrors.Attributes{
		Title:    "Background job failed",
		Message:  "job payload could not be decoded",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
	xerrors.Register(CodeJobUnknown, xerrors.Attributes{
		Title:    "Background job failed",
		Message:  "no handler registered for job kind",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Title:     "Background job failed",
		Message:   "failed to publish job",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{
		Title:    "Background job failed",
		Message:  "job retries exhausted",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// NewJob 序列化 payload 并生成任务 ID。
func NewJob(kind Kind, payload any) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, xerrors.Wrap(CodeJobDecode, err, fmt.Sprintf("序列化 %s 任务失败", kind))
	}
	return &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    data,
		EnqueuedAt: time.Now().Unix(),
	}, nil
}

// Encode 将任务编码为队列消息。
func (j *Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// Decode 解析 payload。
func (j *Job) Decode(dest any) error {
	if err := json.Unmarshal(j.Payload, dest); err != nil {
		return xerrors.Wrap(CodeJobDecode, err, fmt.Sprintf("解析 %s 任务失败", j.Kind), xerrors.WithMetadata("job_id", j.ID))
	}
	return nil
}

// DecodeJob 解析队列消息。
func DecodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, xerrors.Wrap(CodeJobDecode, err, "解析任务消息失败")
	}
	if job.ID == "" || job.Kind == "" {
		return nil, xerrors.New(CodeJobDecode, "任务消息缺少 id 或 kind")
	}
	return &job, nil
}
