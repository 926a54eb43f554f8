package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 为错误码提供默认行为。Title 是展示给终端用户的提示标题。
type Attributes struct {
	Title     string
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeValidation            Code = "VALIDATION"
	CodeUpstream              Code = "UPSTREAM"
	CodeNetwork               Code = "NETWORK"
	CodePersistence           Code = "PERSISTENCE"
	CodeUnauthenticated       Code = "UNAUTHENTICATED"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeTimeout               Code = "TIMEOUT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown: {
			Title:    "Unexpected error",
			Message:  "unknown error",
			Severity: SeverityCritical,
			Alert:    true,
		},
		// 用户输入不合法，在发出任何外部请求之前被拦截。
		CodeValidation: {
			Title:    "Invalid input",
			Message:  "invalid input",
			Severity: SeverityInfo,
		},
		// AI 补全服务调用失败，不自动重试。
		CodeUpstream: {
			Title:    "AI request failed",
			Message:  "completion service failure",
			Severity: SeverityWarning,
		},
		// 链上 RPC、预执行或签名失败，不自动重试。
		CodeNetwork: {
			Title:    "Network error",
			Message:  "chain gateway failure",
			Severity: SeverityWarning,
		},
		// 历史写入失败，仅记录日志，不影响调用方。
		CodePersistence: {
			Title:     "History not saved",
			Message:   "persistence failure",
			Severity:  SeverityWarning,
			Retryable: true,
			Alert:     true,
		},
		CodeUnauthenticated: {
			Title:    "Authentication required",
			Message:  "unauthenticated",
			Severity: SeverityInfo,
		},
		CodeNotFound: {
			Title:    "Not found",
			Message:  "resource not found",
			Severity: SeverityInfo,
		},
		CodeConflict: {
			Title:    "Action in progress",
			Message:  "resource conflict",
			Severity: SeverityInfo,
		},
		CodeTimeout: {
			Title:    "Request timed out",
			Message:  "operation timed out",
			Severity: SeverityWarning,
		},
		CodeInitializationFailure: {
			Title:     "Service unavailable",
			Message:   "service not initialized",
			Severity:  SeverityWarning,
			Retryable: true,
			Alert:     true,
		},
		CodeQueueFailure: {
			Title:     "Service unavailable",
			Message:   "queue failure",
			Severity:  SeverityCritical,
			Retryable: true,
			Alert:     true,
		},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。attrs 在创建时从注册表复制，选项只修改这份副本。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	attrs    Attributes
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息，例如 user_id 或 network。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithRetryable 覆盖错误码默认的重试策略。
func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.attrs.Retryable = retryable }
}

// WithAlert 覆盖错误码默认的告警策略。
func WithAlert(alert bool) Option {
	return func(e *Error) { e.attrs.Alert = alert }
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) { e.attrs.Severity = sev }
}

// New 创建错误，message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	e := &Error{code: code, attrs: AttributesOf(code)}
	e.message = message
	if e.message == "" {
		e.message = e.attrs.Message
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在 cause 外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Validation 构造输入校验错误。
func Validation(message string, opts ...Option) *Error {
	return New(CodeValidation, message, opts...)
}

// Upstream 包装 AI 补全服务的失败。
func Upstream(cause error, message string, opts ...Option) *Error {
	return Wrap(CodeUpstream, cause, message, opts...)
}

// Network 包装链上网关的失败。
func Network(cause error, message string, opts ...Option) *Error {
	return Wrap(CodeNetwork, cause, message, opts...)
}

// Persistence 包装存储层的失败。
func Persistence(cause error, message string, opts ...Option) *Error {
	return Wrap(CodePersistence, cause, message, opts...)
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return fmt.Sprintf("[%s] %s", e.code, e.message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 让 errors.Is 按错误码匹配。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// Code 返回错误码，nil 视为 UNKNOWN。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回面向用户的描述，不含 cause。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

func (e *Error) Retryable() bool { return e != nil && e.attrs.Retryable }
func (e *Error) ShouldAlert() bool { return e != nil && e.attrs.Alert }

func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	return e.attrs.Severity
}

// From 在错误链上查找 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误链上第一个错误码，普通 error 视为 UNKNOWN。
func CodeOf(err error) Code {
	e, _ := From(err)
	return e.Code()
}

// HasCode 判断错误链上是否带有指定错误码。
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// RetryableError 判断任意 error 是否可重试，普通 error 不重试。
func RetryableError(err error) bool {
	e, _ := From(err)
	return e.Retryable()
}

// ShouldAlert 判断任意 error 是否需要告警。
func ShouldAlert(err error) bool {
	e, _ := From(err)
	return e.ShouldAlert()
}

// SeverityOf 返回错误严重程度，普通 error 按 UNKNOWN 处理。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
