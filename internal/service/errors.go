package service

import (
	"errors"
	"fmt"
)

var (
	// ErrDraftNotFound 在指定草稿不存在时返回。
	ErrDraftNotFound = errors.New("draft not found")
	// ErrListingNotFound 在指定刊登不存在时返回。
	ErrListingNotFound = errors.New("listing not found")
	// ErrForbidden 在调用者不是资源属主时返回。
	ErrForbidden = errors.New("caller does not own this resource")
	// ErrValidation 在输入不合法时返回，调用方修正后可重试。
	ErrValidation = errors.New("invalid input")
	// ErrInvalidPhase 在操作与草稿当前阶段不匹配时返回，客户端应重新拉取草稿状态。
	ErrInvalidPhase = errors.New("operation not allowed in current phase")
	// ErrNotReady 在读取尚未生成的数据时返回。
	ErrNotReady = errors.New("requested data not generated yet")
	// ErrConflict 在重复推进已完成的阶段时返回，调用方应视为已完成并拉取现状。
	ErrConflict = errors.New("phase already advanced")
	// ErrUpstream 在外部生成服务失败时返回，草稿阶段保持不变，可安全重试。
	ErrUpstream = errors.New("upstream generator failed")
)

// PhaseError 携带草稿当前阶段，便于客户端重新同步后从正确阶段重放。
type PhaseError struct {
	// Kind 为 ErrInvalidPhase、ErrNotReady 或 ErrConflict 之一。
	Kind  error
	Phase string
}

// Error 实现 error 接口。
func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s (current phase: %s)", e.Kind.Error(), e.Phase)
}

// Unwrap 让 errors.Is 能匹配到对应的哨兵错误。
func (e *PhaseError) Unwrap() error {
	return e.Kind
}

func invalidPhase(phase string) error {
	return &PhaseError{Kind: ErrInvalidPhase, Phase: phase}
}

func notReady(phase string) error {
	return &PhaseError{Kind: ErrNotReady, Phase: phase}
}

func conflict(phase string) error {
	return &PhaseError{Kind: ErrConflict, Phase: phase}
}

// CurrentPhase 提取错误中携带的草稿阶段，无法提取时返回空串。
func CurrentPhase(err error) string {
	var phaseErr *PhaseError
	if errors.As(err, &phaseErr) {
		return phaseErr.Phase
	}
	return ""
}
