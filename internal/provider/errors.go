package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind 是对外暴露的错误分类。
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindUnknownProvider ErrorKind = "unknown_provider"
	KindProviderAuth    ErrorKind = "provider_auth"
	KindRateLimit       ErrorKind = "rate_limit"
	KindUpstream        ErrorKind = "upstream"
	KindUnknown         ErrorKind = "unknown"
)

// Error 携带分类、来源后端与上游状态码，HTTP 层据此渲染响应。
type Error struct {
	Kind           ErrorKind `json:"kind"`
	Message        string    `json:"message"`
	Provider       ID        `json:"provider,omitempty"`
	UpstreamStatus int       `json:"upstreamStatus,omitempty"`
	cause          error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus 将错误分类映射为 HTTP 状态码。
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindUnknownProvider:
		return http.StatusBadRequest
	case KindProviderAuth:
		return http.StatusUnauthorized
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewError 构造不带底层原因的错误。
func NewError(kind ErrorKind, id ID, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: id, Message: fmt.Sprintf(format, args...)}
}

// WrapError 保留底层错误，便于 errors.Is 判断（如 context.Canceled）。
func WrapError(kind ErrorKind, id ID, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Provider: id, Message: msg, cause: cause}
}

// ErrorFromStatus 根据上游 HTTP 状态码推断分类。
func ErrorFromStatus(id ID, status int, body string) *Error {
	kind := KindUpstream
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindProviderAuth
	case http.StatusTooManyRequests:
		kind = KindRateLimit
	}
	if body == "" {
		body = http.StatusText(status)
	}
	return &Error{Kind: kind, Provider: id, Message: body, UpstreamStatus: status}
}

// AsError 将任意错误归一化为 *Error，未知错误归为 unknown。
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var target *Error
	if errors.As(err, &target) {
		return target
	}
	return WrapError(KindUnknown, "", err)
}
