package member

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCode: 멤버 작업 오류 코드
type ErrorCode string

const (
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
	CodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	CodeForbidden       ErrorCode = "FORBIDDEN"
	CodeBackend         ErrorCode = "BACKEND_ERROR"
)

// ForbiddenMessage: "user" 역할이 변경 작업을 시도할 때의 메시지
const ForbiddenMessage = "You are not allowed to do this!"

// Error: 서비스 레벨 에러 (HTTP 레이어에서 status로 매핑)
type Error struct {
	Code    ErrorCode
	Message string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("member error code=%s op=%s: %s", e.Code, e.Op, e.Message)
	}
	return fmt.Sprintf("member error code=%s op=%s: %s: %v", e.Code, e.Op, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is: 코드가 같은 *Error끼리 일치시킨다 (errors.Is(err, ErrForbidden) 지원).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil || e == nil {
		return false
	}
	return t.Op == "" && t.Code == e.Code
}

var (
	ErrInvalidInput    = &Error{Code: CodeInvalidInput}
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated}
	ErrForbidden       = &Error{Code: CodeForbidden}
	ErrBackend         = &Error{Code: CodeBackend}
)

func newError(code ErrorCode, op, message string, err error) *Error {
	return &Error{Code: code, Op: op, Message: message, Err: err}
}

// backendError: 백엔드 오류 메시지를 분류/가공 없이 그대로 전달한다.
func backendError(op string, err error) *Error {
	return newError(CodeBackend, op, err.Error(), err)
}

// CodeOf: err에서 ErrorCode를 추출한다. *Error가 아니면 BACKEND_ERROR.
func CodeOf(err error) ErrorCode {
	var me *Error
	if stdErrors.As(err, &me) {
		return me.Code
	}
	return CodeBackend
}

// MessageOf: 사용자에게 노출할 메시지
func MessageOf(err error) string {
	var me *Error
	if stdErrors.As(err, &me) && me.Message != "" {
		return me.Message
	}
	return err.Error()
}
