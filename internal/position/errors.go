package position

import (
	"errors"
	"fmt"
)

// Code classifies a position failure. The first three values match the W3C
// GeolocationPositionError codes sent by browsers.
type Code int

const (
	PermissionDenied    Code = 1
	PositionUnavailable Code = 2
	Timeout             Code = 3
	Unsupported         Code = 4
)

func (c Code) String() string {
	switch c {
	case PermissionDenied:
		return "permission_denied"
	case PositionUnavailable:
		return "position_unavailable"
	case Timeout:
		return "timeout"
	case Unsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Message returns the user-facing Korean message for the code.
func (c Code) Message() string {
	switch c {
	case PermissionDenied:
		return "위치 접근 권한이 거부되었습니다."
	case PositionUnavailable:
		return "위치 정보를 사용할 수 없습니다."
	case Timeout:
		return "위치 감지 시간이 초과되었습니다."
	case Unsupported:
		return "현재 위치를 지원하지 않는 환경입니다."
	default:
		return "위치 정보를 가져오는 데 실패했습니다."
	}
}

// Error is a classified position failure. errors.Is matches any *Error with
// the same Code, so the sentinels below work for every instance.
type Error struct {
	Code    Code
	Message string
	Err     error
}

var (
	ErrPermissionDenied    = &Error{Code: PermissionDenied}
	ErrPositionUnavailable = &Error{Code: PositionUnavailable}
	ErrTimeout             = &Error{Code: Timeout}
	ErrUnsupported         = &Error{Code: Unsupported}
)

func newError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.Message()
	}
	if e.Err != nil {
		return fmt.Sprintf("position %s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("position %s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Classify converts any error to an *Error. Unclassified errors become
// PositionUnavailable.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return newError(PositionUnavailable, "", err)
}
