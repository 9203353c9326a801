package cooperate

import (
	"errors"
	"fmt"
)

// ErrorCode is a result code of the cooperate request surface. RetOK is never
// returned as an error; success is a nil error.
type ErrorCode int32

const (
	RetOK                      ErrorCode = 0
	RetErr                     ErrorCode = -1
	CommonPermissionCheckError ErrorCode = 201
	CommonNotSystemApp         ErrorCode = 202
	CommonParameterError       ErrorCode = 401
	ErrNotEnabled              ErrorCode = 4001
	ErrBusy                    ErrorCode = 4002
	ErrSessionFailed           ErrorCode = 4003
	ErrTimeout                 ErrorCode = 4004
	ErrRemoteRejected          ErrorCode = 4005
	ErrNotActivated            ErrorCode = 4006
)

var codeText = map[ErrorCode]string{
	RetOK:                      "ok",
	RetErr:                     "error",
	CommonPermissionCheckError: "permission check failed",
	CommonNotSystemApp:         "caller is not a system application",
	CommonParameterError:       "invalid parameter",
	ErrNotEnabled:              "cooperate not enabled",
	ErrBusy:                    "cooperate busy",
	ErrSessionFailed:           "session failed",
	ErrTimeout:                 "peer response timeout",
	ErrRemoteRejected:          "rejected by peer",
	ErrNotActivated:            "cooperate not activated",
}

func (c ErrorCode) Error() string {
	if s, ok := codeText[c]; ok {
		return fmt.Sprintf("cooperate: %s (%d)", s, int32(c))
	}
	return fmt.Sprintf("cooperate: code %d", int32(c))
}

// CodeOf maps err to the integer result code returned over IPC.
func CodeOf(err error) int32 {
	if err == nil {
		return int32(RetOK)
	}
	var code ErrorCode
	if errors.As(err, &code) {
		return int32(code)
	}
	return int32(RetErr)
}

// codeFromWire turns a negative ack code into an error, defaulting to ErrRemoteRejected.
func codeFromWire(code int32) ErrorCode {
	if code == 0 {
		return ErrRemoteRejected
	}
	return ErrorCode(code)
}
