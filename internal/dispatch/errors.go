package dispatch

import (
	"errors"
	"fmt"
)

// ModuleNotFoundError reports a surface/module pair absent from a ModuleTable.
type ModuleNotFoundError struct {
	SDKType string
	Module  string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module not found: %s/%s", e.SDKType, e.Module)
}

// IsModuleNotFound reports whether err is a ModuleNotFoundError.
func IsModuleNotFound(err error) bool {
	var me *ModuleNotFoundError
	return errors.As(err, &me)
}

// RejectionError carries the payload a listen call was rejected with. The
// payload is usually a {code, message} object but may be any value.
type RejectionError struct {
	Payload any
}

func (e *RejectionError) Error() string {
	if m, ok := e.Payload.(map[string]any); ok {
		if msg, ok := m["message"]; ok {
			return fmt.Sprintf("rejected: %v (code %v)", msg, m["code"])
		}
	}
	return fmt.Sprintf("rejected: %v", e.Payload)
}

// Reject wraps payload in a RejectionError.
func Reject(payload any) error {
	return &RejectionError{Payload: payload}
}

// RPCError builds the {code, message} payload of a JSON-RPC error.
func RPCError(code any, message string) map[string]any {
	return map[string]any{"code": code, "message": message}
}

// RejectionPayload extracts the payload of a rejection. Errors that are not
// rejections are reported as {code: "FCAError", message: err.Error()}.
func RejectionPayload(err error) (payload any, rejected bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Payload, true
	}
	return RPCError("FCAError", err.Error()), false
}
