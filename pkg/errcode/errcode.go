// Package errcode defines the bridge error codes reported to applications
// and the helpers that map internal failures onto them.
package errcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meshbridge/meshbridge-go/pkg/retry"
	"github.com/meshbridge/meshbridge-go/pkg/supervisor"
)

// Code is an application-facing error code.
type Code uint8

const (
	// NotInitialized indicates the bridge has not been opened.
	NotInitialized Code = iota + 1

	// InvalidArgument indicates a missing or malformed parameter.
	InvalidArgument

	// InitError indicates the bridge failed to start.
	InitError

	// DisposeError indicates the bridge failed to shut down cleanly.
	DisposeError

	// ScanError indicates a scan could not be started or failed.
	ScanError

	// ProvisionError indicates device provisioning failed.
	ProvisionError

	// ConnectionError indicates the proxy link could not be established.
	ConnectionError

	// CommandError indicates a mesh command failed. It is the default code.
	CommandError

	// OTAError indicates a firmware update failed.
	OTAError

	// GroupError indicates a group operation failed.
	GroupError

	// StorageError indicates mesh storage could not be read or written.
	StorageError

	// Timeout indicates an operation did not finish in time.
	Timeout

	// PermissionDenied indicates a missing platform permission.
	PermissionDenied

	// BluetoothOff indicates the radio is disabled.
	BluetoothOff

	// DeviceNotFound indicates the addressed node is unknown.
	DeviceNotFound
)

var codeNames = map[Code]string{
	NotInitialized:   "NOT_INITIALIZED",
	InvalidArgument:  "INVALID_ARGUMENT",
	InitError:        "INIT_ERROR",
	DisposeError:     "DISPOSE_ERROR",
	ScanError:        "SCAN_ERROR",
	ProvisionError:   "PROVISION_ERROR",
	ConnectionError:  "CONNECTION_ERROR",
	CommandError:     "COMMAND_ERROR",
	OTAError:         "OTA_ERROR",
	GroupError:       "GROUP_ERROR",
	StorageError:     "STORAGE_ERROR",
	Timeout:          "TIMEOUT",
	PermissionDenied: "PERMISSION_DENIED",
	BluetoothOff:     "BLUETOOTH_OFF",
	DeviceNotFound:   "DEVICE_NOT_FOUND",
}

// String returns the wire name of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseCode returns the code with the given wire name.
func ParseCode(name string) (Code, bool) {
	for c, n := range codeNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// Error is a coded failure reported to the application.
type Error struct {
	Code    Code
	Message string
	Details map[string]any

	err error
}

// New creates an Error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf classifies err. Unrecognized errors map to fallback.
func CodeOf(err error, fallback Code) Code {
	var coded *Error
	switch {
	case err == nil:
		return fallback
	case errors.As(err, &coded):
		return coded.Code
	case errors.Is(err, retry.ErrOperationTimeout), errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, supervisor.ErrTransportFailure):
		return ConnectionError
	default:
		return fallback
	}
}

// Handle converts err into a coded *Error. If recovery is non-nil it runs
// first; when it succeeds the error is considered handled and Handle
// returns nil. A failed or panicking recovery is logged and the original
// error is reported.
func Handle(logger *slog.Logger, err error, code Code, recovery func() error) error {
	if err == nil {
		return nil
	}
	if logger != nil {
		logger.Error("error occurred", "code", code, "error", err)
	}

	if recovery != nil {
		if logger != nil {
			logger.Debug("attempting recovery", "code", code)
		}
		rerr := runRecovery(recovery)
		if rerr == nil {
			return nil
		}
		if logger != nil {
			logger.Error("recovery failed", "code", code, "error", rerr)
		}
	}

	return &Error{
		Code:    code,
		Message: err.Error(),
		Details: map[string]any{
			"type":      fmt.Sprintf("%T", err),
			"timestamp": time.Now().UnixMilli(),
		},
		err: err,
	}
}

func runRecovery(recovery func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovery panicked: %v", r)
		}
	}()
	return recovery()
}

// ValidateParams checks that every required key is present and non-nil.
// The first missing key is reported as InvalidArgument.
func ValidateParams(params map[string]any, required ...string) error {
	if params == nil {
		return New(InvalidArgument, "parameters are required")
	}
	for _, key := range required {
		if v, ok := params[key]; !ok || v == nil {
			return New(InvalidArgument, fmt.Sprintf("parameter '%s' is required", key))
		}
	}
	return nil
}
