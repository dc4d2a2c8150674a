package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable     = errors.New("device unavailable")
	ErrSendFailure     = errors.New("device communication failure")
	ErrAuthFailure     = errors.New("device authentication failed")
	ErrFatal           = errors.New("fatal device error")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotConnected    = errors.New("not connected")
	ErrRefused         = errors.New("request refused by device")
)

// DeviceError is a failed device operation classified by Kind.
type DeviceError struct {
	Kind error
	Op   string
	Err  error
}

func NewDeviceError(kind error, op string, err error) *DeviceError {
	return &DeviceError{Kind: kind, Op: op, Err: err}
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
}

func (e *DeviceError) Is(target error) bool {
	return target == e.Kind
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether err requires new credentials.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthFailure)
}

func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
