package error

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels used with errors.Is. Typed errors below unwrap to them.
var (
	ErrCapacityExceeded   = errors.New("instance capacity exceeded")
	ErrUnknownInstance    = errors.New("unknown instance")
	ErrUnknownSender      = errors.New("unknown sender")
	ErrSessionAuthFailure = errors.New("session auth failure")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrResponderTimeout   = errors.New("responder timeout")
	ErrResponder          = errors.New("responder error")
	ErrSendFailure        = errors.New("send failure")
)

// CapacityExceededError: registry lleno y sin candidato a desalojar.
type CapacityExceededError struct {
	Max int
}

func (e CapacityExceededError) Error() string {
	return fmt.Sprintf("instance capacity exceeded (max %d) and no eviction candidate", e.Max)
}
func (e CapacityExceededError) ErrCode() string { return "CAPACITY_EXCEEDED" }
func (e CapacityExceededError) StatusCode() int { return http.StatusConflict }
func (e CapacityExceededError) Unwrap() error   { return ErrCapacityExceeded }

type UnknownInstanceError struct {
	InstanceID string
}

func (e UnknownInstanceError) Error() string {
	return fmt.Sprintf("unknown instance: %s", e.InstanceID)
}
func (e UnknownInstanceError) ErrCode() string { return "UNKNOWN_INSTANCE" }
func (e UnknownInstanceError) StatusCode() int { return http.StatusNotFound }
func (e UnknownInstanceError) Unwrap() error   { return ErrUnknownInstance }

type UnknownSenderError struct {
	SenderID string
}

func (e UnknownSenderError) Error() string {
	return fmt.Sprintf("unknown sender: %s", e.SenderID)
}
func (e UnknownSenderError) ErrCode() string { return "UNKNOWN_SENDER" }
func (e UnknownSenderError) StatusCode() int { return http.StatusNotFound }
func (e UnknownSenderError) Unwrap() error   { return ErrUnknownSender }

type SessionAuthFailureError struct {
	InstanceID string
	Reason     string
}

func (e SessionAuthFailureError) Error() string {
	return fmt.Sprintf("auth failure on instance %s: %s", e.InstanceID, e.Reason)
}
func (e SessionAuthFailureError) ErrCode() string { return "SESSION_AUTH_FAILURE" }
func (e SessionAuthFailureError) StatusCode() int { return http.StatusUnauthorized }
func (e SessionAuthFailureError) Unwrap() error   { return ErrSessionAuthFailure }

type ReconnectExhaustedError struct {
	InstanceID string
	Attempts   int
}

func (e ReconnectExhaustedError) Error() string {
	return fmt.Sprintf("instance %s: reconnect gave up after %d attempts", e.InstanceID, e.Attempts)
}
func (e ReconnectExhaustedError) ErrCode() string { return "RECONNECT_EXHAUSTED" }
func (e ReconnectExhaustedError) StatusCode() int { return http.StatusServiceUnavailable }
func (e ReconnectExhaustedError) Unwrap() error   { return ErrReconnectExhausted }

type ResponderTimeoutError struct {
	SenderID string
	Err      error
}

func (e ResponderTimeoutError) Error() string {
	return fmt.Sprintf("responder timed out for %s: %v", e.SenderID, e.Err)
}
func (e ResponderTimeoutError) ErrCode() string { return "RESPONDER_TIMEOUT" }
func (e ResponderTimeoutError) StatusCode() int { return http.StatusGatewayTimeout }
func (e ResponderTimeoutError) Is(target error) bool {
	return target == ErrResponderTimeout
}
func (e ResponderTimeoutError) Unwrap() error { return e.Err }

type ResponderError struct {
	SenderID string
	Err      error
}

func (e ResponderError) Error() string {
	return fmt.Sprintf("responder failed for %s: %v", e.SenderID, e.Err)
}
func (e ResponderError) ErrCode() string { return "RESPONDER_ERROR" }
func (e ResponderError) StatusCode() int { return http.StatusBadGateway }
func (e ResponderError) Is(target error) bool {
	return target == ErrResponder
}
func (e ResponderError) Unwrap() error { return e.Err }

type SendFailureError struct {
	InstanceID string
	To         string
	Err        error
}

func (e SendFailureError) Error() string {
	return fmt.Sprintf("send to %s via %s failed: %v", e.To, e.InstanceID, e.Err)
}
func (e SendFailureError) ErrCode() string { return "SEND_FAILURE" }
func (e SendFailureError) StatusCode() int { return http.StatusBadGateway }
func (e SendFailureError) Is(target error) bool {
	return target == ErrSendFailure
}
func (e SendFailureError) Unwrap() error { return e.Err }
