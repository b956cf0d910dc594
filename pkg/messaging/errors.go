package messaging

import "github.com/attaradev/jetstream-bridge/pkg/errors"

// Error codes for messaging operations. This is a deliberately narrower set
// than a generic multi-broker client would carry: only the failure modes the
// NATS/JetStream adapter (pkg/messaging/adapters/nats) actually returns.
const (
	CodeConnectionFailed = "MESSAGING_CONN_FAILED"
	CodePublishFailed    = "MESSAGING_PUBLISH_FAILED"
	CodeConsumeFailed    = "MESSAGING_CONSUME_FAILED"
	CodeClosed           = "MESSAGING_CLOSED"
	CodeAckFailed        = "MESSAGING_ACK_FAILED"
	CodeNackFailed       = "MESSAGING_NACK_FAILED"
)

// Error constructors for messaging operations.
// These use the pkg/errors patterns for consistent error handling.

// ErrConnectionFailed creates an error for broker connection failures.
func ErrConnectionFailed(err error) *errors.AppError {
	return errors.New(CodeConnectionFailed, "failed to connect to message broker", err)
}

// ErrPublishFailed creates an error for publish failures.
func ErrPublishFailed(err error) *errors.AppError {
	return errors.New(CodePublishFailed, "failed to publish message", err)
}

// ErrConsumeFailed creates an error for consume failures.
func ErrConsumeFailed(err error) *errors.AppError {
	return errors.New(CodeConsumeFailed, "failed to consume message", err)
}

// ErrClosed creates an error for closed connections.
func ErrClosed(err error) *errors.AppError {
	return errors.New(CodeClosed, "broker connection is closed", err)
}

// ErrAckFailed creates an error for acknowledgment failures.
func ErrAckFailed(err error) *errors.AppError {
	return errors.New(CodeAckFailed, "failed to acknowledge message", err)
}

// ErrNackFailed creates an error for negative acknowledgment failures.
func ErrNackFailed(err error) *errors.AppError {
	return errors.New(CodeNackFailed, "failed to nack message", err)
}
