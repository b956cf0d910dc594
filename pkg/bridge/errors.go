package bridge

import "github.com/attaradev/jetstream-bridge/pkg/errors"

// Error codes for the bridge's error taxonomy. Callers branch on these via
// errors.Is(err, bridge.CodeXxx) rather than matching message strings.
const (
	CodeConfiguration    = "BRIDGE_CONFIGURATION"
	CodeConnection       = "BRIDGE_CONNECTION"
	CodePublish          = "BRIDGE_PUBLISH"
	CodeDuplicate        = "BRIDGE_DUPLICATE"
	CodeDeserialization  = "BRIDGE_DESERIALIZATION"
	CodeHandler          = "BRIDGE_HANDLER"
	CodeTopologyOverlap  = "BRIDGE_TOPOLOGY_OVERLAP"
)

// WrapConfigurationError reports invalid or missing bridge configuration.
func WrapConfigurationError(msg string, cause error) error {
	return errors.New(CodeConfiguration, msg, cause)
}

// WrapConnectionError reports failures establishing or maintaining the
// connection to the messaging substrate.
func WrapConnectionError(cause error) error {
	return errors.New(CodeConnection, "bridge connection failed", cause)
}

// WrapPublishError reports a failed publish attempt (direct or dispatched).
func WrapPublishError(cause error) error {
	return errors.New(CodePublish, "bridge publish failed", cause)
}

// ErrDuplicateEvent reports that an event_id was already seen and the
// caller should treat the publish/consume as a no-op rather than an error.
func ErrDuplicateEvent(eventID string) error {
	return errors.New(CodeDuplicate, "duplicate event_id: "+eventID, nil)
}

// WrapDeserializationError reports malformed envelope or payload JSON.
func WrapDeserializationError(cause error) error {
	return errors.New(CodeDeserialization, "failed to (de)serialize envelope", cause)
}

// WrapHandlerError reports a consumer handler returning an error.
func WrapHandlerError(cause error) error {
	return errors.New(CodeHandler, "event handler failed", cause)
}

// ErrTopologyOverlap reports that a desired subject is already claimed by a
// stream other than the one the reconciler is managing.
func ErrTopologyOverlap(subject, foreignStream string) error {
	return errors.New(CodeTopologyOverlap, "subject "+subject+" already claimed by stream "+foreignStream, nil)
}

// IsDuplicate reports whether err is a duplicate-event error.
func IsDuplicate(err error) bool {
	return errors.Is(err, CodeDuplicate)
}

// IsTopologyOverlap reports whether err is a topology overlap error.
func IsTopologyOverlap(err error) bool {
	return errors.Is(err, CodeTopologyOverlap)
}

// IsDeserialization reports whether err is a deserialization error.
func IsDeserialization(err error) bool {
	return errors.Is(err, CodeDeserialization)
}
