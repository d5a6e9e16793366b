package indiclient

import "errors"

var (
	// ErrDeviceNotFound is returned when a call cannot find a device.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrPropertyNotFound is returned when a call cannot find a property.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrPropertyValueNotFound is returned when a call cannot find a property value.
	ErrPropertyValueNotFound = errors.New("property value not found")

	// ErrPropertyReadOnly is returned when an attempt to change a read-only property was made.
	ErrPropertyReadOnly = errors.New("property read only")

	// ErrPropertyWithoutDevice is returned when an attempt to GetProperties specifies a property but no device.
	ErrPropertyWithoutDevice = errors.New("property specified without device")

	// ErrInvalidBlobEnable is returned when a value other than Only, Also, Never is specified for EnableBlob.
	ErrInvalidBlobEnable = errors.New("invalid blob sending value")

	// ErrBlobNotFound is returned when a BLOB value has not yet been received.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrNotConnected is returned by Send when the session has no live connection.
	ErrNotConnected = errors.New("not connected")

	// ErrNotSerializable is returned when Serialize is asked to encode a server-only message variant.
	ErrNotSerializable = errors.New("message variant is not serializable")

	// ErrRuleViolation is returned when a target switch write would break the property's SwitchRule.
	ErrRuleViolation = errors.New("switch rule violation")

	// ErrCancelled is returned to any pending caller when a session is disconnected out from under it.
	ErrCancelled = errors.New("operation cancelled")

	// ErrAlreadyConnected is returned by Connect when an earlier Connect is still dialing; Connect on a live session returns nil.
	ErrAlreadyConnected = errors.New("already connected")
)
