package model

// Kind is a stable error category, per spec §7.
type Kind string

const (
	KindConfigInvalid     Kind = "CONFIG_INVALID"
	KindUnknownRole        Kind = "UNKNOWN_ROLE"
	KindUnknownVolumeType Kind = "UNKNOWN_VOLUME_TYPE"
	KindLevelOutOfRange   Kind = "LEVEL_OUT_OF_RANGE"
	KindParentNotFound    Kind = "PARENT_NOT_FOUND"
	KindNoActiveStream    Kind = "NO_ACTIVE_STREAM"
	KindHALError          Kind = "HAL_ERROR"
)

// Error is a structured manager error carrying a stable Kind alongside a
// human-readable message. RPC handlers map Kind to the wire status string.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Error constructors, one per spec §7 kind.
func ErrConfigInvalid(msg string) *Error     { return &Error{Kind: KindConfigInvalid, Message: msg} }
func ErrUnknownRole(msg string) *Error       { return &Error{Kind: KindUnknownRole, Message: msg} }
func ErrUnknownVolumeType(msg string) *Error { return &Error{Kind: KindUnknownVolumeType, Message: msg} }
func ErrLevelOutOfRange(msg string) *Error   { return &Error{Kind: KindLevelOutOfRange, Message: msg} }
func ErrParentNotFound(msg string) *Error    { return &Error{Kind: KindParentNotFound, Message: msg} }
func ErrNoActiveStream(msg string) *Error    { return &Error{Kind: KindNoActiveStream, Message: msg} }
func ErrHAL(msg string) *Error               { return &Error{Kind: KindHALError, Message: msg} }

// AsKind extracts the Kind from err, if it is (or wraps) a *Error.
func AsKind(err error) (Kind, bool) {
	if e, ok := err.(*Error); ok {
		return e.Kind, true
	}
	return "", false
}
