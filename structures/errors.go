package structures

import "errors"

var (
	// ErrValueTooLarge indicates an encoded key or value exceeds the
	// declared fixed bound.
	ErrValueTooLarge = errors.New("structures: encoded value exceeds declared bound")
	// ErrIncompatibleLayout indicates reloaded metadata does not match the
	// expected structure shape or version. Fatal: the memory must not be
	// reinterpreted.
	ErrIncompatibleLayout = errors.New("structures: persisted layout is incompatible")
	// ErrUnboundedValue indicates a codec with no fixed bound was handed to
	// a structure that reserves fixed slots.
	ErrUnboundedValue = errors.New("structures: value type must declare a fixed bound")
)
