package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPacketID  = errors.New("protocol: unknown packet id")
	ErrUnregisteredKind = errors.New("protocol: packet kind not registered")
	ErrEmptyPayload     = errors.New("protocol: empty payload")
	ErrMalformedPayload = errors.New("protocol: malformed payload")
	ErrTextTooLong      = errors.New("protocol: text field too long")
	ErrRegistryFrozen   = errors.New("protocol: registry is frozen")
	ErrDuplicateID      = errors.New("protocol: packet id already registered")
	ErrDuplicateKind    = errors.New("protocol: packet kind already registered")
)

// UnknownPacketIDError is returned by Decode for an ID missing from the
// registry. It means the peers speak different protocol versions.
type UnknownPacketIDError struct {
	ID ID
}

func (e *UnknownPacketIDError) Error() string {
	return fmt.Sprintf("protocol: unknown packet id %d", e.ID)
}

func (e *UnknownPacketIDError) Unwrap() error {
	return ErrUnknownPacketID
}
