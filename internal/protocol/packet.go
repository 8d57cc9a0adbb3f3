// Package protocol defines the packet set and its fixed-width wire codec.
//
// A packet payload is a one byte ID followed by the kind's fields in a fixed
// order. There is no self-describing schema: both peers must share the same
// Registry.
package protocol

// Kind names a packet variant.
type Kind string

// ID is the numeric wire tag of a packet kind.
type ID uint8

// Packet is an immutable message value. Two packets are equal when their
// kinds and fields are equal, so variants must stay comparable.
type Packet interface {
	Kind() Kind
	// AppendPayload appends the packet fields, without the ID.
	AppendPayload(b []byte) ([]byte, error)
}

// Parser decodes the fields of one packet kind.
type Parser func(fields []byte) (Packet, error)

// Control packets handled by the transport itself.
const (
	KindPing       Kind = "ping"
	KindPong       Kind = "pong"
	KindKick       Kind = "kick"
	KindDisconnect Kind = "disconnect"
)

const (
	IDPing       ID = 1
	IDPong       ID = 2
	IDKick       ID = 3
	IDDisconnect ID = 4
)

// Ping is a keep-alive probe. The receiving server answers with Pong.
type Ping struct{}

func (Ping) Kind() Kind                              { return KindPing }
func (Ping) AppendPayload(b []byte) ([]byte, error) { return b, nil }

// Pong answers a Ping.
type Pong struct{}

func (Pong) Kind() Kind                              { return KindPong }
func (Pong) AppendPayload(b []byte) ([]byte, error) { return b, nil }

// Kick tells a peer why it is being dropped, right before the socket closes.
type Kick struct {
	Reason string
}

func (Kick) Kind() Kind { return KindKick }

func (k Kick) AppendPayload(b []byte) ([]byte, error) {
	return AppendText(b, k.Reason)
}

// Disconnect announces that the sender is leaving.
type Disconnect struct{}

func (Disconnect) Kind() Kind                              { return KindDisconnect }
func (Disconnect) AppendPayload(b []byte) ([]byte, error) { return b, nil }

func parseEmpty(p Packet) Parser {
	return func(fields []byte) (Packet, error) {
		if err := NewFieldReader(fields).Finish(); err != nil {
			return nil, err
		}
		return p, nil
	}
}

func parseKick(fields []byte) (Packet, error) {
	r := NewFieldReader(fields)
	k := Kick{Reason: r.Text()}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return k, nil
}

// Opaque carries an application packet whose fields the transport does not
// interpret. Use Registry.RegisterOpaque to route such kinds by ID.
type Opaque struct {
	kind Kind
	data string
}

// NewOpaque copies data into an Opaque packet of the given kind.
func NewOpaque(kind Kind, data []byte) Opaque {
	return Opaque{kind: kind, data: string(data)}
}

func (o Opaque) Kind() Kind    { return o.kind }
func (o Opaque) Bytes() []byte { return []byte(o.data) }
func (o Opaque) Len() int      { return len(o.data) }

func (o Opaque) AppendPayload(b []byte) ([]byte, error) {
	return append(b, o.data...), nil
}
