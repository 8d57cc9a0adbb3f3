package protocol

import (
	"fmt"
	"sort"
)

type entry struct {
	id    ID
	kind  Kind
	parse Parser
}

// Registry maps packet kinds to wire IDs and back. It is filled once at
// startup and frozen; a frozen Registry is read-only and may be shared by any
// number of goroutines. Register is not safe for concurrent use.
type Registry struct {
	byID   [256]*entry
	byKind map[Kind]*entry
	frozen bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[Kind]*entry)}
}

// NewControlRegistry returns an unfrozen Registry holding the control packets.
func NewControlRegistry() *Registry {
	r := NewRegistry()
	r.mustRegister(IDPing, KindPing, parseEmpty(Ping{}))
	r.mustRegister(IDPong, KindPong, parseEmpty(Pong{}))
	r.mustRegister(IDKick, KindKick, parseKick)
	r.mustRegister(IDDisconnect, KindDisconnect, parseEmpty(Disconnect{}))
	return r
}

// DefaultRegistry returns a frozen Registry with the control packets and the
// game packets.
func DefaultRegistry() *Registry {
	r := NewControlRegistry()
	r.mustRegister(IDPuckPosition, KindPuckPosition, parsePuckPosition)
	return r.Freeze()
}

// Register binds kind to id.
func (r *Registry) Register(id ID, kind Kind, parse Parser) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	if e := r.byID[id]; e != nil {
		return fmt.Errorf("%w: %d (%s)", ErrDuplicateID, id, e.kind)
	}
	if e := r.byKind[kind]; e != nil {
		return fmt.Errorf("%w: %s (%d)", ErrDuplicateKind, kind, e.id)
	}
	e := &entry{id: id, kind: kind, parse: parse}
	r.byID[id] = e
	r.byKind[kind] = e
	return nil
}

// RegisterOpaque binds kind to id and decodes it as an Opaque packet.
func (r *Registry) RegisterOpaque(id ID, kind Kind) error {
	return r.Register(id, kind, func(fields []byte) (Packet, error) {
		fr := NewFieldReader(fields)
		data := fr.Rest()
		if err := fr.Finish(); err != nil {
			return nil, err
		}
		return NewOpaque(kind, data), nil
	})
}

func (r *Registry) mustRegister(id ID, kind Kind, parse Parser) {
	if err := r.Register(id, kind, parse); err != nil {
		panic(err)
	}
}

// Freeze makes the registry read-only and returns it.
func (r *Registry) Freeze() *Registry {
	r.frozen = true
	return r
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// ID returns the wire ID of kind.
func (r *Registry) ID(kind Kind) (ID, bool) {
	e, ok := r.byKind[kind]
	if !ok {
		return 0, false
	}
	return e.id, true
}

// Kind returns the kind registered under id.
func (r *Registry) Kind(id ID) (Kind, bool) {
	e := r.byID[id]
	if e == nil {
		return "", false
	}
	return e.kind, true
}

// Kinds lists registered kinds ordered by ID.
func (r *Registry) Kinds() []Kind {
	entries := make([]*entry, 0, len(r.byKind))
	for _, e := range r.byKind {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	kinds := make([]Kind, len(entries))
	for i, e := range entries {
		kinds[i] = e.kind
	}
	return kinds
}

// Encode serializes p as [ID][fields].
func (r *Registry) Encode(p Packet) ([]byte, error) {
	return r.AppendPacket(nil, p)
}

// AppendPacket appends the encoded form of p to dst.
func (r *Registry) AppendPacket(dst []byte, p Packet) ([]byte, error) {
	e, ok := r.byKind[p.Kind()]
	if !ok {
		return dst, fmt.Errorf("%w: %s", ErrUnregisteredKind, p.Kind())
	}
	out, err := p.AppendPayload(append(dst, byte(e.id)))
	if err != nil {
		return dst, fmt.Errorf("encode %s: %w", e.kind, err)
	}
	return out, nil
}

// Decode parses one frame payload. An unknown ID yields an
// *UnknownPacketIDError.
func (r *Registry) Decode(b []byte) (Packet, error) {
	if len(b) == 0 {
		return nil, ErrEmptyPayload
	}
	id := ID(b[0])
	e := r.byID[id]
	if e == nil {
		return nil, &UnknownPacketIDError{ID: id}
	}
	p, err := e.parse(b[1:])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.kind, err)
	}
	return p, nil
}
