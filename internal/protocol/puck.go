package protocol

const (
	KindPuckPosition Kind = "puck_position"
	IDPuckPosition   ID   = 16
)

// PuckPosition is the authoritative puck state, sent by whichever side owns
// the puck. Fields are in wire order.
type PuckPosition struct {
	PosX    float32
	PosY    float32
	MotionX float32
	MotionY float32
}

func (PuckPosition) Kind() Kind { return KindPuckPosition }

func (p PuckPosition) AppendPayload(b []byte) ([]byte, error) {
	b = AppendFloat32(b, p.PosX)
	b = AppendFloat32(b, p.PosY)
	b = AppendFloat32(b, p.MotionX)
	b = AppendFloat32(b, p.MotionY)
	return b, nil
}

func parsePuckPosition(fields []byte) (Packet, error) {
	r := NewFieldReader(fields)
	p := PuckPosition{
		PosX:    r.Float32(),
		PosY:    r.Float32(),
		MotionX: r.Float32(),
		MotionY: r.Float32(),
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return p, nil
}
