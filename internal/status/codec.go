package status

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec renders a status Struct.
type Codec interface {
	ContentType() string
	Marshal(s *structpb.Struct) ([]byte, error)
}

type jsonCodec struct{ mo protojson.MarshalOptions }

func (jsonCodec) ContentType() string { return "application/json" }

func (c jsonCodec) Marshal(s *structpb.Struct) ([]byte, error) { return c.mo.Marshal(s) }

type protoCodec struct{ mo proto.MarshalOptions }

func (protoCodec) ContentType() string { return "application/x-protobuf" }

func (c protoCodec) Marshal(s *structpb.Struct) ([]byte, error) { return c.mo.Marshal(s) }

type cborCodec struct{ enc cbor.EncMode }

func (cborCodec) ContentType() string { return "application/cbor" }

func (c cborCodec) Marshal(s *structpb.Struct) ([]byte, error) { return c.enc.Marshal(s.AsMap()) }

type codecs struct {
	byType map[string]Codec
	def    Codec
}

func newCodecs() *codecs {
	def := jsonCodec{mo: protojson.MarshalOptions{UseProtoNames: true}}
	cs := &codecs{
		byType: make(map[string]Codec),
		def:    def,
	}
	cs.register(def)
	cs.register(protoCodec{mo: proto.MarshalOptions{Deterministic: true}})

	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("status: cbor enc mode: %v", err))
	}
	cs.register(cborCodec{enc: em})
	return cs
}

func (cs *codecs) register(c Codec) {
	cs.byType[c.ContentType()] = c
}

// pick returns the first codec named in an Accept header, or JSON.
func (cs *codecs) pick(accept string) Codec {
	for _, t := range acceptParts(accept) {
		if c, ok := cs.byType[t]; ok {
			return c
		}
	}
	return cs.def
}
