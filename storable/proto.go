package storable

import (
	"google.golang.org/protobuf/proto"
)

// Proto returns an unbounded codec for protobuf messages. The factory
// allocates the concrete message Decode unmarshals into.
//
//	codec := storable.Proto(func() *pb.Task { return &pb.Task{} })
func Proto[M proto.Message](factory func() M) Codec[M] {
	return protoCodec[M]{factory: factory}
}

type protoCodec[M proto.Message] struct {
	factory func() M
}

func (protoCodec[M]) Bound() Bound { return Unbounded() }

func (protoCodec[M]) Encode(v M) ([]byte, error) {
	return proto.Marshal(v)
}

func (c protoCodec[M]) Decode(b []byte) (M, error) {
	m := c.factory()
	if err := proto.Unmarshal(b, m); err != nil {
		var zero M
		return zero, err
	}
	return m, nil
}
