package codec

import (
    "fmt"
    "reflect"

    "google.golang.org/protobuf/proto"
    "google.golang.org/protobuf/types/known/structpb"
)

var mapType = reflect.TypeOf(map[string]any(nil))

type protoCodec struct{}

// Proto encodes a map[string]any as a google.protobuf.Struct.
func Proto() Codec { return protoCodec{} }

func (protoCodec) Name() string        { return "proto" }
func (protoCodec) ContentType() string { return "application/x-protobuf" }

func (protoCodec) Marshal(v any) ([]byte, error) {
    m, ok := v.(map[string]any)
    if !ok { return nil, fmt.Errorf("proto codec: want map[string]any, got %T", v) }
    s, err := structpb.NewStruct(m)
    if err != nil { return nil, err }
    return proto.MarshalOptions{Deterministic: true}.Marshal(s)
}

func (protoCodec) Unmarshal(data []byte, v any) error {
    out, ok := v.(*map[string]any)
    if !ok { return fmt.Errorf("proto codec: want *map[string]any, got %T", v) }
    var s structpb.Struct
    if err := proto.Unmarshal(data, &s); err != nil { return err }
    *out = s.AsMap()
    return nil
}
