package server

import (
	"github.com/chazu/loupe/wire"
)

// cborCodec plugs the canonical CBOR encoding into Connect. All DebugService
// procedures exchange application/cbor bodies; there is no generated protobuf
// schema for them.
type cborCodec struct{}

func (cborCodec) Name() string { return "cbor" }

func (cborCodec) Marshal(msg any) ([]byte, error) {
	return wire.Marshal(msg)
}

func (cborCodec) Unmarshal(data []byte, msg any) error {
	return wire.Unmarshal(data, msg)
}
