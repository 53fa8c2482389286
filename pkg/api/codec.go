// Package api defines the request and response messages of the Hisaab RPC
// services and the JSON codec that carries them over Connect.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// CodecName is the Connect codec name, and the Content-Type suffix on the wire.
const CodecName = "json"

// JSONCodec marshals plain Go structs with encoding/json. It replaces the
// default protobuf-JSON codec, which only accepts proto.Message values.
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

func (JSONCodec) Name() string { return CodecName }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// Unmarshal rejects unknown fields so typos in client payloads surface as
// errors instead of silently zero values.
func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}
