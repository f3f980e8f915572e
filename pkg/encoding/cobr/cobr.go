package cobr

import "github.com/fxamacker/cbor/v2"

var (
	encMode, _ = cbor.CoreDetEncOptions().EncMode()
	decMode, _ = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
)

// CborCodec stores records in core deterministic CBOR, equal records always
// encode to equal bytes.
type CborCodec struct{}

// Marshal implements Codec.
func (c *CborCodec) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal implements Codec. Duplicate map keys are rejected.
func (c *CborCodec) Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Name implements Codec.
func (c *CborCodec) Name() string {
	return "cbor"
}
