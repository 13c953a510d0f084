package cbor

import "github.com/fxamacker/cbor/v2"

// RecordCodec encodes stored values. Encoding is deterministic so equal
// records always produce identical bytes.
type RecordCodec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

func NewDeterministicEncOpts() cbor.EncOptions {
	return cbor.EncOptions{
		Sort:        cbor.SortCoreDeterministic,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
}

// NewDeterministicDecOpts rejects streamed and duplicate keyed input.
// Integers decode to int64 when the target is an interface.
func NewDeterministicDecOpts() cbor.DecOptions {
	return cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
		IntDec:      cbor.IntDecConvertSigned,
		TagsMd:      cbor.TagsForbidden,
	}
}

func NewRecordCodec(encOpts cbor.EncOptions, decOpts cbor.DecOptions) (*RecordCodec, error) {
	var err error
	c := &RecordCodec{}
	if c.encMode, err = encOpts.EncMode(); err != nil {
		return nil, err
	}
	if c.decMode, err = decOpts.DecMode(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewDeterministicCodec returns the codec used for market records.
func NewDeterministicCodec() *RecordCodec {
	c, err := NewRecordCodec(NewDeterministicEncOpts(), NewDeterministicDecOpts())
	if err != nil {
		// the options above are static and known to be valid
		panic(err)
	}
	return c
}

func (c *RecordCodec) Marshal(value any) ([]byte, error) {
	return c.encMode.Marshal(value)
}

func (c *RecordCodec) Unmarshal(b []byte, target any) error {
	return c.decMode.Unmarshal(b, target)
}
