package mumbleproto

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Append helpers. Optional fields are pointer-typed on the message structs;
// a nil pointer means "field absent" and emits nothing, which is what lets
// UserState diffs distinguish omitted fields from fields set to a default.

func appendUint32Opt(b []byte, num protowire.Number, p *uint32) []byte {
	if p == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(*p))
}

func appendUint64Opt(b []byte, num protowire.Number, p *uint64) []byte {
	if p == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, *p)
}

func appendInt32Opt(b []byte, num protowire.Number, p *int32) []byte {
	if p == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(*p)))
}

func appendBoolOpt(b []byte, num protowire.Number, p *bool) []byte {
	if p == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	v := uint64(0)
	if *p {
		v = 1
	}
	return protowire.AppendVarint(b, v)
}

func appendStringOpt(b []byte, num protowire.Number, p *string) []byte {
	if p == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, *p)
}

func appendFloatOpt(b []byte, num protowire.Number, p *float32) []byte {
	if p == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(*p))
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendUint32Rep(b []byte, num protowire.Number, vs []uint32) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}

func appendInt32Rep(b []byte, num protowire.Number, vs []int32) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(v)))
	}
	return b
}

func appendStringRep(b []byte, num protowire.Number, vs []string) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

// decodeState walks a protobuf payload field by field. The first consume
// failure latches into err and stops the walk; unknown fields are skipped.
type decodeState struct {
	b   []byte
	err error
}

func (d *decodeState) next() (protowire.Number, protowire.Type, bool) {
	if d.err != nil || len(d.b) == 0 {
		return 0, 0, false
	}
	num, typ, n := protowire.ConsumeTag(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return 0, 0, false
	}
	d.b = d.b[n:]
	return num, typ, true
}

func (d *decodeState) skip(num protowire.Number, typ protowire.Type) {
	n := protowire.ConsumeFieldValue(num, typ, d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return
	}
	d.b = d.b[n:]
}

func (d *decodeState) varint() uint64 {
	v, n := protowire.ConsumeVarint(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return 0
	}
	d.b = d.b[n:]
	return v
}

func (d *decodeState) uint32v() *uint32 {
	v := uint32(d.varint())
	if d.err != nil {
		return nil
	}
	return &v
}

func (d *decodeState) uint64v() *uint64 {
	v := d.varint()
	if d.err != nil {
		return nil
	}
	return &v
}

func (d *decodeState) int32v() *int32 {
	v := int32(int64(d.varint()))
	if d.err != nil {
		return nil
	}
	return &v
}

func (d *decodeState) boolv() *bool {
	v := d.varint() != 0
	if d.err != nil {
		return nil
	}
	return &v
}

func (d *decodeState) floatv() *float32 {
	raw, n := protowire.ConsumeFixed32(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return nil
	}
	d.b = d.b[n:]
	v := math.Float32frombits(raw)
	return &v
}

func (d *decodeState) bytesv() []byte {
	v, n := protowire.ConsumeBytes(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return nil
	}
	d.b = d.b[n:]
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (d *decodeState) stringv() *string {
	v := d.bytesv()
	if d.err != nil {
		return nil
	}
	s := string(v)
	return &s
}

// repUint32 appends one or more uint32 values to dst, accepting both the
// unpacked encoding this server emits and the packed one some clients send.
func (d *decodeState) repUint32(dst []uint32, typ protowire.Type) []uint32 {
	if typ == protowire.BytesType {
		packed, n := protowire.ConsumeBytes(d.b)
		if n < 0 {
			d.err = protowire.ParseError(n)
			return dst
		}
		d.b = d.b[n:]
		for len(packed) > 0 {
			v, vn := protowire.ConsumeVarint(packed)
			if vn < 0 {
				d.err = protowire.ParseError(vn)
				return dst
			}
			packed = packed[vn:]
			dst = append(dst, uint32(v))
		}
		return dst
	}
	v := d.varint()
	if d.err != nil {
		return dst
	}
	return append(dst, uint32(v))
}

func (d *decodeState) repInt32(dst []int32, typ protowire.Type) []int32 {
	us := d.repUint32(nil, typ)
	for _, u := range us {
		dst = append(dst, int32(u))
	}
	return dst
}
