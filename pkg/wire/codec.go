// Package wire implements the protobuf wire format for the Geyser service.
//
// Message shapes follow geyser.proto and solana-storage.proto field for field.
// Instead of generated per-message marshal code, every message describes its
// fields through two small methods (appendFields and consumeField) and a single
// driver in this file walks tags, lengths and presence for all of them.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
)

// Name is the content-subtype the codec registers with gRPC.
// Geyser servers expect plain protobuf framing, so the codec advertises "proto".
const Name = "proto"

// ErrWireType is returned when a field arrives with a wire type its schema does not allow.
var ErrWireType = errors.New("wire: unexpected wire type")

// message is implemented by every wire shape in this package.
type message interface {
	appendFields(b []byte) []byte
	consumeField(num protowire.Number, typ protowire.Type, b []byte) (int, error)
}

// Codec is a gRPC encoding.Codec for the message shapes of this package.
type Codec struct{}

// Name implements encoding.Codec.
func (Codec) Name() string { return Name }

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) { return Marshal(v) }

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error { return Unmarshal(data, v) }

// Marshal encodes one of the message shapes of this package.
func Marshal(v any) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("wire: cannot marshal %T", v)
	}
	return m.appendFields(make([]byte, 0, 64)), nil
}

// Unmarshal decodes data into one of the message shapes of this package.
// Unknown fields are skipped. Byte fields are copied, data is not retained.
func Unmarshal(data []byte, v any) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("wire: cannot unmarshal into %T", v)
	}
	return unmarshal(data, m)
}

func unmarshal(b []byte, m message) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		used, err := m.consumeField(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		b = b[used:]
	}
	return nil
}

// Encoding helpers. Scalars follow proto3 implicit presence (zero values are
// not written); the opt variants write any non-nil value, zero included.

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendUint64(b []byte, num protowire.Number, v uint64) []byte {
	return appendVarint(b, num, v)
}

func appendUint32(b []byte, num protowire.Number, v uint32) []byte {
	return appendVarint(b, num, uint64(v))
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	return appendVarint(b, num, uint64(v))
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	return appendVarint(b, num, uint64(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendOptUint64(b []byte, num protowire.Number, v *uint64) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, *v)
}

func appendOptUint32(b []byte, num protowire.Number, v *uint32) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(*v))
}

func appendOptBool(b []byte, num protowire.Number, v *bool) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(*v))
}

func appendOptString(b []byte, num protowire.Number, v *string) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, *v)
}

// appendOptBytes treats nil as absent and any non-nil slice, empty included, as present.
func appendOptBytes(b []byte, num protowire.Number, v []byte) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendOptCommitment(b []byte, num protowire.Number, v *CommitmentLevel) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(*v)))
}

func appendMessage(b []byte, num protowire.Number, m message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.appendFields(nil))
}

func appendStrings(b []byte, num protowire.Number, vs []string) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

func appendBytesList(b []byte, num protowire.Number, vs [][]byte) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, v)
	}
	return b
}

func appendPackedUint64(b []byte, num protowire.Number, vs []uint64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, v)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendList[T any, PT interface {
	*T
	message
}](b []byte, num protowire.Number, vs []*T) []byte {
	for _, v := range vs {
		if v == nil {
			v = new(T)
		}
		b = appendMessage(b, num, PT(v))
	}
	return b
}

// appendMap writes map entries sorted by key so equal maps encode to equal bytes.
func appendMap[T any, PT interface {
	*T
	message
}](b []byte, num protowire.Number, m map[string]*T) []byte {
	for _, key := range slices.Sorted(maps.Keys(m)) {
		v := m[key]
		if v == nil {
			v = new(T)
		}
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, key)
		entry = appendMessage(entry, 2, PT(v))
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// Decoding helpers. Each returns the number of bytes consumed from b.

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, ErrWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeUint64(typ protowire.Type, b []byte) (uint64, int, error) {
	return consumeVarint(typ, b)
}

func consumeUint32(typ protowire.Type, b []byte) (uint32, int, error) {
	v, n, err := consumeVarint(typ, b)
	return uint32(v), n, err
}

func consumeInt64(typ protowire.Type, b []byte) (int64, int, error) {
	v, n, err := consumeVarint(typ, b)
	return int64(v), n, err
}

func consumeInt32(typ protowire.Type, b []byte) (int32, int, error) {
	v, n, err := consumeVarint(typ, b)
	return int32(v), n, err
}

func consumeBool(typ protowire.Type, b []byte) (bool, int, error) {
	v, n, err := consumeVarint(typ, b)
	return v != 0, n, err
}

func consumeOptUint64(typ protowire.Type, b []byte, dst **uint64) (int, error) {
	v, n, err := consumeVarint(typ, b)
	if err != nil {
		return 0, err
	}
	*dst = &v
	return n, nil
}

func consumeOptUint32(typ protowire.Type, b []byte, dst **uint32) (int, error) {
	v, n, err := consumeUint32(typ, b)
	if err != nil {
		return 0, err
	}
	*dst = &v
	return n, nil
}

func consumeOptBool(typ protowire.Type, b []byte, dst **bool) (int, error) {
	v, n, err := consumeBool(typ, b)
	if err != nil {
		return 0, err
	}
	*dst = &v
	return n, nil
}

func consumeOptCommitment(typ protowire.Type, b []byte, dst **CommitmentLevel) (int, error) {
	v, n, err := consumeInt32(typ, b)
	if err != nil {
		return 0, err
	}
	c := CommitmentLevel(v)
	*dst = &c
	return n, nil
}

// consumeRaw returns the payload of a length-delimited field without copying it.
func consumeRaw(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, ErrWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	v, n, err := consumeRaw(typ, b)
	if err != nil {
		return nil, 0, err
	}
	return bytes.Clone(v), n, nil
}

func consumeString(typ protowire.Type, b []byte) (string, int, error) {
	v, n, err := consumeRaw(typ, b)
	return string(v), n, err
}

func consumeOptString(typ protowire.Type, b []byte, dst **string) (int, error) {
	v, n, err := consumeString(typ, b)
	if err != nil {
		return 0, err
	}
	*dst = &v
	return n, nil
}

func consumeDouble(typ protowire.Type, b []byte) (float64, int, error) {
	if typ != protowire.Fixed64Type {
		return 0, 0, ErrWireType
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return math.Float64frombits(v), n, nil
}

// consumeMessage merges a nested message into *dst, allocating it on first sight.
func consumeMessage[T any, PT interface {
	*T
	message
}](typ protowire.Type, b []byte, dst **T) (int, error) {
	raw, n, err := consumeRaw(typ, b)
	if err != nil {
		return 0, err
	}
	if *dst == nil {
		*dst = new(T)
	}
	if err := unmarshal(raw, PT(*dst)); err != nil {
		return 0, err
	}
	return n, nil
}

func consumeList[T any, PT interface {
	*T
	message
}](typ protowire.Type, b []byte, dst *[]*T) (int, error) {
	raw, n, err := consumeRaw(typ, b)
	if err != nil {
		return 0, err
	}
	v := new(T)
	if err := unmarshal(raw, PT(v)); err != nil {
		return 0, err
	}
	*dst = append(*dst, v)
	return n, nil
}

func consumeMap[T any, PT interface {
	*T
	message
}](typ protowire.Type, b []byte, dst *map[string]*T) (int, error) {
	raw, n, err := consumeRaw(typ, b)
	if err != nil {
		return 0, err
	}
	var key string
	value := new(T)
	for len(raw) > 0 {
		num, ftyp, tn := protowire.ConsumeTag(raw)
		if tn < 0 {
			return 0, protowire.ParseError(tn)
		}
		raw = raw[tn:]
		var used int
		switch num {
		case 1:
			key, used, err = consumeString(ftyp, raw)
		case 2:
			used, err = consumeMessage[T, PT](ftyp, raw, &value)
		default:
			used, err = skipField(num, ftyp, raw)
		}
		if err != nil {
			return 0, err
		}
		raw = raw[used:]
	}
	if *dst == nil {
		*dst = make(map[string]*T)
	}
	(*dst)[key] = value
	return n, nil
}

func consumeStrings(typ protowire.Type, b []byte, dst *[]string) (int, error) {
	v, n, err := consumeString(typ, b)
	if err != nil {
		return 0, err
	}
	*dst = append(*dst, v)
	return n, nil
}

func consumeBytesList(typ protowire.Type, b []byte, dst *[][]byte) (int, error) {
	v, n, err := consumeBytes(typ, b)
	if err != nil {
		return 0, err
	}
	*dst = append(*dst, v)
	return n, nil
}

// consumePackedUint64 accepts both the packed and the unpacked encoding of a repeated uint64.
func consumePackedUint64(typ protowire.Type, b []byte, dst *[]uint64) (int, error) {
	if typ == protowire.VarintType {
		v, n, err := consumeVarint(typ, b)
		if err != nil {
			return 0, err
		}
		*dst = append(*dst, v)
		return n, nil
	}
	raw, n, err := consumeRaw(typ, b)
	if err != nil {
		return 0, err
	}
	for len(raw) > 0 {
		v, vn := protowire.ConsumeVarint(raw)
		if vn < 0 {
			return 0, protowire.ParseError(vn)
		}
		*dst = append(*dst, v)
		raw = raw[vn:]
	}
	return n, nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
