package stepstore

import (
	"encoding/binary"
	"fmt"
	"math"
)

const recordMagic = 'S'

// encodeRecord lays out a variable payload as
// magic | kind | rank (uvarint) | dims (uvarint...) | little-endian elements.
func encodeRecord(v Variable, n int, elem func(i int) uint64) []byte {
	buf := make([]byte, 0, 2+binary.MaxVarintLen64*(len(v.Shape)+1)+8*n)
	buf = append(buf, recordMagic, byte(v.Kind))
	buf = binary.AppendUvarint(buf, uint64(len(v.Shape)))
	for _, d := range v.Shape {
		buf = binary.AppendUvarint(buf, uint64(d))
	}
	for i := 0; i < n; i++ {
		buf = binary.LittleEndian.AppendUint64(buf, elem(i))
	}
	return buf
}

func encodeFloat64s(v Variable, data []float64) []byte {
	return encodeRecord(v, len(data), func(i int) uint64 { return math.Float64bits(data[i]) })
}

func encodeInt64(v Variable, n int64) []byte {
	return encodeRecord(v, 1, func(int) uint64 { return uint64(n) })
}

type record struct {
	kind    Kind
	shape   []int
	payload []byte
}

func decodeRecord(raw []byte) (record, error) {
	if len(raw) < 3 || raw[0] != recordMagic {
		return record{}, fmt.Errorf("%w: bad header", ErrCorruptRecord)
	}
	rec := record{kind: Kind(raw[1])}
	rest := raw[2:]
	rank, n := binary.Uvarint(rest)
	if n <= 0 {
		return record{}, fmt.Errorf("%w: bad rank", ErrCorruptRecord)
	}
	rest = rest[n:]
	count := 1
	for i := uint64(0); i < rank; i++ {
		d, n := binary.Uvarint(rest)
		if n <= 0 {
			return record{}, fmt.Errorf("%w: bad dim %d", ErrCorruptRecord, i)
		}
		rest = rest[n:]
		rec.shape = append(rec.shape, int(d))
		count *= int(d)
	}
	if len(rest) != 8*count {
		return record{}, fmt.Errorf("%w: payload is %d bytes, want %d", ErrCorruptRecord, len(rest), 8*count)
	}
	rec.payload = rest
	return rec, nil
}

func (r record) asFloat64s(dst []float64) error {
	if r.kind != Float64 {
		return fmt.Errorf("%w: stored %s", ErrKindMismatch, r.kind)
	}
	if len(dst)*8 != len(r.payload) {
		return fmt.Errorf("%w: dst has %d elements, stored %d", ErrShapeMismatch, len(dst), len(r.payload)/8)
	}
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(r.payload[8*i:]))
	}
	return nil
}

func (r record) asInt64() (int64, error) {
	if r.kind != Int64 {
		return 0, fmt.Errorf("%w: stored %s", ErrKindMismatch, r.kind)
	}
	if len(r.payload) != 8 {
		return 0, fmt.Errorf("%w: not a scalar", ErrShapeMismatch)
	}
	return int64(binary.LittleEndian.Uint64(r.payload)), nil
}
