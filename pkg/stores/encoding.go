package stores

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/openfroyo/bmi/pkg/bmi"
)

// EncodeValues packs v as little-endian IEEE-754 elements.
func EncodeValues(v bmi.Values) []byte {
	switch b := v.(type) {
	case bmi.Float64Values:
		out := make([]byte, 8*len(b))
		for i, x := range b {
			binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(x))
		}
		return out
	case bmi.Float32Values:
		out := make([]byte, 4*len(b))
		for i, x := range b {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(x))
		}
		return out
	default:
		return nil
	}
}

// DecodeValues unpacks data produced by EncodeValues.
func DecodeValues(t bmi.ElementType, data []byte) (bmi.Values, error) {
	size := t.Size()
	if size == 0 {
		return nil, fmt.Errorf("invalid element type: %s", t)
	}
	if len(data)%size != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %s elements", len(data), t)
	}
	n := len(data) / size
	switch t {
	case bmi.Float32:
		out := make(bmi.Float32Values, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return out, nil
	default:
		out := make(bmi.Float64Values, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
		return out, nil
	}
}
