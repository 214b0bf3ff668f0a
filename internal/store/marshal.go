package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normKey normalizes a user-chosen name to NFC before it becomes a
// database key. Result box names come straight from experiment files
// and the same visible string can arrive composed or decomposed.
func normKey(name string) string {
	return norm.NFC.String(name)
}

// marshalWords encodes instruction words as a little-endian blob.
func marshalWords(words []uint32) []byte {
	buf := make([]byte, 4*len(words))
	for n, w := range words {
		binary.LittleEndian.PutUint32(buf[4*n:], w)
	}
	return buf
}

func unmarshalWords(buf []byte) ([]uint32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("word blob length %d is not a multiple of 4", len(buf))
	}
	words := make([]uint32, len(buf)/4)
	for n := range words {
		words[n] = binary.LittleEndian.Uint32(buf[4*n:])
	}
	return words, nil
}

// marshalStatic encodes static region values as a little-endian blob.
func marshalStatic(values []int32) []byte {
	buf := make([]byte, 4*len(values))
	for n, v := range values {
		binary.LittleEndian.PutUint32(buf[4*n:], uint32(v))
	}
	return buf
}

func unmarshalStatic(buf []byte) ([]int32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("static blob length %d is not a multiple of 4", len(buf))
	}
	values := make([]int32, len(buf)/4)
	for n := range values {
		values[n] = int32(binary.LittleEndian.Uint32(buf[4*n:]))
	}
	return values, nil
}

// marshalValues encodes result values as a little-endian float64 blob.
func marshalValues(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for n, v := range values {
		binary.LittleEndian.PutUint64(buf[8*n:], math.Float64bits(v))
	}
	return buf
}

func unmarshalValues(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("value blob length %d is not a multiple of 8", len(buf))
	}
	values := make([]float64, len(buf)/8)
	for n := range values {
		values[n] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*n:]))
	}
	return values, nil
}

// marshalShape renders a result shape as "2x3x4". The empty shape (a
// scalar) renders as the empty string.
func marshalShape(shape []int) string {
	parts := make([]string, len(shape))
	for n, d := range shape {
		parts[n] = strconv.Itoa(d)
	}
	return strings.Join(parts, "x")
}

func unmarshalShape(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, "x")
	shape := make([]int, len(parts))
	for n, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad shape %q: %w", s, err)
		}
		shape[n] = d
	}
	return shape, nil
}

// marshalCounts encodes state counts as JSON TEXT. Nil maps encode as
// the empty string so numeric results carry no counts column noise.
func marshalCounts(counts map[string]uint64) (string, error) {
	if len(counts) == 0 {
		return "", nil
	}
	data, err := json.Marshal(counts)
	if err != nil {
		return "", fmt.Errorf("marshal counts: %w", err)
	}
	return string(data), nil
}

func unmarshalCounts(data string) (map[string]uint64, error) {
	if data == "" {
		return nil, nil
	}
	var counts map[string]uint64
	if err := json.Unmarshal([]byte(data), &counts); err != nil {
		return nil, fmt.Errorf("unmarshal counts: %w", err)
	}
	return counts, nil
}
