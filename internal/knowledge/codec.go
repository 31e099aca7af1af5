package knowledge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidVector mirrors the pack's vector-store sentinel for a nil or
// undersized encoded vector.
var ErrInvalidVector = errors.New("knowledge: invalid vector")

// encodeVector serializes a float32 vector as a length-prefixed
// little-endian byte blob for SQLite BLOB storage.
func encodeVector(vector []float32) ([]byte, error) {
	if vector == nil {
		return nil, ErrInvalidVector
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, int32(len(vector))); err != nil {
		return nil, fmt.Errorf("encode vector length: %w", err)
	}
	for _, v := range vector {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("encode vector value: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// decodeVector is the inverse of encodeVector.
func decodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, ErrInvalidVector
	}
	buf := bytes.NewReader(data)

	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("decode vector length: %w", err)
	}
	if length < 0 {
		return nil, ErrInvalidVector
	}
	if length == 0 {
		return []float32{}, nil
	}
	if buf.Len() < int(length)*4 {
		return nil, ErrInvalidVector
	}

	vector := make([]float32, length)
	for i := range vector {
		if err := binary.Read(buf, binary.LittleEndian, &vector[i]); err != nil {
			return nil, fmt.Errorf("decode vector value at %d: %w", i, err)
		}
	}
	return vector, nil
}
