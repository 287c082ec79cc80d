package envelope

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// Value is a node of a request content map.
type Value interface {
	hash() [32]byte
}

// Blob is a byte string value.
type Blob []byte

// Text is a UTF-8 string value.
type Text string

// Nat is a natural number value.
type Nat uint64

// Array is a sequence of values.
type Array []Value

// Map is a map of text keys to values.
type Map map[string]Value

func (b Blob) hash() [32]byte {
	return sha256.Sum256(b)
}

func (t Text) hash() [32]byte {
	return sha256.Sum256([]byte(t))
}

func (n Nat) hash() [32]byte {
	// Go's uvarint encoding is unsigned LEB128.
	buf := make([]byte, binary.MaxVarintLen64)
	return sha256.Sum256(buf[:binary.PutUvarint(buf, uint64(n))])
}

func (a Array) hash() [32]byte {
	h := sha256.New()
	for _, v := range a {
		elem := v.hash()
		h.Write(elem[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (m Map) hash() [32]byte {
	fields := make([][]byte, 0, len(m))
	for k, v := range m {
		keyHash := sha256.Sum256([]byte(k))
		valueHash := v.hash()
		fields = append(fields, append(keyHash[:], valueHash[:]...))
	}
	sort.Slice(fields, func(i, j int) bool {
		return bytes.Compare(fields[i], fields[j]) < 0
	})

	h := sha256.New()
	for _, f := range fields {
		h.Write(f)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashOfMap returns the representation-independent hash of m.
func HashOfMap(m Map) [32]byte {
	return m.hash()
}
