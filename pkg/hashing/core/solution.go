package core

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sort"

	"golang.org/x/crypto/sha3"
)

// Solution is an assignment of hash space indices satisfying the solver's
// constraint, in the solver's canonical order
type Solution [SolutionIndices]uint16

// DecodeDigest parses a lane digest
func DecodeDigest(digest []byte) (Solution, error) {
	var s Solution
	if len(digest) != DigestSize {
		return s, fmt.Errorf("digest must be exactly %d bytes, got %d", DigestSize, len(digest))
	}
	for i := range s {
		s[i] = binary.LittleEndian.Uint16(digest[i*2:])
	}
	return s, nil
}

// Digest encodes the solution as 8 little-endian u16 values
func (s Solution) Digest() [DigestSize]byte {
	var d [DigestSize]byte
	s.PutDigest(d[:])
	return d
}

// PutDigest writes the encoded solution into dst, which must hold DigestSize bytes
func (s Solution) PutDigest(dst []byte) {
	for i, idx := range s {
		binary.LittleEndian.PutUint16(dst[i*2:], idx)
	}
}

// IsEmpty reports the "no solution" digest value. A real solution has
// distinct indices so it can never be all zero.
func (s Solution) IsEmpty() bool {
	return s == Solution{}
}

// Sorted returns the indices in ascending order
func (s Solution) Sorted() Solution {
	out := s
	sort.Slice(out[:], func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Hash computes Keccak-256 over the ascending indices followed by the nonce
func (s Solution) Hash(nonce []byte) [32]byte {
	sorted := s.Sorted().Digest()

	h := sha3.NewLegacyKeccak256()
	h.Write(sorted[:])
	h.Write(nonce)

	var out [32]byte
	h.Sum(out[:0])
	return out
}

// Difficulty returns the number of leading zero bits of hash
func Difficulty(hash [32]byte) uint32 {
	var n uint32
	for _, b := range hash {
		if b != 0 {
			return n + uint32(bits.LeadingZeros8(b))
		}
		n += 8
	}
	return n
}

// NonceBytes encodes a nonce the way lanes receive it
func NonceBytes(nonce uint64) [NonceSize]byte {
	var b [NonceSize]byte
	binary.LittleEndian.PutUint64(b[:], nonce)
	return b
}
