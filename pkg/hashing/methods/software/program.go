package software

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"golang.org/x/crypto/blake2b"

	"drillx/pkg/hashing/core"
)

// program is a keyed hash function derived from (challenge, nonce).
// Word i of a lane's hash space is program.eval(i).
type program struct {
	k [8]uint64
}

func compileProgram(seed []byte) program {
	sum := blake2b.Sum512(seed)

	var p program
	for i := range p.k {
		p.k[i] = binary.LittleEndian.Uint64(sum[i*8:])
	}
	return p
}

func sipRound(v0, v1, v2, v3 uint64) (uint64, uint64, uint64, uint64) {
	v0 += v1
	v1 = bits.RotateLeft64(v1, 13)
	v1 ^= v0
	v0 = bits.RotateLeft64(v0, 32)
	v2 += v3
	v3 = bits.RotateLeft64(v3, 16)
	v3 ^= v2
	v0 += v3
	v3 = bits.RotateLeft64(v3, 21)
	v3 ^= v0
	v2 += v1
	v1 = bits.RotateLeft64(v1, 17)
	v1 ^= v2
	v2 = bits.RotateLeft64(v2, 32)
	return v0, v1, v2, v3
}

func (p *program) eval(i uint64) uint64 {
	v0 := p.k[0] ^ i
	v1 := p.k[1]
	v2 := p.k[2] ^ (i << 32) ^ i
	v3 := p.k[3]

	v0, v1, v2, v3 = sipRound(v0, v1, v2, v3)
	v0, v1, v2, v3 = sipRound(v0, v1, v2, v3)

	v0 ^= p.k[4]
	v1 ^= p.k[5]
	v2 ^= p.k[6]
	v3 ^= p.k[7]

	v0, v1, v2, v3 = sipRound(v0, v1, v2, v3)
	v0, v1, v2, v3 = sipRound(v0, v1, v2, v3)

	return v0 ^ v1 ^ v2 ^ v3
}

// HashingContext holds a challenge-bound seed buffer; only the nonce tail
// changes between generations.
type HashingContext struct {
	seed [core.ChallengeSize + core.NonceSize]byte
}

func newHashingContext(challenge []byte) (*HashingContext, error) {
	if len(challenge) != core.ChallengeSize {
		return nil, fmt.Errorf("challenge must be exactly %d bytes, got %d", core.ChallengeSize, len(challenge))
	}
	hc := &HashingContext{}
	copy(hc.seed[:core.ChallengeSize], challenge)
	return hc, nil
}

func (hc *HashingContext) compile(nonce []byte) (program, error) {
	if len(nonce) != core.NonceSize {
		return program{}, fmt.Errorf("nonce must be exactly %d bytes, got %d", core.NonceSize, len(nonce))
	}
	copy(hc.seed[core.ChallengeSize:], nonce)
	return compileProgram(hc.seed[:]), nil
}

// GenerateHashSpace fills out with IndexSpace words for nonce
func (hc *HashingContext) GenerateHashSpace(nonce []byte, out []uint64) error {
	if len(out) != core.IndexSpace {
		return fmt.Errorf("hash space must hold %d words, got %d", core.IndexSpace, len(out))
	}
	p, err := hc.compile(nonce)
	if err != nil {
		return err
	}
	for i := range out {
		out[i] = p.eval(uint64(i))
	}
	return nil
}

// Release is a no-op; the seed buffer is garbage collected
func (hc *HashingContext) Release() {}
