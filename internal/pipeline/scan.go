package pipeline

import (
	"encoding/binary"

	"drillx/pkg/hashing/core"
)

// NoncesFrom lays out n consecutive nonces starting at start, lane i
// receiving start+i
func NoncesFrom(start uint64, n int) []byte {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, n*core.NonceSize)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(buf[i*core.NonceSize:], start+uint64(i))
	}
	return buf
}

// BestResult is the highest-difficulty lane of a batch
type BestResult struct {
	Lane       int           `json:"lane"`
	Nonce      uint64        `json:"nonce"`
	Difficulty uint32        `json:"difficulty"`
	Solution   core.Solution `json:"solution"`
	Hash       [32]byte      `json:"-"`
	Found      bool          `json:"found"`
}

// BestOf scans a batch's digests and returns the lane whose solution hash
// has the most leading zero bits. Ties go to the lowest lane; empty digests
// are skipped.
func BestOf(digests, nonces []byte) (BestResult, error) {
	const op = "BestOf"

	if len(digests)%core.DigestSize != 0 {
		return BestResult{}, core.NewConfigError(op, "digest buffer of %d bytes is not a multiple of %d", len(digests), core.DigestSize)
	}
	n := len(digests) / core.DigestSize
	if want := n * core.NonceSize; len(nonces) != want {
		return BestResult{}, core.NewInvalidNonceError(op, len(nonces), want)
	}

	best := BestResult{Lane: core.NoLane}
	for lane := 0; lane < n; lane++ {
		s, err := core.DecodeDigest(digests[lane*core.DigestSize : (lane+1)*core.DigestSize])
		if err != nil {
			return BestResult{}, err
		}
		if s.IsEmpty() {
			continue
		}

		nonce := nonces[lane*core.NonceSize : (lane+1)*core.NonceSize]
		hash := s.Hash(nonce)
		diff := core.Difficulty(hash)
		if !best.Found || diff > best.Difficulty {
			best = BestResult{
				Lane:       lane,
				Nonce:      binary.LittleEndian.Uint64(nonce),
				Difficulty: diff,
				Solution:   s,
				Hash:       hash,
				Found:      true,
			}
		}
	}
	return best, nil
}
