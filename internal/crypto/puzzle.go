package crypto

import (
	"errors"
	"math/big"
)

// MaxPuzzleLevel caps the number of squarings the client will perform to
// solve the server's connection puzzle (§4.1 Init3, §4.3.4), preventing a
// hostile or misconfigured server from trivially denying service.
const MaxPuzzleLevel = 10_000_000

// ErrPuzzleLevelTooHigh is returned when the server's requested level
// exceeds MaxPuzzleLevel.
var ErrPuzzleLevelTooHigh = errors.New("crypto: puzzle level exceeds safety ceiling")

// SolvePuzzle computes y = x^(2^level) mod n by `level` successive
// squarings, per §4.3.4. x, n and the returned y are all 64-byte big-endian
// unsigned integers.
func SolvePuzzle(x, n [64]byte, level uint32) ([64]byte, error) {
	var y [64]byte
	if level > MaxPuzzleLevel {
		return y, ErrPuzzleLevelTooHigh
	}

	modulus := new(big.Int).SetBytes(n[:])
	if modulus.Sign() == 0 {
		return y, errors.New("crypto: puzzle modulus is zero")
	}

	cur := new(big.Int).SetBytes(x[:])
	cur.Mod(cur, modulus)
	for i := uint32(0); i < level; i++ {
		cur.Mul(cur, cur)
		cur.Mod(cur, modulus)
	}

	cur.FillBytes(y[:])
	return y, nil
}
