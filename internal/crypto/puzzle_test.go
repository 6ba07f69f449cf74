package crypto

import "testing"

func TestSolvePuzzleSmallCase(t *testing.T) {
	var x, n [64]byte
	x[63] = 5
	n[63] = 97

	// 5^(2^3) mod 97 = 5^8 mod 97 = 6, by repeated squaring:
	// 5^2=25, 25^2=625=43 mod97, 43^2=1849=6 mod97.
	got, err := SolvePuzzle(x, n, 3)
	if err != nil {
		t.Fatalf("SolvePuzzle: %v", err)
	}
	if got[63] != 6 {
		t.Fatalf("SolvePuzzle = %d, want 6", got[63])
	}
	for i := 0; i < 63; i++ {
		if got[i] != 0 {
			t.Fatalf("SolvePuzzle result has unexpected high bytes set: %x", got)
		}
	}
}

func TestSolvePuzzleZeroLevel(t *testing.T) {
	var x, n [64]byte
	x[63] = 42
	n[63] = 97

	got, err := SolvePuzzle(x, n, 0)
	if err != nil {
		t.Fatalf("SolvePuzzle: %v", err)
	}
	if got[63] != 42 {
		t.Fatalf("SolvePuzzle with level 0 = %d, want 42 (x mod n unchanged)", got[63])
	}
}

func TestSolvePuzzleRejectsLevelAboveCeiling(t *testing.T) {
	var x, n [64]byte
	x[63] = 5
	n[63] = 97

	_, err := SolvePuzzle(x, n, MaxPuzzleLevel+1)
	if err != ErrPuzzleLevelTooHigh {
		t.Fatalf("SolvePuzzle with level above ceiling = %v, want ErrPuzzleLevelTooHigh", err)
	}
}

func TestSolvePuzzleRejectsZeroModulus(t *testing.T) {
	var x, n [64]byte
	x[63] = 5

	if _, err := SolvePuzzle(x, n, 3); err == nil {
		t.Fatalf("SolvePuzzle with zero modulus succeeded, want error")
	}
}
