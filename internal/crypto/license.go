package crypto

import (
	"bytes"
	"encoding/hex"

	"filippo.io/edwards25519"
)

// rootKeyHex is the TS3 license chain's fixed root point R0 (§4.3.2).
const rootKeyHex = "cd0de2aed46345509a7e3cfd8f68b3dc7555b29dccec73cd18750f993812408a"

// maxLicenseBlocks bounds the number of license blocks parsed, per §4.3.2
// ("up to 8").
const maxLicenseBlocks = 8

// blockTypeFixed42 is the one block type whose length is always exactly 42
// bytes; every other type extends to the next NUL byte (inclusive).
const blockTypeFixed42 = 32

// DeriveLicensePublicKey walks the license blob's block chain and returns
// the server's long-term Ed25519 public key as described in §4.3.2.
//
// Invalid block public keys (not on the curve) are skipped, not fatal; a
// structurally truncated blob simply stops the chain early and returns
// whatever point has been accumulated so far.
func DeriveLicensePublicKey(license []byte) ([32]byte, error) {
	root, err := rootPoint()
	if err != nil {
		return [32]byte{}, err
	}

	acc := root
	blocks := splitLicenseBlocks(license)
	for _, block := range blocks {
		if len(block) < 33 {
			continue
		}
		pub := block[:32]
		scalar, err := ScalarFromSHA512(block[32:])
		if err != nil {
			continue
		}
		if next, ok := AddPoint(acc, scalar, pub); ok {
			acc = next
		}
	}

	var out [32]byte
	copy(out[:], acc.Bytes())
	return out, nil
}

// splitLicenseBlocks slices the raw license blob (after its 1-byte version
// prefix) into consecutive blocks, up to maxLicenseBlocks, per the
// fixed/variable length rule in §4.3.2.
func splitLicenseBlocks(license []byte) [][]byte {
	if len(license) < 1 {
		return nil
	}
	data := license[1:]

	var blocks [][]byte
	pos := 0
	for len(blocks) < maxLicenseBlocks && pos+33 <= len(data) {
		tag := data[pos+32]
		var blockLen int
		if tag == blockTypeFixed42 {
			blockLen = 42
		} else {
			nul := bytes.IndexByte(data[pos+33:], 0x00)
			if nul < 0 {
				blockLen = len(data) - pos
			} else {
				blockLen = 33 + nul + 1
			}
		}
		if pos+blockLen > len(data) {
			blockLen = len(data) - pos
		}
		if blockLen < 33 {
			break
		}
		blocks = append(blocks, data[pos:pos+blockLen])
		pos += blockLen
	}
	return blocks
}

func rootPoint() (*edwards25519.Point, error) {
	raw, err := hex.DecodeString(rootKeyHex)
	if err != nil {
		return nil, err
	}
	return new(edwards25519.Point).SetBytes(raw)
}
