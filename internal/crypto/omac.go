package crypto

import "crypto/aes"

// CMAC computes OMAC1/CMAC (NIST SP 800-38B) of msg under AES-128 key key.
// EAX's three per-packet invocations (omac1 below) are the same
// construction prefixed with a small tweak block; CMAC itself is exported
// separately so it can be tested against the NIST vectors and reused
// outside the EAX construction.
func CMAC(key, msg []byte) ([blockSize]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return [blockSize]byte{}, err
	}
	var zero [blockSize]byte
	return cmacChain(block, zero, msg), nil
}

// omac1 computes EAX's OMAC_t(msg): CMAC keyed the same as the block
// cipher, but with the chain seeded by AES(K, tweakBlock) instead of the
// zero block, where tweakBlock is 15 zero bytes followed by tweak (0, 1 or
// 2, selecting which of EAX's three MACs -- nonce, header, ciphertext --
// this is). This is equivalent to running plain CMAC over
// (tweakBlock || msg). For an empty msg the tweak block is itself the
// complete final block, so it is finished with K1 directly.
func omac1(block blockCipher, tweak byte, msg []byte) [blockSize]byte {
	var tweakBlock [blockSize]byte
	tweakBlock[blockSize-1] = tweak

	if len(msg) == 0 {
		k1, _ := omacSubkeys(block)
		xorBlockWith(tweakBlock[:], k1)
		var tag [blockSize]byte
		block.Encrypt(tag[:], tweakBlock[:])
		return tag
	}

	var y0 [blockSize]byte
	block.Encrypt(y0[:], tweakBlock[:])

	return cmacChain(block, y0, msg)
}

// cmacChain runs the CBC-MAC' chaining at the heart of OMAC1/CMAC starting
// from chain value y0, then finishes the last (possibly padded) block with
// the K1/K2 subkey per NIST SP 800-38B.
func cmacChain(block blockCipher, y0 [blockSize]byte, msg []byte) [blockSize]byte {
	k1, k2 := omacSubkeys(block)

	full := len(msg) / blockSize
	if len(msg) > 0 && len(msg)%blockSize == 0 {
		full--
	}

	y := y0
	off := 0
	for i := 0; i < full; i++ {
		xorBlock(&y, msg[off:off+blockSize])
		block.Encrypt(y[:], y[:])
		off += blockSize
	}

	last := make([]byte, blockSize)
	rem := msg[off:]
	if len(rem) == blockSize {
		copy(last, rem)
		xorBlockWith(last, k1)
	} else {
		copy(last, rem)
		last[len(rem)] = 0x80
		xorBlockWith(last, k2)
	}

	var tag [blockSize]byte
	xorBlock(&y, last)
	block.Encrypt(tag[:], y[:])
	return tag
}

// omacSubkeys derives K1, K2 from AES(K, 0^128) per NIST SP 800-38B, using
// the standard GF(2^128) doubling with a conditional 0x87 XOR.
func omacSubkeys(block blockCipher) (k1, k2 [blockSize]byte) {
	var zero, l [blockSize]byte
	block.Encrypt(l[:], zero[:])

	k1 = gfDouble(l)
	k2 = gfDouble(k1)
	return k1, k2
}

// gfDouble doubles a 128-bit value in GF(2^128) with the AES reduction
// polynomial (0x87), as used to derive CMAC subkeys.
func gfDouble(in [blockSize]byte) [blockSize]byte {
	var out [blockSize]byte
	msb := in[0] & 0x80
	carry := byte(0)
	for i := blockSize - 1; i >= 0; i-- {
		out[i] = (in[i] << 1) | carry
		carry = in[i] >> 7
	}
	if msb != 0 {
		out[blockSize-1] ^= 0x87
	}
	return out
}

func xorBlock(dst *[blockSize]byte, src []byte) {
	for i := 0; i < blockSize && i < len(src); i++ {
		dst[i] ^= src[i]
	}
}

func xorBlockWith(dst []byte, src [blockSize]byte) {
	for i := 0; i < blockSize; i++ {
		dst[i] ^= src[i]
	}
}

// blockCipher is the minimal interface eax.go and omac.go need from
// crypto/aes.NewCipher's returned cipher.Block.
type blockCipher interface {
	Encrypt(dst, src []byte)
}

const blockSize = aes.BlockSize
