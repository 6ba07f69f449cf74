// Package crypto implements the primitives the TS3 protocol core needs from
// scratch: AES-128 EAX (OMAC1/CMAC + CTR), Ed25519 point arithmetic and
// Diffie-Hellman, the license-key public-key derivation chain, the
// modular-squaring connection puzzle, and the legacy P-256 handshake leg.
//
// # Contents
//
//   - AES-128 EAX authenticated encryption with an 8-byte truncated tag
//     (eax.go), built on OMAC1/CMAC (omac.go).
//   - Ed25519 scalar clamping, point addition/scalar multiplication and DH
//     (ed25519point.go), used both for the session handshake and the
//     license-key derivation chain (license.go).
//   - The client's modular-squaring puzzle solver (puzzle.go).
//   - The historical P-256 keypair carried in the `omega` handshake field
//     (p256.go).
//
// All functions operate on fixed-size arrays or plain byte slices and avoid
// hidden global state; key material lives only for the duration of one
// handshake/session and is discarded with it.
package crypto
