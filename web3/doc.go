// Package web3 proves control of an Ethereum wallet by signature.
//
// A challenge is a random 32-byte nonce embedded in a human-readable message
// that the wallet signs with personal_sign. Verification hashes the message the
// EIP-191 way,
//
//	keccak256("\x19Ethereum Signed Message:\n" + len(message) + message)
//
// recovers the secp256k1 public key from the 65-byte r||s||v signature and
// derives the address as the last 20 bytes of keccak256 of the uncompressed key.
// Challenges are single use and expire after five minutes by default.
//
// # What this package must NOT do
//
//   - Create or look up accounts.
//   - Trust an address that was not recovered from a signature.
package web3
