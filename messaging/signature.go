package messaging

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sign and Verify model the keyed-hash authentication stub of §4.1. This is
// explicitly not real cryptographic strength (§1 Non-goals): the private
// key is a predictable string derived from the sender's unique-value, so
// Verify can reconstruct the key a claimed sender *would* hold and check
// the hash without a PKI. The only property this buys the protocol is that
// a node cannot produce a signature that Verify will accept under a sender
// id other than its own.

const sigLen = 16

// PrivateKey returns the private key string for a node's unique-value, of
// the form "key_"+unique_value (§4.1).
func PrivateKey(uniqueValue string) string {
	return "key_" + uniqueValue
}

// Sign returns the first 16 hex characters of SHA-256(data + ":" + key).
func Sign(data string, privateKey string) string {
	sum := sha256.Sum256([]byte(data + ":" + privateKey))
	return hex.EncodeToString(sum[:])[:sigLen]
}

// Verify recomputes SHA-256(data + ":" + "key_"+senderID) and compares its
// first 16 hex characters against sig. A FAULTY node claiming another id's
// signature will fail here, because it does not hold that id's key.
func Verify(data string, sig string, senderID string) bool {
	return Sign(data, PrivateKey(senderID)) == sig
}
