package guest

import (
	"crypto/rand"
	"math/big"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// TokenLength is the fixed length of every generated anonymous token, prefix included.
const TokenLength = 36

// NewToken returns prefix followed by random lowercase alphanumerics, length characters in total.
// Tokens are meant to be collision-resistant identifiers, not secrets.
func NewToken(prefix string, length int) string {
	n := length - len(prefix)
	if n <= 0 {
		return prefix
	}

	buf := make([]byte, n)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			panic("guest: reading random source: " + err.Error())
		}
		buf[i] = tokenAlphabet[idx.Int64()]
	}
	return prefix + string(buf)
}
