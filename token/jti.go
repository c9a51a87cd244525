package token

import (
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// NewJTI returns a fresh replay nonce for a client assertion or request
// object: a random UUID rendered as a large decimal integer, which is the
// format the bank's token endpoint expects. Every assertion gets its own.
func NewJTI() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	n, _ := new(big.Int).SetString(hex, 16)
	return n.String()
}
