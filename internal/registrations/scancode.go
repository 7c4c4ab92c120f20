package registrations

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"
)

const (
	scanCodePrefix    = "QR-"
	scanCodeRandomLen = 9
	base36            = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewScanCode returns QR-<unix millis>-<9 random base36 chars>. The code is
// printed in the QR image and never changes once stored.
func NewScanCode(now time.Time) (string, error) {
	b := make([]byte, scanCodeRandomLen)
	max := big.NewInt(int64(len(base36)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = base36[n.Int64()]
	}
	return scanCodePrefix + strconv.FormatInt(now.UnixMilli(), 10) + "-" + string(b), nil
}
