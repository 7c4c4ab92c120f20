package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQRCodeKey(t *testing.T) {
	assert.Equal(t, "qrcodes/ev-1/reg-9.png", QRCodeKey("ev-1", "reg-9"))
}

func TestPresignExpireDefault(t *testing.T) {
	s := &S3{}
	assert.Equal(t, 15*60, int(s.PresignExpire().Seconds()))
	s.cfg.PresignExpireMinutes = 2
	assert.Equal(t, 120, int(s.PresignExpire().Seconds()))
}
