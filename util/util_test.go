package util

import "testing"

import "github.com/stretchr/testify/assert"

func TestRound(t *testing.T) {
	assert.Equal(t, 0, Rounddown(1023, 1024))
	assert.Equal(t, 1024, Roundup(1, 1024))
	assert.Equal(t, 2048, Roundup(2048, 1024))
	assert.Equal(t, 3, Min(3, 7))
	assert.Equal(t, 7, Max(3, 7))
}

func TestReadnWriten(t *testing.T) {
	buf := make([]uint8, 8)
	Writen(buf, 4, 2, 0x0a0b0c0d)
	assert.Equal(t, []uint8{0, 0, 0x0d, 0x0c, 0x0b, 0x0a, 0, 0}, buf)
	assert.Equal(t, 0x0a0b0c0d, Readn(buf, 4, 2))
	Writen(buf, 4, 0, -1)
	assert.Equal(t, -1, Readn(buf, 4, 0))
	assert.Equal(t, 0xffff, Readn(buf, 2, 0))
	assert.Panics(t, func() { Readn(buf, 3, 0) })
}
