package diffrecord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBinaryDetectsImageSignature(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	png = append(png, make([]byte, 32)...)
	assert.True(t, isBinary(png))
}

func TestIsBinaryFalseForPlainText(t *testing.T) {
	assert.False(t, isBinary([]byte("package diffrecord\n\nfunc main() {}\n")))
}

func TestIsBinaryFalseForEmpty(t *testing.T) {
	assert.False(t, isBinary(nil))
}
