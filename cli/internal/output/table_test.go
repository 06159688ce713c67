package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatGas(t *testing.T) {
	cases := map[uint64]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		104480:  "104,480",
		1234567: "1,234,567",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatGas(in))
	}
}

func TestShortenSubjectID(t *testing.T) {
	assert.Equal(t, "0xdeadbeef", shortenSubjectID("0xdeadbeef"))
	assert.Equal(t, "0xdeadbeefde", shortenSubjectID("0xdeadbeefdeadbeefdeadbeef"))
}
