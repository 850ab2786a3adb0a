package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTexts(t *testing.T) {
	known := []int{
		ErrDontUseSpace,
		ErrMoreThanOneOutputFile,
		ErrMoreThanOneInputFile,
		ErrCtrlC,
		ErrOnlySetThreadCountOnce,
	}
	for _, code := range known {
		assert.NotEqual(t, "Unknown error", errorText(code), "code %d", code)
	}
	assert.Equal(t, "Unknown error", errorText(99))
}
