package errx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFailureWraps(t *testing.T) {
	cause := errors.New("libclang returned non-zero")
	err := ParseFailure("/src/a.cpp", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "/src/a.cpp")
	assert.Equal(t, KindParseFailure, err.Kind)
}

func TestJobAbortedHasNoUnderlying(t *testing.T) {
	err := JobAborted("/src/a.cpp")
	assert.Nil(t, err.Underlying)
	assert.Equal(t, KindJobAborted, err.Kind)
}

func TestConfigErrUnwraps(t *testing.T) {
	cause := errors.New("out of range")
	err := NewConfigErr("ThreadPoolSize", "-1", cause)
	assert.ErrorIs(t, err, cause)
}
