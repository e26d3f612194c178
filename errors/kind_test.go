package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindRoundTrip(t *testing.T) {
	err := NewKind(KindUnknownGroup, "group g1 not found")
	assert.Equal(t, KindUnknownGroup, KindOf(err))
}

func TestKindDefaultsToInternal(t *testing.T) {
	err := New("plain error")
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestWrapKindPreservesMessage(t *testing.T) {
	base := New("dial tcp: refused")
	err := WrapKind(base, KindConnection, "connect to core")
	assert.Equal(t, KindConnection, KindOf(err))
	assert.Contains(t, err.Error(), "dial tcp: refused")
}
