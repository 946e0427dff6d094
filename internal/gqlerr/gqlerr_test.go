package gqlerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_WrappedChain(t *testing.T) {
	base := New(KindArgument, "unknown argument %q", "foo")
	wrapped := fmt.Errorf("planning failed: %w", base)

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindArgument, kind)
	assert.True(t, Is(wrapped, KindArgument))
	assert.False(t, Is(wrapped, KindDatabase))
}

func TestKindOf_Joined(t *testing.T) {
	joined := errors.Join(errors.New("plain"), New(KindSchema, "bad field"))
	assert.True(t, Is(joined, KindSchema))
}

func TestPublic_HidesInternalDetail(t *testing.T) {
	dbErr := Wrap(KindDatabase, errors.New("bolt: MATCH (n:`Secret`) failed for user admin"), "fragment 2 failed")
	kind, msg := Public(dbErr)
	assert.Equal(t, KindDatabase, kind)
	assert.NotContains(t, msg, "MATCH")
	assert.NotContains(t, msg, "admin")

	kind, msg = Public(New(KindTranslation, "label `X` not in schema"))
	assert.Equal(t, KindTranslation, kind)
	assert.NotContains(t, msg, "`X`")

	kind, msg = Public(New(KindArgument, "limit must be non-negative"))
	assert.Equal(t, KindArgument, kind)
	assert.Equal(t, "limit must be non-negative", msg)

	kind, _ = Public(errors.New("boom"))
	assert.Equal(t, KindTranslation, kind)
}

func TestError_Format(t *testing.T) {
	err := Wrap(KindTimeout, errors.New("context deadline exceeded"), "request aborted")
	assert.Equal(t, "TimeoutError: request aborted: context deadline exceeded", err.Error())
	assert.Equal(t, "ConsistencyError: null", New(KindConsistency, "null").Error())
}
