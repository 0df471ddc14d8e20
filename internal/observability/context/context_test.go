package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "operator-7")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "operator-7", UserIDFromContext(ctx))
	assert.Equal(t, "", UserIDFromContext(context.Background()))
}
