package observability

import (
	"context"
	"testing"
)

func TestStartSpanNoopByDefault(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.op")
	defer span.End()
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
}
