package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_FallsBackToDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestWith_AddsAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithLogger(context.Background(), base)

	ctx, logger := With(ctx, "job", "MTS_cosmics_ideal")
	require.Same(t, logger, FromContext(ctx))

	FromContext(ctx).Info("Job written.")
	assert.Contains(t, buf.String(), "job=MTS_cosmics_ideal")
	assert.Contains(t, buf.String(), `msg="Job written."`)
}
