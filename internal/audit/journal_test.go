package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogJournal_Record(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	journal := NewLogJournal(zap.New(core))

	err := journal.Record(context.Background(), Entry{
		Outcome:     OutcomeSignatureInvalid,
		Channel:     "return",
		OrderNumber: "ORD-20260101-000001",
	})

	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "signature_invalid", fields["outcome"])
	assert.Equal(t, "ORD-20260101-000001", fields["order_number"])
}
