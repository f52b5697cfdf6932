package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Outcome classifies a payment callback for the security journal.
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeSignatureInvalid Outcome = "signature_invalid"
	OutcomeAmountMismatch   Outcome = "amount_mismatch"
	OutcomeRejected         Outcome = "rejected"
)

// Entry is one journaled callback. Params never contain the signature.
type Entry struct {
	Outcome        Outcome           `bson:"outcome"`
	Channel        string            `bson:"channel"`
	OrderNumber    string            `bson:"order_number,omitempty"`
	TransactionRef string            `bson:"transaction_ref,omitempty"`
	ResponseCode   string            `bson:"response_code,omitempty"`
	RemoteIP       string            `bson:"remote_ip,omitempty"`
	Reason         string            `bson:"reason,omitempty"`
	Params         map[string]string `bson:"params,omitempty"`
	OccurredAt     time.Time         `bson:"occurred_at"`
}

type Journal interface {
	Record(ctx context.Context, entry Entry) error
}

// LogJournal writes entries to the service log only. It is the journal used
// when no MongoDB is configured.
type LogJournal struct {
	log *zap.Logger
}

func NewLogJournal(log *zap.Logger) *LogJournal {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogJournal{log: log}
}

func (j *LogJournal) Record(_ context.Context, entry Entry) error {
	j.log.Info("payment callback journaled",
		zap.String("outcome", string(entry.Outcome)),
		zap.String("channel", entry.Channel),
		zap.String("order_number", entry.OrderNumber),
		zap.String("response_code", entry.ResponseCode),
		zap.String("remote_ip", entry.RemoteIP),
		zap.String("reason", entry.Reason))
	return nil
}
