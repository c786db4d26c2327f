// Package oplog adapts the domain services' operation callbacks onto zap.
package oplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/drivana/settlement/pkg/ledger"
	"github.com/drivana/settlement/pkg/withdrawal"
)

// LedgerLogger logs ledger operations.
type LedgerLogger struct {
	logger *zap.Logger
}

// NewLedgerLogger wraps a zap logger. A nil logger degrades to a no-op.
func NewLedgerLogger(logger *zap.Logger) *LedgerLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerLogger{logger: logger.Named("ledger")}
}

// LogOperation implements ledger.OperationLogger.
func (ledgerLogger *LedgerLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.String("kind", string(entry.Kind)),
		zap.Int64("amount_cents", entry.Amount),
		zap.String("ref", entry.Ref.String()),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		ledgerLogger.logger.Error("ledger operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	ledgerLogger.logger.Info("ledger operation", fields...)
}

// WithdrawalLogger logs withdrawal operations.
type WithdrawalLogger struct {
	logger *zap.Logger
}

// NewWithdrawalLogger wraps a zap logger. A nil logger degrades to a no-op.
func NewWithdrawalLogger(logger *zap.Logger) *WithdrawalLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WithdrawalLogger{logger: logger.Named("withdrawal")}
}

// LogOperation implements withdrawal.OperationLogger.
func (withdrawalLogger *WithdrawalLogger) LogOperation(entry withdrawal.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID),
		zap.String("request_id", entry.RequestID),
		zap.Int64("amount_cents", entry.Amount),
		zap.String("status", entry.Status),
	}
	if entry.Error != "" {
		withdrawalLogger.logger.Error("withdrawal operation failed", append(fields, zap.String("error", entry.Error))...)
		return
	}
	withdrawalLogger.logger.Info("withdrawal operation", fields...)
}
