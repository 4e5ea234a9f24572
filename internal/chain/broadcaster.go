package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/xueqianLu/ticketdesk/internal/outcome"
	"go.uber.org/zap"
)

// Sender is the write half of Backend.
type Sender interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Broadcaster submits signed transactions and classifies node rejections.
type Broadcaster struct {
	sender Sender
	logger *zap.Logger
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(sender Sender, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{sender: sender, logger: logger}
}

// Broadcast sends a signed transaction. The hash is always returned so that an
// "already known" rejection can still be reported to the user.
// Errors are *outcome.BroadcastError.
func (b *Broadcaster) Broadcast(ctx context.Context, signedTx *types.Transaction) (common.Hash, error) {
	hash := signedTx.Hash()
	err := b.sender.SendTransaction(ctx, signedTx)
	if err == nil {
		b.logger.Info("transaction accepted", zap.String("tx", hash.Hex()), zap.Uint64("nonce", signedTx.Nonce()))
		return hash, nil
	}

	bErr := outcome.NewBroadcastError(err)
	b.logger.Warn("transaction rejected",
		zap.String("tx", hash.Hex()),
		zap.Stringer("kind", bErr.Kind),
		zap.Error(err),
	)
	return hash, bErr
}
