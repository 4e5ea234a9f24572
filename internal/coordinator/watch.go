package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// watchReceipt polls for the receipt of a transaction already reported as
// submitted. A revert is announced and triggers a refresh, but the attempt
// stays Succeeded.
func (c *Coordinator) watchReceipt(attemptID string, hash common.Hash) {
	c.goBackground(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
		defer cancel()

		log := c.logger.With(zap.String("attempt", attemptID), zap.String("tx", hash.Hex()))
		ticker := time.NewTicker(c.cfg.ReceiptPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					log.Info("stopped waiting for receipt")
				}
				return
			case <-ticker.C:
			}

			receipt, err := c.backend.TransactionReceipt(ctx, hash)
			if errors.Is(err, ethereum.NotFound) {
				continue
			}
			if err != nil {
				log.Debug("receipt lookup failed", zap.Error(err))
				continue
			}

			if receipt.Status == types.ReceiptStatusFailed {
				log.Warn("transaction reverted after submission", zap.Uint64("gas_used", receipt.GasUsed))
				c.metrics.Reverted.Inc()
				c.emit(Event{Type: EventAttemptReverted, AttemptID: attemptID, TxHash: hash})
				c.scheduleRefresh(0)
				return
			}
			log.Info("transaction mined", zap.Stringer("block", receipt.BlockNumber))
			return
		}
	})
}
