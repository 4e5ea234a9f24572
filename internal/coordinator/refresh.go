package coordinator

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/xueqianLu/ticketdesk/internal/preflight"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// errSessionChanged drops a snapshot read for an account that is no longer active.
var errSessionChanged = errors.New("wallet session changed during refresh")

// Snapshot returns the last stored snapshot. ok is false before the first refresh.
func (c *Coordinator) Snapshot() (snap Snapshot, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return Snapshot{}, false
	}
	return *c.snapshot, true
}

// Refresh reads the native balance, ticket balance and inventory concurrently
// and stores them. A snapshot older than the stored one is discarded.
func (c *Coordinator) Refresh(ctx context.Context) (Snapshot, error) {
	session := c.wallet.Current()
	if session == nil {
		return Snapshot{}, preflight.NoWallet()
	}
	started := time.Now()

	var native, tickets, inventory *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		native, err = c.reader.NativeBalance(gctx, session.Address)
		return err
	})
	g.Go(func() (err error) {
		tickets, err = c.reader.AccountBalance(gctx, session.Address)
		return err
	})
	g.Go(func() (err error) {
		inventory, err = c.reader.InventoryBalance(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		c.metrics.Refreshes.WithLabelValues("error").Inc()
		return Snapshot{}, err
	}

	snap := Snapshot{
		Account:       session.Address,
		NativeBalance: native,
		Tickets:       tickets,
		Inventory:     inventory,
		RefreshedAt:   started,
	}

	c.mu.Lock()
	if cur := c.wallet.Current(); cur == nil || cur.Address != session.Address {
		c.mu.Unlock()
		c.metrics.Refreshes.WithLabelValues("discarded").Inc()
		return Snapshot{}, errSessionChanged
	}
	if c.snapshot != nil && c.snapshot.Account == snap.Account && snap.RefreshedAt.Before(c.snapshot.RefreshedAt) {
		stored := *c.snapshot
		c.mu.Unlock()
		c.metrics.Refreshes.WithLabelValues("discarded").Inc()
		return stored, nil
	}
	c.snapshot = &snap
	c.mu.Unlock()

	c.metrics.Refreshes.WithLabelValues("ok").Inc()
	c.emit(Event{Type: EventBalancesUpdated, Address: snap.Account, Snapshot: &snap})
	return snap, nil
}

// scheduleRefresh refreshes after delay. Errors are logged and swallowed: the
// attempt that triggered the refresh has already been reported.
func (c *Coordinator) scheduleRefresh(delay time.Duration) {
	c.goBackground(func(ctx context.Context) {
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		if _, err := c.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("balance refresh failed", zap.Error(err))
		}
	})
}
