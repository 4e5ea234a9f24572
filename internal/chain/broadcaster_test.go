package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xueqianLu/ticketdesk/internal/outcome"
	"go.uber.org/zap"
)

type stubSender struct {
	err  error
	sent []*types.Transaction
}

func (s *stubSender) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	s.sent = append(s.sent, tx)
	return s.err
}

func testTx() *types.Transaction {
	to := common.HexToAddress("0x77481B4bd23Ef04Fbd649133E5955b723863C52D")
	return types.NewTx(&types.LegacyTx{Nonce: 1, To: &to, Gas: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(0)})
}

func TestBroadcast(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind outcome.Kind
	}{
		{"accepted", nil, outcome.KindSubmitted},
		{"already known", errors.New("already known"), outcome.KindAlreadyKnown},
		{"funds", errors.New("insufficient funds for gas * price + value: balance 0"), outcome.KindInsufficientFundsAtBroadcast},
		{"nonce", errors.New("nonce too low: next nonce 5, tx nonce 4"), outcome.KindNonceConflict},
		{"other", errors.New("connection reset by peer"), outcome.KindFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &stubSender{err: tt.err}
			b := NewBroadcaster(s, zap.NewNop())
			tx := testTx()

			hash, err := b.Broadcast(context.Background(), tx)
			assert.Equal(t, tx.Hash(), hash)
			require.Len(t, s.sent, 1)

			if tt.err == nil {
				require.NoError(t, err)
				return
			}
			var bErr *outcome.BroadcastError
			require.True(t, errors.As(err, &bErr))
			assert.Equal(t, tt.wantKind, bErr.Kind)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
