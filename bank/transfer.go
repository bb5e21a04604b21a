/*
transfer.go - Peer-to-peer transfers

PURPOSE:
  Moves money between two accounts inside one atomic unit: debit sender,
  append transfer_send(-amount), credit receiver, append
  transfer_receive(+amount). All four effects commit together or none do.

LOCK ORDERING:
  Both accounts are read (and thus locked) in ascending id order regardless
  of transfer direction, so two opposite-direction concurrent transfers
  cannot deadlock.

POLICY:
  Self-transfer is rejected as a validation error.
*/
package bank

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store"
)

// TransferService orchestrates peer-to-peer moves between two accounts.
type TransferService struct {
	store store.Store
	clock ledger.Clock
	log   *zap.Logger
}

func NewTransferService(st store.Store, clock ledger.Clock, log *zap.Logger) *TransferService {
	return &TransferService{store: st, clock: clock, log: log}
}

// Transfer moves amount from sender to receiver.
func (s *TransferService) Transfer(ctx context.Context, sender, receiver ledger.AccountID, amount decimal.Decimal) (err error) {
	defer func() { observe("transfer", err) }()
	if err = requirePositive(amount); err != nil {
		return err
	}
	if err = requireAccountID(sender); err != nil {
		return err
	}
	if err = requireAccountID(receiver); err != nil {
		return err
	}
	if sender == receiver {
		return &ledger.ValidationError{Reason: "cannot transfer to the same account"}
	}

	now := s.clock.Now()
	err = store.InTx(ctx, s.store, func(tx store.Tx) error {
		// Lock both rows in ascending id order before mutating either.
		first, second := sender, receiver
		if second < first {
			first, second = second, first
		}
		if _, err := tx.GetAccount(ctx, first); err != nil {
			return err
		}
		if _, err := tx.GetAccount(ctx, second); err != nil {
			return err
		}

		if _, err := debit(ctx, tx, sender, amount); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, newEntry(sender, ledger.EntryTransferSend, amount.Neg(), now,
			"transfer to "+string(receiver))); err != nil {
			return err
		}
		if _, err := credit(ctx, tx, receiver, amount); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, newEntry(receiver, ledger.EntryTransferReceive, amount, now,
			"transfer from "+string(sender)))
	})
	if err != nil {
		return err
	}

	s.log.Info("transfer settled",
		zap.String("sender", string(sender)),
		zap.String("receiver", string(receiver)),
		zap.String("amount", amount.String()))
	return nil
}
