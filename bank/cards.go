/*
cards.go - Card catalog and tier purchase

PURPOSE:
  Static reference data (tier -> price, benefits) seeded once at startup,
  and the purchase flow that debits the price and flips the account's tier
  in one atomic unit.

POLICY:
  Re-purchasing the currently held tier is rejected: the purchase would be a
  pure money sink with no state change.
*/
package bank

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/store"
)

// defaultCatalog is the seed data. Prices are catalog data, not hard
// constants; the seed is insert-if-absent so operators can reprice rows
// without them being clobbered on restart.
var defaultCatalog = []ledger.CardDefinition{
	{Tier: ledger.TierSilver, Price: decimal.NewFromInt(5000),
		Benefits: "5% off transfer fees, +1% investment return"},
	{Tier: ledger.TierGold, Price: decimal.NewFromInt(15000),
		Benefits: "10% off transfer fees, +2% investment return, higher daily withdrawal"},
	{Tier: ledger.TierPlatinum, Price: decimal.NewFromInt(50000),
		Benefits: "15% off transfer fees, +3% investment return, much higher daily withdrawal, VIP support"},
}

// CardCatalog holds the tier definitions and the purchase flow.
type CardCatalog struct {
	store store.Store
	clock ledger.Clock
	log   *zap.Logger
}

func NewCardCatalog(st store.Store, clock ledger.Clock, log *zap.Logger) *CardCatalog {
	return &CardCatalog{store: st, clock: clock, log: log}
}

// Seed inserts the default catalog idempotently. Safe to call on every
// startup.
func (c *CardCatalog) Seed(ctx context.Context) error {
	return store.InTx(ctx, c.store, func(tx store.Tx) error {
		for _, def := range defaultCatalog {
			if err := tx.InsertCardIfAbsent(ctx, def); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns the catalog ordered by price ascending.
func (c *CardCatalog) List(ctx context.Context) ([]ledger.CardDefinition, error) {
	var defs []ledger.CardDefinition
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		defs, err = tx.ListCards(ctx)
		return err
	})
	return defs, err
}

// Purchase debits the card's price, sets the account's tier, and appends a
// card_purchase entry, all in one atomic unit.
func (c *CardCatalog) Purchase(ctx context.Context, id ledger.AccountID, tier ledger.CardTier) (err error) {
	defer func() { observe("card_purchase", err) }()

	now := c.clock.Now()
	err = store.InTx(ctx, c.store, func(tx store.Tx) error {
		def, err := tx.GetCard(ctx, tier)
		if err != nil {
			return err
		}
		acct, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if acct.CardTier == tier {
			return &ledger.ValidationError{Reason: "card tier already held"}
		}
		if _, err := debit(ctx, tx, id, def.Price); err != nil {
			return err
		}
		if err := tx.SetCardTier(ctx, id, tier); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, newEntry(id, ledger.EntryCardPurchase, def.Price.Neg(), now,
			"purchased "+string(tier)+" card"))
	})
	if err != nil {
		return err
	}

	c.log.Info("card purchased", zap.String("account", string(id)), zap.String("tier", string(tier)))
	return nil
}
