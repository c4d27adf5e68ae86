package order

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"warrant-trader/internal/risk"
	"warrant-trader/internal/signal"
	"warrant-trader/pkg/broker"
)

// RebuildState reconstructs the fill ledger and cooldown records from
// the brokerage's own order history. Nothing survives a restart in
// process memory; the brokerage is the source of truth.
func RebuildState(ctx context.Context, trader broker.Trader, cfg Config, losses *risk.UnrealizedLossTracker, cooldowns *risk.CooldownTracker) error {
	orders, err := trader.GetTodayOrders(ctx)
	if err != nil {
		return fmt.Errorf("fetch today orders: %w", err)
	}

	fills := make(map[string][]risk.Fill)
	rebuilt := 0
	for _, o := range orders {
		if o.Symbol != cfg.LongSymbol && o.Symbol != cfg.ShortSymbol {
			continue
		}
		if o.ExecutedQty <= 0 {
			continue
		}
		price := o.ExecutedPrice
		if price <= 0 {
			price = o.SubmittedPrice
		}
		fills[o.Symbol] = append(fills[o.Symbol], risk.Fill{
			Symbol:     o.Symbol,
			IsBuy:      o.Side == broker.SideBuy,
			Price:      price,
			Quantity:   o.ExecutedQty,
			ExecutedAt: o.UpdatedAt,
		})
		rebuilt++

		if o.Side == broker.SideSell && strings.HasPrefix(o.Remark, ProtectiveRemark) {
			dir := signal.DirectionLong
			if o.Symbol == cfg.ShortSymbol {
				dir = signal.DirectionShort
			}
			cooldowns.Record(o.Symbol, dir, o.UpdatedAt.UnixMilli())
		}
	}

	// The history endpoint makes no ordering promise, and the ledger
	// replays fills in sequence; a sell seen before its buys would be
	// dropped against an empty position.
	for symbol, fs := range fills {
		sort.SliceStable(fs, func(i, j int) bool {
			return fs[i].ExecutedAt.Before(fs[j].ExecutedAt)
		})
		losses.Seed(symbol, fs)
	}
	log.Printf("rebuild: seeded %d fills across %d symbols from order history", rebuilt, len(fills))
	return nil
}
