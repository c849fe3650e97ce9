package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// TradesOptions configure the ledger listing.
type TradesOptions struct {
	Limit int
}

// Trades prints recent trade ledger rows, newest first.
func (a *App) Trades(ctx context.Context, opts TradesOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot list trades")
	}
	if closeStore != nil {
		defer closeStore()
	}

	events, err := store.ListRecentTradeEvents(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no trades found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tTrade\tSymbol\tSide\tStatus\tNotional\tEntry\tExit\tP&L")

	for _, event := range events {
		exit := "-"
		if event.ExitPrice != nil {
			exit = formatDecimal(*event.ExitPrice, 4)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			event.OccurredAt.UTC().Format(time.RFC3339),
			shortID(event.TradeID),
			event.Symbol,
			event.Side,
			event.Status,
			formatDecimal(event.Notional, 2),
			formatDecimal(event.EntryPrice, 4),
			exit,
			formatDecimal(event.RealizedPnL, 2),
		)
	}

	writer.Flush()
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
