package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/grraffic/ordertracking/internal/cache"
	"github.com/grraffic/ordertracking/internal/enum"
	"github.com/grraffic/ordertracking/internal/fulfillment"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/ws"
)

func (a *app) scan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	bf := a.addBackendFlags(fs)
	payload := fs.String("payload", "", "release this one payload instead of reading from stdin")
	yes := fs.Bool("yes", false, "confirm every release without asking")
	journalPath := fs.String("journal", a.cfg.JournalPath, "reconciliation journal path")
	listen := fs.Bool("listen", true, "keep caches fresh from the push channel")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c := bf.client()
	j, err := a.openJournal(*journalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	items := cache.NewList("items", c.ListItems)
	pending := cache.NewList("orders", func(ctx context.Context) ([]model.Order, error) {
		return c.ListOrders(ctx, enum.OrderStatusPending)
	})
	pending.OnUpdate(func(orders []model.Order) {
		log.Printf("%d order(s) waiting to be claimed", len(orders))
	})

	inv := cache.NewInvalidator(a.cfg.CallTimeout)
	inv.Bind(cache.AsRefresher(items), enum.EventItemUpdated, enum.EventItemArchived, enum.EventOrderClaimed)
	inv.Bind(cache.AsRefresher(pending), enum.EventOrderCreated, enum.EventOrderClaimed)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if *listen {
		l, err := ws.NewListener(bf.url, bf.token, []string{enum.TopicItems, enum.TopicOrders}, func(ctx context.Context, e ws.Event) {
			inv.Handle(ctx, e.Type)
		})
		if err != nil {
			return err
		}
		l.OnConnect = func(context.Context) { inv.InvalidateAll() }
		go l.Run(ctx) //nolint:errcheck
	}

	m := fulfillment.New(c, items, j, fulfillment.Config{
		ValidityWindow: a.cfg.QRValidity,
		CallTimeout:    a.cfg.CallTimeout,
		FailureDisplay: a.cfg.FailureDisplay,
		Policy:         bf.policy(),
	})

	confirm := func(prompt string) bool { return *yes || a.ask(prompt) }

	if *payload != "" {
		return a.release(ctx, m, *payload, confirm)
	}

	fmt.Fprintln(a.out, "Scan a claim code (empty line or Ctrl-D to quit).")
	for {
		fmt.Fprint(a.out, "scan> ")
		if !a.lines.Scan() {
			fmt.Fprintln(a.out)
			return a.lines.Err()
		}
		line := strings.TrimSpace(a.lines.Text())
		if line == "" {
			return nil
		}
		if err := a.release(ctx, m, line, confirm); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// release walks one payload through the machine. Scan and release failures
// are reported to the operator; only broken state transitions are returned.
func (a *app) release(ctx context.Context, m *fulfillment.Machine, payload string, confirm func(string) bool) error {
	if err := m.OpenScanner(); err != nil {
		return err
	}

	order, err := m.Decode(ctx, payload)
	if err != nil {
		a.printFailure(err)
		return resetQuietly(m)
	}

	fmt.Fprintf(a.out, "Order %s for %s (%s)\n", order.OrderNumber, order.StudentName, order.EducationLevel)
	for _, line := range order.Items {
		fmt.Fprintf(a.out, "  %dx %s %s\n", line.Quantity, line.Name, line.Size)
	}
	if !confirm("Release these items?") {
		fmt.Fprintln(a.out, "Cancelled.")
		return m.Cancel()
	}

	rel, err := m.Confirm(ctx)
	for err != nil {
		a.printFailure(err)
		var f *fulfillment.Failure
		if !errors.As(err, &f) || !f.Retryable() || !confirm("Retry?") {
			return resetQuietly(m)
		}
		if rerr := m.Retry(); rerr != nil {
			// The failure display already timed out.
			return resetQuietly(m)
		}
		rel, err = m.Confirm(ctx)
	}

	a.printRelease(rel)
	return m.Reset()
}

func (a *app) printFailure(err error) {
	var f *fulfillment.Failure
	if !errors.As(err, &f) {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "%s: %s\n", f.Reason, f.Message)
	if f.ClaimWritten {
		fmt.Fprintln(a.out, "The order is claimed. Inventory lines were journaled; run 'claimscan reconcile'.")
	}
}

func (a *app) printRelease(rel *fulfillment.Release) {
	fmt.Fprintf(a.out, "Released order %s to %s\n", rel.OrderNumber, rel.StudentName)
	for _, res := range rel.Results {
		status := "ok"
		if !res.Adjusted {
			status = fmt.Sprintf("PENDING: %v", res.Err)
			if res.JournalID != 0 {
				status = fmt.Sprintf("PENDING (journal #%d): %v", res.JournalID, res.Err)
			}
		}
		fmt.Fprintf(a.out, "  %dx %s %s: %s\n", res.Line.Quantity, res.Line.Name, res.Line.Size, status)
	}
	if !rel.Complete() {
		fmt.Fprintf(a.out, "%d line(s) pending reconciliation.\n", rel.Pending())
	}
}

// resetQuietly returns a failed machine to Idle unless the failure display
// timer already did.
func resetQuietly(m *fulfillment.Machine) error {
	if err := m.Reset(); err != nil && !errors.Is(err, fulfillment.ErrInvalidTransition) {
		return err
	}
	return nil
}
