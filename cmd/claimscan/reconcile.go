package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/grraffic/ordertracking/internal/cache"
	"github.com/grraffic/ordertracking/internal/fulfillment"
)

func (a *app) reconcile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	bf := a.addBackendFlags(fs)
	journalPath := fs.String("journal", a.cfg.JournalPath, "reconciliation journal path")
	list := fs.Bool("list", false, "only list pending entries")
	if err := fs.Parse(args); err != nil {
		return err
	}

	j, err := a.openJournal(*journalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	if *list {
		entries, err := j.ListPending(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(a.out, "Nothing pending.")
			return nil
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tORDER\tITEM\tSIZE\tQTY\tATTEMPTS\tLAST ERROR\t")
		for _, e := range entries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t\n",
				e.ID, e.OrderNumber, e.ItemName, e.ItemSize, e.Quantity, e.Attempts, e.LastError)
		}
		return tw.Flush()
	}

	c := bf.client()
	items := cache.NewList("items", c.ListItems)
	res, err := fulfillment.Reconcile(ctx, j, c, items, bf.policy())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Resolved %d, still pending %d.\n", res.Resolved, res.Failed)
	return nil
}
