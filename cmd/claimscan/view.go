package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/grraffic/ordertracking/internal/catalog"
	"github.com/grraffic/ordertracking/internal/model"
	"github.com/grraffic/ordertracking/internal/normalize"
	"github.com/grraffic/ordertracking/internal/qr"
)

func (a *app) view(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	bf := a.addBackendFlags(fs)
	name := fs.String("name", "", "item name (required)")
	level := fs.String("level", "", "education level of the record to start from")
	asJSON := fs.Bool("json", false, "print the product as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return usageError("view: -name is required")
	}

	cctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()
	items, err := bf.client().ListItems(cctx)
	if err != nil {
		return fmt.Errorf("fetch catalog: %w", err)
	}

	target, ok := findRecord(items, *name, *level)
	if !ok {
		return fmt.Errorf("no item named %q", *name)
	}
	prod := catalog.ResolveVariants(items, target, bf.policy())

	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(prod)
	}

	fmt.Fprintf(a.out, "%s (%s)\n", target.Name, target.EducationLevel)
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SIZE\tLEVEL\tSTOCK\tPRICE\tBEGIN\tPURCHASES\tCOST\t")
	for _, v := range prod.Variants {
		size := v.Size
		if size == "" {
			size = "-"
		}
		if v.DisplayKey == prod.Selected.DisplayKey {
			size = "*" + size
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%d\t%s\t\n",
			size, v.EducationLevel, v.Stock, v.Price.StringFixed(2),
			v.BeginningInventory, v.Purchases, v.Cost().StringFixed(2))
	}
	fmt.Fprintf(tw, "TOTAL\t\t%d\t\t\t\t%s\t\n", prod.TotalStock, prod.TotalCost.StringFixed(2))
	if err := tw.Flush(); err != nil {
		return err
	}
	if prod.LowFidelity {
		fmt.Fprintln(a.out, "note: some stock is split evenly from a legacy size list")
	}
	return nil
}

// findRecord picks the record to resolve from: the first one with the
// given name, preferring the given education level.
func findRecord(items []model.ItemRecord, name, level string) (model.ItemRecord, bool) {
	wantName := normalize.Name(name)
	wantLevel := normalize.EducationLevel(level)

	var fallback *model.ItemRecord
	for i := range items {
		if normalize.Name(items[i].Name) != wantName {
			continue
		}
		if level == "" || normalize.EducationLevel(items[i].EducationLevel) == wantLevel {
			return items[i], true
		}
		if fallback == nil {
			fallback = &items[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return model.ItemRecord{}, false
}

func (a *app) issue(args []string) error {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	orderNumber := fs.String("order", "", "order number (required)")
	issued := fs.String("issued", "", "issuance time, RFC 3339 (default: now)")
	legacy := fs.Bool("legacy", false, "print a bare order number without issuance time")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *orderNumber == "" {
		return usageError("issue: -order is required")
	}

	p := qr.Payload{OrderNumber: *orderNumber}
	if !*legacy {
		at := time.Now()
		if *issued != "" {
			t, err := time.Parse(time.RFC3339, *issued)
			if err != nil {
				return usageError(fmt.Sprintf("issue: -issued: %v", err))
			}
			at = t
		}
		p.IssuedAt = &at
	}

	payload, err := qr.Encode(p)
	if err != nil {
		return err
	}
	if *legacy {
		payload = p.OrderNumber
	}
	fmt.Fprintln(a.out, payload)
	if p.IssuedAt != nil {
		fmt.Fprintf(a.out, "valid until %s\n", p.IssuedAt.Add(a.cfg.QRValidity).Local().Format("Jan 2, 2006 3:04 PM"))
	}
	return nil
}
