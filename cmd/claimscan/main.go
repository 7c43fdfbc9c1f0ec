// Command claimscan is the operator tool for releasing claimed orders: it
// scans claim QR codes, deducts the ordered items from inventory and retries
// deductions that did not go through.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/grraffic/ordertracking/internal/catalog"
	"github.com/grraffic/ordertracking/internal/client"
	"github.com/grraffic/ordertracking/internal/config"
	"github.com/grraffic/ordertracking/internal/journal"
)

const usage = `Usage: claimscan <command> [flags]

Commands:
  view        show the consolidated variants of one item
  issue       print the claim QR payload for an order
  scan        scan claim QR codes and release orders
  reconcile   retry inventory deductions left pending by earlier claims

Run 'claimscan <command> -h' for the flags of a command.
`

type app struct {
	cfg   *config.Config
	out   io.Writer
	lines *bufio.Scanner
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: config.Load(), out: os.Stdout, lines: bufio.NewScanner(os.Stdin)}
	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(os.Stderr, "error: %v\n\n%s", err, usage)
			os.Exit(2)
		}
		log.Printf("ERROR: %v", err)
		os.Exit(1)
	}
}

// usageError is a bad command line.
type usageError string

func (e usageError) Error() string { return string(e) }

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "view":
		return a.view(ctx, args)
	case "issue":
		return a.issue(args)
	case "scan":
		return a.scan(ctx, args)
	case "reconcile":
		return a.reconcile(ctx, args)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(a.out, usage)
		return nil
	}
	return usageError(fmt.Sprintf("unknown command %q", cmd))
}

// backendFlags registers the flags shared by commands that talk to the
// backend of record.
type backendFlags struct {
	url    string
	token  string
	scoped bool
}

func (a *app) addBackendFlags(fs *flag.FlagSet) *backendFlags {
	bf := &backendFlags{}
	fs.StringVar(&bf.url, "backend", a.cfg.BackendURL, "backend base URL")
	fs.StringVar(&bf.token, "token", a.cfg.APIToken, "operator bearer token")
	fs.BoolVar(&bf.scoped, "scoped", a.cfg.ScopeByEducationLevel, "keep education levels apart when consolidating")
	return bf
}

func (bf *backendFlags) client() *client.Client {
	return client.New(bf.url, bf.token)
}

func (bf *backendFlags) policy() catalog.Policy {
	return catalog.Policy{ScopeByEducationLevel: bf.scoped}
}

func (a *app) openJournal(path string) (*journal.Journal, error) {
	j, err := journal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return j, nil
}

// ask prints prompt and reports whether the operator answered yes.
func (a *app) ask(prompt string) bool {
	fmt.Fprintf(a.out, "%s [y/N] ", prompt)
	if !a.lines.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(a.lines.Text())) {
	case "y", "yes":
		return true
	}
	return false
}
