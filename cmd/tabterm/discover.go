package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/tabterm/host/internal/mdns"
)

// runDiscover implements the "tabterm discover" command. It browses the
// local network for advertised hosts and prints what it finds.
func runDiscover(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	fs.SetOutput(stderr)

	timeout := fs.Duration("timeout", 3*time.Second, "How long to browse for hosts")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: tabterm discover [options]

Browse the local network for tabterm hosts advertised via mDNS.
Hosts only appear when started with --mdns.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Fprintf(stdout, "Browsing for %s hosts...\n", mdns.ServiceType)

	hosts, err := mdns.Discover(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if len(hosts) == 0 {
		fmt.Fprintln(stdout, "No hosts found.")
		return 0
	}

	for _, h := range hosts {
		fmt.Fprintf(stdout, "  %s  http://%s:%d  (v%s)\n", h.Name, h.Host, h.Port, h.Version)
	}
	return 0
}
