package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/tabterm/host/internal/config"
	"github.com/tabterm/host/internal/dispatch"
	"github.com/tabterm/host/internal/mdns"
	"github.com/tabterm/host/internal/metrics"
	"github.com/tabterm/host/internal/server"
	"github.com/tabterm/host/internal/session"
	"github.com/tabterm/host/internal/shell"
	"github.com/tabterm/host/internal/storage"
)

// runStart implements the "tabterm start" command. It loads the config,
// wires the session store, navigator, dispatcher, metrics sampler, and
// WebSocket server together, then blocks until SIGINT/SIGTERM.
func runStart(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.tabterm/config.toml)")
	addr := fs.String("addr", "", "Listen address (overrides config)")
	rootDir := fs.String("root", "", "Initial working directory for new tabs (overrides config)")
	sandbox := fs.String("sandbox", "", "Boundary for destructive operations (overrides config)")
	dbPath := fs.String("db", "", "Transcript database path (overrides config)")
	enableMdns := fs.Bool("mdns", false, "Advertise the host via mDNS/Bonjour")
	showQR := fs.Bool("qr", false, "Display the connect URL as a QR code")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: tabterm start [options]

Start the host server. Browsers connect to ws://<addr>/ws; each browser
tab gets its own session with an independent working directory and
command history.

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

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// CLI flags take precedence over config file values.
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *rootDir != "" {
		cfg.RootDir = *rootDir
	}
	if *sandbox != "" {
		cfg.SandboxRoot = *sandbox
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *enableMdns {
		cfg.MdnsEnabled = true
	}
	if *showQR {
		cfg.QR = true
	}

	if info, err := os.Stat(cfg.RootDir); err != nil || !info.IsDir() {
		fmt.Fprintf(stderr, "Error: root directory %s is not usable\n", cfg.RootDir)
		return 1
	}

	// Seed the default config file on first run so users have something
	// to edit.
	if *configPath == "" {
		if defaultPath, err := config.DefaultConfigPath(); err == nil {
			if _, statErr := os.Stat(defaultPath); os.IsNotExist(statErr) {
				if err := config.WriteDefault(defaultPath, cfg.RootDir); err == nil {
					fmt.Fprintf(stdout, "Created config: %s\n", defaultPath)
				}
			}
		}
	}

	transcript, err := storage.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer transcript.Close()

	nav := shell.NewNavigator(cfg.SandboxRoot)
	sessions := session.NewStore(
		cfg.RootDir,
		cfg.HistoryCap,
		cfg.HistoryDedupe,
		time.Duration(cfg.SessionTTLSec)*time.Second,
	)
	defer sessions.Close()

	runner := shell.NewHostRunner(time.Duration(cfg.ExecTimeoutSec) * time.Second)

	srv := server.NewServer(cfg.Addr)
	sampler := metrics.NewSampler(
		time.Duration(cfg.MetricsIntervalMs)*time.Millisecond,
		srv.BroadcastSystemInfo,
	)
	d := dispatch.New(sessions, nav, runner, sampler, transcript, srv)
	srv.SetDispatcher(d)
	srv.SetSessionStore(sessions)
	srv.SetTranscript(transcript)

	if err := <-srv.StartAsync(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer srv.Stop()

	samplerCtx, cancelSampler := context.WithCancel(context.Background())
	defer cancelSampler()
	go sampler.Run(samplerCtx)

	if cfg.MdnsEnabled {
		port := parsePort(cfg.Addr)
		advertiser := mdns.NewAdvertiser(mdns.Config{Port: port})
		if err := advertiser.Start(); err != nil {
			fmt.Fprintf(stderr, "Warning: mDNS advertisement failed: %v\n", err)
		} else {
			defer advertiser.Stop()
			fmt.Fprintf(stdout, "mDNS: advertising %s on port %d\n", mdns.ServiceType, port)
		}
	}

	connectURL := "http://" + cfg.Addr
	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintln(stdout, "  tabterm host")
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintf(stdout, "  Address:   %s\n", cfg.Addr)
	fmt.Fprintf(stdout, "  Root:      %s\n", cfg.RootDir)
	if cfg.SandboxRoot != "" {
		fmt.Fprintf(stdout, "  Sandbox:   %s\n", cfg.SandboxRoot)
	}
	fmt.Fprintf(stdout, "  Connect:   %s\n", connectURL)
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintln(stdout, "")

	if cfg.QR {
		if err := printQR(stdout, connectURL); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to render QR code: %v\n", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Fprintln(stdout, "Shutting down...")
	return 0
}

// parsePort extracts the port number from a host:port address. Returns
// 0 when the address has no parseable port.
func parsePort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

// printQR renders the connect URL as a terminal QR code.
func printQR(w io.Writer, url string) error {
	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return err
	}
	// ToSmallString(false) produces compact output without a border.
	fmt.Fprint(w, qr.ToSmallString(false))
	fmt.Fprintln(w, "")
	return nil
}
