// Command meshbridge connects to a Bluetooth-mesh proxy gateway and keeps the
// link up.
//
// The gateway is reached over TCP at a fixed address or discovered with mDNS
// (_meshproxy._tcp). When the gateway reports the proxy link lost, the
// supervisor retries with linear backoff until the link is back or the
// attempt budget is spent.
//
// Usage:
//
//	meshbridge [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-gateway string     Gateway address host:port (default: discover via mDNS)
//	-instance string    Only accept the named gateway instance when discovering
//	-interface string   Network interface for mDNS discovery
//	-client-id string   Client ID sent to the gateway (default: hostname)
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-journal string     File path for the recovery journal (CBOR format)
//	-journal-console    Also write journal events to the log
//	-interactive        Enable interactive command mode
//
// Examples:
//
//	# Connect to a known gateway and journal recovery
//	meshbridge -gateway 192.168.1.40:7373 -journal bridge.mbj
//
//	# Discover the gateway and drive recovery by hand
//	meshbridge -interactive -log-level debug
//
// Interactive Commands:
//
//	status   - Show session and link state
//	connect  - Open the session if the initial connect failed
//	force    - Start a fresh reconnect cycle
//	reset    - Abandon the current reconnect cycle
//	quit     - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/meshbridge/meshbridge-go/cmd/meshbridge/interactive"
	"github.com/meshbridge/meshbridge-go/pkg/config"
	mblog "github.com/meshbridge/meshbridge-go/pkg/log"
	"github.com/meshbridge/meshbridge-go/pkg/session"
	"github.com/meshbridge/meshbridge-go/pkg/supervisor"
	"github.com/meshbridge/meshbridge-go/pkg/transport"
)

var (
	configFile     = flag.String("config", "", "Configuration file path (YAML)")
	gateway        = flag.String("gateway", "", "Gateway address host:port (default: discover via mDNS)")
	instance       = flag.String("instance", "", "Only accept the named gateway instance when discovering")
	iface          = flag.String("interface", "", "Network interface for mDNS discovery")
	clientID       = flag.String("client-id", "", "Client ID sent to the gateway (default: hostname)")
	logLevel       = flag.String("log-level", "", "Log level: debug, info, warn, error (default \"info\")")
	journalPath    = flag.String("journal", "", "File path for the recovery journal (CBOR format)")
	journalConsole = flag.Bool("journal-console", false, "Also write journal events to the log")
	interactiveOn  = flag.Bool("interactive", false, "Enable interactive command mode")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	var console *interactive.Console
	var out io.Writer = os.Stderr
	if *interactiveOn {
		console, err = interactive.New()
		if err != nil {
			log.Fatalf("Failed to create interactive console: %v", err)
		}
		// Route log output through readline to keep the prompt intact.
		out = console.Stdout()
		log.SetOutput(out)
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	log.Println("Mesh Bridge")
	log.Println("===========")

	events, closeJournal, err := openJournal(cfg.Journal, logger)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer closeJournal()

	id := *clientID
	if id == "" {
		id, _ = os.Hostname()
	}
	sessionID := uuid.NewString()

	client, err := transport.NewClient(transport.ClientConfig{
		Resolver:    newResolver(cfg.Gateway),
		ClientID:    id,
		SessionID:   sessionID,
		DialTimeout: cfg.Gateway.DialTimeout,
		KeepAlive:   transport.DefaultKeepAliveConfig(),
		Breaker: transport.BreakerConfig{
			Failures:    cfg.Gateway.Breaker.Failures,
			OpenTimeout: cfg.Gateway.Breaker.OpenTimeout,
		},
		Logger:      logger,
		EventLogger: events,
	})
	if err != nil {
		log.Fatalf("Failed to create gateway client: %v", err)
	}

	sess := session.New(client, session.Config{
		ID:         sessionID,
		Supervisor: supervisor.Config{
			MaxAttempts: cfg.Supervisor.MaxAttempts,
			BaseDelay:   cfg.Supervisor.BaseDelay,
			ResultWait:  cfg.Supervisor.ResultWait,
		},
		ConnectRetries: cfg.Session.ConnectRetries,
		ConnectDelay:   cfg.Session.ConnectDelay,
		CloseTimeout:   cfg.Session.CloseTimeout,
		Logger:         logger,
		EventLogger:    events,
	})
	log.Printf("Session: %s", sess.ID())
	if cfg.Gateway.Address != "" {
		log.Printf("Gateway: %s", cfg.Gateway.Address)
	} else {
		log.Printf("Gateway: discover %s.%s", cfg.Gateway.Service, cfg.Gateway.Domain)
	}

	sess.Subscribe(func(connected bool) {
		if connected {
			log.Printf("[STATE] Mesh proxy connected (%s)", client.Target())
		} else {
			log.Printf("[STATE] Mesh proxy disconnected")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Open(ctx); err != nil {
		if console == nil {
			log.Fatalf("Failed to connect: %v", err)
		}
		log.Printf("Failed to connect: %v (use 'connect' to retry)", err)
	}

	if console != nil {
		go console.Run(ctx, cancel, sess, client)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
		// Context was cancelled (e.g., by interactive quit command)
	}

	log.Println("Shutting down...")
	cancel()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Session.CloseTimeout+time.Second)
	defer closeCancel()
	if err := sess.Close(closeCtx); err != nil {
		log.Printf("Error closing session: %v", err)
	}

	log.Println("Goodbye!")
}

// loadConfig reads the configuration file and applies flags set on the
// command line.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "gateway":
			cfg.Gateway.Address = *gateway
		case "instance":
			cfg.Gateway.Instance = *instance
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "journal":
			cfg.Journal.Path = *journalPath
		case "journal-console":
			cfg.Journal.Console = *journalConsole
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newResolver(gw config.Gateway) transport.Resolver {
	if gw.Address != "" {
		return transport.StaticResolver(gw.Address)
	}
	return transport.NewMDNSResolver(transport.MDNSConfig{
		Service:       gw.Service,
		Domain:        gw.Domain,
		Instance:      gw.Instance,
		Interface:     *iface,
		BrowseTimeout: gw.BrowseTimeout,
	})
}

// openJournal builds the journal sink described by cfg. The returned close
// function is always non-nil.
func openJournal(cfg config.Journal, logger *slog.Logger) (mblog.Logger, func(), error) {
	var sinks []mblog.Logger
	closeFn := func() {}

	if cfg.Path != "" {
		fl, err := mblog.NewFileLogger(cfg.Path)
		if err != nil {
			return nil, closeFn, fmt.Errorf("create %s: %w", cfg.Path, err)
		}
		log.Printf("Journal: %s", cfg.Path)
		sinks = append(sinks, fl)
		closeFn = func() {
			if n := fl.Dropped(); n > 0 {
				log.Printf("Journal dropped %d events", n)
			}
			_ = fl.Close()
		}
	}
	if cfg.Console {
		sinks = append(sinks, mblog.NewSlogAdapter(logger))
	}

	// Only return a logger when there is a sink to avoid a typed-nil interface.
	switch len(sinks) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return mblog.NewMultiLogger(sinks...), closeFn, nil
	}
}
