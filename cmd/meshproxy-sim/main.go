// Command meshproxy-sim simulates a Bluetooth-mesh proxy gateway.
//
// It listens for meshbridge clients, advertises itself with mDNS, and can
// drop links on a schedule so that reconnect behaviour can be observed
// without radio hardware.
//
// Usage:
//
//	meshproxy-sim [flags]
//
// Flags:
//
//	-listen string       Listen address (default ":7373")
//	-instance string     mDNS instance name (default "meshproxy-sim")
//	-advertise           Advertise the gateway with mDNS (default true)
//	-interface string    Network interface for the announcement
//	-drop-every duration Start an outage at this interval (0 disables)
//	-outage duration     Outage length: new links are refused while it lasts (default 10s)
//	-crash               Close links without a DISCONNECTED notice
//	-refuse              Refuse every link (no proxy node in range)
//	-mute                Do not answer heartbeats
//	-log-level string    Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Drop clients every 30 seconds for 8 seconds
//	meshproxy-sim -drop-every 30s -outage 8s
//
//	# Simulate a gateway whose proxy node is gone
//	meshproxy-sim -refuse
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/meshbridge/meshbridge-go/pkg/config"
	"github.com/meshbridge/meshbridge-go/pkg/transport"
)

var (
	listen    = flag.String("listen", ":7373", "Listen address")
	instance  = flag.String("instance", "meshproxy-sim", "mDNS instance name")
	advertise = flag.Bool("advertise", true, "Advertise the gateway with mDNS")
	iface     = flag.String("interface", "", "Network interface for the announcement")
	dropEvery = flag.Duration("drop-every", 0, "Start an outage at this interval (0 disables)")
	outageLen = flag.Duration("outage", 10*time.Second, "Outage length: new links are refused while it lasts")
	crash     = flag.Bool("crash", false, "Close links without a DISCONNECTED notice")
	refuse    = flag.Bool("refuse", false, "Refuse every link (no proxy node in range)")
	mute      = flag.Bool("mute", false, "Do not answer heartbeats")
	logLevel  = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	level, err := config.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	log.Println("Mesh Proxy Simulator")
	log.Println("====================")

	var p *proxy
	server := transport.NewServer(transport.ServerConfig{
		Address:      *listen,
		Accept:       func(id string) (transport.Status, string) { return p.accept(id) },
		OnConnect:    func(id string) { log.Printf("[EVENT] Client connected: %s", id) },
		OnDisconnect: func(id string) { log.Printf("[EVENT] Client disconnected: %s", id) },
		Logger:       logger,
	})
	p = newProxy(server, *refuse)
	server.SetMuted(*mute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		log.Fatalf("Failed to start gateway: %v", err)
	}
	log.Printf("Listening on %s", server.Addr())

	if *advertise {
		port := transport.DefaultPort
		if _, portStr, err := net.SplitHostPort(server.Addr().String()); err == nil {
			port, _ = strconv.Atoi(portStr)
		}
		ad, err := transport.Advertise(transport.AdvertiseConfig{
			Instance:  *instance,
			Port:      port,
			Interface: *iface,
		})
		if err != nil {
			log.Printf("Warning: mDNS advertisement failed: %v", err)
		} else {
			log.Printf("Advertising %s.%s.%s", *instance, transport.ServiceType, transport.Domain)
			defer ad.Shutdown()
		}
	}

	if *dropEvery > 0 {
		log.Printf("Outage every %s for %s (crash: %t)", *dropEvery, *outageLen, *crash)
		go p.runSchedule(ctx, *dropEvery, *outageLen, *crash)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal: %v", sig)

	log.Println("Shutting down...")
	cancel()
	if err := server.Stop(); err != nil {
		log.Printf("Error stopping gateway: %v", err)
	}
	log.Println("Goodbye!")
}
