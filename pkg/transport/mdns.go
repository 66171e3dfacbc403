package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Discovery constants.
const (
	// ServiceType is the mDNS service type gateways advertise.
	ServiceType = "_meshproxy._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default gateway port.
	DefaultPort = 7373

	// DefaultBrowseTimeout bounds one discovery pass.
	DefaultBrowseTimeout = 3 * time.Second

	// ProtocolVersion is advertised in the TXT record.
	ProtocolVersion = "1"
)

// ErrGatewayNotFound indicates discovery found no usable gateway.
var ErrGatewayNotFound = errors.New("gateway not found")

// Endpoint is a resolved gateway.
type Endpoint struct {
	// Address is host:port.
	Address string

	// Instance is the mDNS instance name, empty for static endpoints.
	Instance string
}

// Resolver locates a gateway.
type Resolver interface {
	Resolve(ctx context.Context) (Endpoint, error)
}

// StaticResolver always returns the same address.
type StaticResolver string

// Resolve returns the static address.
func (r StaticResolver) Resolve(context.Context) (Endpoint, error) {
	if r == "" {
		return Endpoint{}, fmt.Errorf("%w: empty address", ErrGatewayNotFound)
	}
	return Endpoint{Address: string(r)}, nil
}

// MDNSConfig configures gateway discovery.
type MDNSConfig struct {
	// Service is the service type (default: ServiceType).
	Service string

	// Domain is the mDNS domain (default: Domain).
	Domain string

	// Instance restricts discovery to one named gateway. Empty accepts any.
	Instance string

	// Interface limits browsing to one network interface. Empty means all.
	Interface string

	// BrowseTimeout bounds one discovery pass (default: 3s).
	BrowseTimeout time.Duration
}

// MDNSResolver discovers gateways with mDNS.
type MDNSResolver struct {
	config MDNSConfig
}

// NewMDNSResolver creates a resolver.
func NewMDNSResolver(config MDNSConfig) *MDNSResolver {
	if config.Service == "" {
		config.Service = ServiceType
	}
	if config.Domain == "" {
		config.Domain = Domain
	}
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	return &MDNSResolver{config: config}
}

// Resolve browses until the first matching gateway answers or the browse
// timeout passes.
func (r *MDNSResolver) Resolve(ctx context.Context) (Endpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.BrowseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		_ = zeroconf.Browse(ctx, r.config.Service, r.config.Domain, entries, removed, r.browserOptions()...)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return Endpoint{}, ErrGatewayNotFound
			}
			if ep, ok := r.endpoint(entry); ok {
				return ep, nil
			}
		case <-removed:
		case <-ctx.Done():
			return Endpoint{}, fmt.Errorf("%w: %s.%s", ErrGatewayNotFound, r.config.Service, r.config.Domain)
		}
	}
}

func (r *MDNSResolver) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if r.config.Interface != "" {
		iface, err := net.InterfaceByName(r.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// endpoint picks an address from entry, preferring IPv4.
func (r *MDNSResolver) endpoint(entry *zeroconf.ServiceEntry) (Endpoint, bool) {
	if entry == nil || entry.Port == 0 {
		return Endpoint{}, false
	}
	if r.config.Instance != "" && entry.Instance != r.config.Instance {
		return Endpoint{}, false
	}

	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return Endpoint{}, false
	}

	return Endpoint{
		Address:  net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)),
		Instance: entry.Instance,
	}, true
}

// AdvertiseConfig describes a gateway announcement.
type AdvertiseConfig struct {
	Instance  string
	Service   string
	Domain    string
	Port      int
	Interface string

	// TTL of the records. Zero uses the zeroconf default.
	TTL time.Duration

	// Text holds extra TXT entries as key=value.
	Text []string
}

// Advertisement is a running mDNS announcement.
type Advertisement struct {
	mu     sync.Mutex
	server *zeroconf.Server
}

// Advertise announces a gateway on the local network.
func Advertise(config AdvertiseConfig) (*Advertisement, error) {
	if config.Service == "" {
		config.Service = ServiceType
	}
	if config.Domain == "" {
		config.Domain = Domain
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}

	var opts []zeroconf.ServerOption
	if config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(config.TTL.Seconds())))
	}

	var ifaces []net.Interface
	if config.Interface != "" {
		iface, err := net.InterfaceByName(config.Interface)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", config.Interface, err)
		}
		ifaces = []net.Interface{*iface}
	}

	txt := append([]string{"ver=" + ProtocolVersion}, config.Text...)

	server, err := zeroconf.Register(
		config.Instance,
		config.Service,
		config.Domain,
		config.Port,
		txt,
		ifaces,
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register gateway service: %w", err)
	}
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the announcement. Safe to call more than once.
func (a *Advertisement) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}
