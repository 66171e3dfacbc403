package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultHelloTimeout bounds the wait for a client's HELLO.
const DefaultHelloTimeout = 5 * time.Second

// AcceptFunc decides the status answered to a HELLO. Any status other than
// StatusConnected closes the link after it is sent.
type AcceptFunc func(clientID string) (Status, string)

// ServerConfig configures a gateway Server.
type ServerConfig struct {
	// Address to listen on (e.g., ":7373" or "127.0.0.1:0").
	Address string

	// MaxMessageSize is the maximum frame payload (default: 4KB).
	MaxMessageSize uint32

	// HelloTimeout bounds the wait for HELLO (default: 5s).
	HelloTimeout time.Duration

	// Accept decides each HELLO. Nil answers CONNECTED.
	Accept AcceptFunc

	// OnConnect is called when a client link reaches CONNECTED.
	OnConnect func(clientID string)

	// OnDisconnect is called when a CONNECTED link closes.
	OnDisconnect func(clientID string)

	// Logger is the optional logger for operational output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// Server is the gateway side of the link. It stands in for a BLE-to-IP
// bridge: each accepted HELLO represents a proxy connection to the mesh.
type Server struct {
	config   ServerConfig
	listener net.Listener
	logger   *slog.Logger

	conns   map[*serverConn]struct{}
	connsMu sync.RWMutex

	muted   atomic.Bool
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type serverConn struct {
	conn     net.Conn
	framer   *Framer
	clientID string

	closeOnce sync.Once
}

func (sc *serverConn) close() {
	sc.closeOnce.Do(func() { sc.conn.Close() })
}

// NewServer creates a gateway server.
func NewServer(config ServerConfig) *Server {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.HelloTimeout <= 0 {
		config.HelloTimeout = DefaultHelloTimeout
	}
	return &Server{
		config: config,
		logger: config.Logger,
		conns:  make(map[*serverConn]struct{}),
	}
}

// Start begins accepting links.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and every link, then waits for handlers to exit.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	for sc := range s.conns {
		sc.close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of CONNECTED links.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Drop reports DISCONNECTED to every client and closes their links, as a
// gateway does when its proxy node goes away. It returns the number dropped.
func (s *Server) Drop(reason string) int {
	return s.closeAll(&Message{Type: MsgStatus, Status: StatusDisconnected, Reason: reason})
}

// Kill closes every link without a status, as a crashed gateway would.
func (s *Server) Kill() int {
	return s.closeAll(nil)
}

// SetMuted stops or resumes answering pings.
func (s *Server) SetMuted(muted bool) {
	s.muted.Store(muted)
}

func (s *Server) closeAll(notice *Message) int {
	s.connsMu.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for sc := range s.conns {
		conns = append(conns, sc)
	}
	s.connsMu.Unlock()

	for _, sc := range conns {
		if notice != nil {
			_ = sc.framer.WriteMessage(notice)
		}
		sc.close()
	}
	return len(conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.debugLog("accept error", "error", err)
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	sc := &serverConn{conn: conn, framer: NewFramerWithMaxSize(conn, s.config.MaxMessageSize)}
	defer sc.close()

	// HELLO must arrive first.
	_ = conn.SetReadDeadline(time.Now().Add(s.config.HelloTimeout))
	hello, err := sc.framer.ReadMessage()
	if err != nil || hello.Type != MsgHello {
		s.debugLog("link rejected: no hello", "remote", conn.RemoteAddr(), "error", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	sc.clientID = hello.ClientID

	status, reason := StatusConnected, ""
	if s.config.Accept != nil {
		status, reason = s.config.Accept(hello.ClientID)
	}
	if err := sc.framer.WriteMessage(&Message{Type: MsgStatus, Status: status, Reason: reason}); err != nil {
		return
	}
	if !status.Connected() {
		s.debugLog("link refused", "client", sc.clientID, "status", status, "reason", reason)
		return
	}

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		return
	}
	s.conns[sc] = struct{}{}
	s.connsMu.Unlock()

	s.debugLog("client connected", "client", sc.clientID, "remote", conn.RemoteAddr())
	if s.config.OnConnect != nil {
		s.config.OnConnect(sc.clientID)
	}

	defer func() {
		s.connsMu.Lock()
		delete(s.conns, sc)
		s.connsMu.Unlock()
		s.debugLog("client disconnected", "client", sc.clientID)
		if s.config.OnDisconnect != nil {
			s.config.OnDisconnect(sc.clientID)
		}
	}()

	for {
		msg, err := sc.framer.ReadMessage()
		if err != nil {
			return
		}
		switch msg.Type {
		case MsgPing:
			if !s.muted.Load() {
				_ = sc.framer.WriteMessage(&Message{Type: MsgPong, Seq: msg.Seq})
			}
		case MsgBye:
			return
		}
	}
}

// debugLog logs a debug message if logging is enabled.
func (s *Server) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
