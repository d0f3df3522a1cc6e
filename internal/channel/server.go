package channel

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/wxdata"
	"github.com/skysim/noawx/pkg/logger"
)

// Provider answers queries from the server's request loop.
type Provider interface {
	// Snapshot returns the full weather state localized to a point. It is
	// called on the single-threaded request loop and must serve from cached
	// data only; a slow answer stalls every client.
	Snapshot(lat, lon float64) (*wxdata.Snapshot, error)

	// StationSnapshot returns an ad-hoc, station-only snapshot for an ICAO
	// code. The result must not carry Info. It runs off the request loop
	// and may fetch; it must be safe to call concurrently.
	StationSnapshot(icao string) (*wxdata.Snapshot, error)

	// Reload re-reads configuration in place.
	Reload() error

	// ResetReports reinitializes the station-report source.
	ResetReports() error
}

// Server is the UDP request/response loop. One goroutine reads datagrams and
// answers them in order; it never blocks on data refresh.
type Server struct {
	cfg      config.ServerConfig
	provider Provider
	logger   *logger.Logger

	// onShutdown is invoked once when a client sends the shutdown command,
	// after the farewell has been sent. The host tears the process down.
	onShutdown func()

	conn *net.UDPConn
	wg   sync.WaitGroup

	mu       sync.Mutex
	started  bool
	lastAddr *net.UDPAddr
}

// NewServer creates the request loop. onShutdown may be nil.
func NewServer(cfg config.ServerConfig, provider Provider, onShutdown func(), log *logger.Logger) *Server {
	return &Server{
		cfg:        cfg,
		provider:   provider,
		onShutdown: onShutdown,
		logger:     log.Named("channel-server"),
	}
}

// Start binds the socket and launches the request loop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	addr := &net.UDPAddr{IP: net.ParseIP(s.cfg.Host), Port: s.cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("binding weather channel: %w", err)
	}
	s.conn = conn
	s.started = true

	s.logger.Info("Weather channel listening",
		logger.String("addr", conn.LocalAddr().String()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serve()
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop sends the farewell to the last known client and closes the socket.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.sayGoodbyeLocked()
	conn := s.conn
	s.mu.Unlock()

	conn.Close()
	s.wg.Wait()

	s.logger.Info("Weather channel stopped")
	return nil
}

func (s *Server) serve() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Read error on weather channel", logger.Error(err))
			continue
		}
		if stop := s.handle(string(buf[:n]), addr); stop {
			return
		}
	}
}

// handle processes one datagram. Returns true when the loop must exit.
func (s *Server) handle(msg string, addr *net.UDPAddr) bool {
	req, err := ParseRequest(msg)
	if err != nil {
		// Malformed datagrams are dropped without a response.
		s.logger.Debug("Dropping datagram", logger.Error(err))
		return false
	}

	s.mu.Lock()
	s.lastAddr = addr
	s.mu.Unlock()

	switch req.Kind {
	case KindPing:
		s.logger.Debug("Client handshake", logger.String("from", addr.String()))

	case KindPosition:
		snap, err := s.provider.Snapshot(req.Lat, req.Lon)
		if err != nil {
			s.logger.Warn("Position query failed",
				logger.Float64("lat", req.Lat),
				logger.Float64("lon", req.Lon),
				logger.Error(err))
			return false
		}
		s.send(snap, addr)

	case KindStation:
		// An uncached station falls through to an upstream fetch, so the
		// lookup runs off the loop; queued position queries are not held
		// behind it. Responses go out as they complete.
		go func(icao string, addr *net.UDPAddr) {
			snap, err := s.provider.StationSnapshot(icao)
			if err != nil {
				s.logger.Warn("Station query failed",
					logger.String("icao", icao),
					logger.Error(err))
				return
			}
			s.send(snap, addr)
		}(req.ICAO, addr)

	case KindReload:
		if err := s.provider.Reload(); err != nil {
			s.logger.Error("Reload failed", logger.Error(err))
		}

	case KindResetMetar:
		if err := s.provider.ResetReports(); err != nil {
			s.logger.Error("Station source reset failed", logger.Error(err))
		}

	case KindShutdown:
		s.logger.Info("Shutdown requested", logger.String("from", addr.String()))
		s.writeBye(addr)
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		s.conn.Close()
		if s.onShutdown != nil {
			s.onShutdown()
		}
		return true
	}

	return false
}

func (s *Server) send(snap *wxdata.Snapshot, addr *net.UDPAddr) {
	data, err := wxdata.Encode(snap)
	if err != nil {
		s.logger.Error("Snapshot encode failed", logger.Error(err))
		return
	}
	if _, err := s.conn.WriteToUDP(data, addr); err != nil {
		s.logger.Warn("Send failed", logger.String("to", addr.String()), logger.Error(err))
	}
}

func (s *Server) writeBye(addr *net.UDPAddr) {
	data, err := wxdata.EncodeBye()
	if err != nil {
		return
	}
	s.conn.WriteToUDP(data, addr)
}

// sayGoodbyeLocked notifies the last client on a host-initiated stop, so its
// receive loop exits instead of waiting on a dead socket.
func (s *Server) sayGoodbyeLocked() {
	if s.lastAddr != nil {
		s.writeBye(s.lastAddr)
	}
}
