package channel

import (
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/wxdata"
	"github.com/skysim/noawx/pkg/logger"
)

// requeryDistanceDeg is how far the aircraft must move before the position
// query is re-sent ahead of the time-based refresh.
const requeryDistanceDeg = 0.1

// requeryInterval re-sends the position query even without movement, so the
// client picks up refreshed source data.
const requeryInterval = time.Minute

// adhocQueueSize bounds the pending station-query responses. These are
// user-triggered one-offs; overflow drops the oldest.
const adhocQueueSize = 16

// Client talks to the weather server over UDP. One receive goroutine sorts
// incoming payloads into a single-slot snapshot channel and a small ad-hoc
// queue; the consumer drains both without blocking once per frame.
type Client struct {
	server config.ServerConfig
	client config.ClientConfig
	logger *logger.Logger

	conn *net.UDPConn
	wg   sync.WaitGroup

	snapCh  chan *wxdata.Snapshot
	adhocCh chan *wxdata.Snapshot

	mu      sync.Mutex
	started bool

	// Query pacing. Touched only by the consumer goroutine.
	hasSent          bool
	lastSent         time.Time
	lastLat, lastLon float64
}

func NewClient(server config.ServerConfig, client config.ClientConfig, log *logger.Logger) *Client {
	return &Client{
		server:  server,
		client:  client,
		logger:  log.Named("channel-client"),
		snapCh:  make(chan *wxdata.Snapshot, 1),
		adhocCh: make(chan *wxdata.Snapshot, adhocQueueSize),
	}
}

// Start connects the socket, performs the handshake and launches the
// receive loop. Safe to call again after a failed attempt.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	addr := &net.UDPAddr{IP: net.ParseIP(c.server.Host), Port: c.server.Port}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("connecting weather channel: %w", err)
	}
	c.conn = conn

	if _, err := conn.Write([]byte(cmdPing)); err != nil {
		conn.Close()
		return fmt.Errorf("weather channel handshake: %w", err)
	}

	c.started = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.recvLoop()

		// A server farewell or read error ends the loop without Close; mark
		// the client stopped so the next Start dials fresh.
		c.mu.Lock()
		if c.started {
			c.started = false
			c.conn.Close()
		}
		c.mu.Unlock()
	}()

	c.logger.Info("Weather channel connected",
		logger.String("server", addr.String()))
	return nil
}

// Close shuts the socket and waits for the receive loop.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	conn := c.conn
	c.mu.Unlock()

	conn.Close()
	c.wg.Wait()
	return nil
}

func (c *Client) recvLoop() {
	buf := make([]byte, 8192)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.logger.Warn("Weather channel read error", logger.Error(err))
			}
			return
		}

		snap, bye, err := wxdata.Decode(buf[:n])
		if err != nil {
			// Undecodable payloads never disturb the current snapshot.
			c.logger.Debug("Dropping payload", logger.Error(err))
			continue
		}
		if bye {
			c.logger.Info("Server said goodbye")
			return
		}

		if snap.IsFull() {
			c.publishSnapshot(snap)
		} else {
			c.publishAdhoc(snap)
		}
	}
}

// publishSnapshot replaces whatever full snapshot the consumer has not yet
// collected. Only the receive loop writes here, so drain-then-send is safe.
func (c *Client) publishSnapshot(snap *wxdata.Snapshot) {
	select {
	case <-c.snapCh:
	default:
	}
	c.snapCh <- snap
}

func (c *Client) publishAdhoc(snap *wxdata.Snapshot) {
	for {
		select {
		case c.adhocCh <- snap:
			return
		default:
		}
		select {
		case <-c.adhocCh:
		default:
		}
	}
}

// Latest returns the newest full snapshot since the previous call, or false
// when nothing new arrived. Never blocks.
func (c *Client) Latest() (*wxdata.Snapshot, bool) {
	select {
	case snap := <-c.snapCh:
		return snap, true
	default:
		return nil, false
	}
}

// DrainAdhoc returns all pending ad-hoc responses. Never blocks.
func (c *Client) DrainAdhoc() []*wxdata.Snapshot {
	var out []*wxdata.Snapshot
	for {
		select {
		case snap := <-c.adhocCh:
			out = append(out, snap)
		default:
			return out
		}
	}
}

// Query sends a position query, paced so the server is not hammered: at most
// one in flight per configured interval, and only when the aircraft moved or
// the re-query interval elapsed. Reports whether a query went out.
func (c *Client) Query(lat, lon float64) bool {
	now := time.Now()

	if c.hasSent {
		since := now.Sub(c.lastSent)
		if since < time.Duration(c.client.QueryIntervalSecs*float64(time.Second)) {
			return false
		}
		moved := math.Abs(lat-c.lastLat) >= requeryDistanceDeg ||
			math.Abs(lon-c.lastLon) >= requeryDistanceDeg
		if !moved && since < requeryInterval {
			return false
		}
	}

	if err := c.sendText(PositionQuery(lat, lon)); err != nil {
		c.logger.Warn("Position query send failed", logger.Error(err))
		return false
	}

	c.hasSent = true
	c.lastSent = now
	c.lastLat, c.lastLon = lat, lon
	return true
}

// QueryStation requests a one-off station report; the response arrives on
// the ad-hoc queue.
func (c *Client) QueryStation(icao string) error {
	return c.sendText(StationQuery(icao))
}

// Reload asks the server to re-read its configuration. No response.
func (c *Client) Reload() error {
	return c.sendText(cmdReload)
}

// ResetMetar asks the server to reinitialize its station-report source.
func (c *Client) ResetMetar() error {
	return c.sendText(cmdResetMetar)
}

// Shutdown asks the server to terminate. The server answers with the
// farewell marker, which ends the receive loop.
func (c *Client) Shutdown() error {
	return c.sendText(cmdShutdown)
}

func (c *Client) sendText(msg string) error {
	c.mu.Lock()
	conn := c.conn
	started := c.started
	c.mu.Unlock()

	if !started {
		return errors.New("weather channel not connected")
	}
	_, err := conn.Write([]byte(msg))
	return err
}
