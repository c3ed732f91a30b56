// Package transport provides the datagram socket this sender drives: a
// single unicast UDP connection to a fixed peer, plus an in-memory fake for
// tests.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/aetherflow/rdt-sender/internal/rdt/protocol"
)

const (
	// DefaultReadBufferSize and DefaultWriteBufferSize size the kernel
	// socket buffers; one full window's worth of max-size segments fits
	// comfortably inside either.
	DefaultReadBufferSize  = 2 * 1024 * 1024
	DefaultWriteBufferSize = 2 * 1024 * 1024

	// DefaultReadTimeout bounds how long a single Receive blocks when the
	// caller passes a context without its own deadline.
	DefaultReadTimeout = 30 * time.Second
)

// Conn is the datagram transport a Sender depends on. The real
// implementation wraps a connected UDP socket; tests substitute an
// in-memory fake.
type Conn interface {
	Send(pkt *protocol.Packet) error
	Receive(ctx context.Context) (*protocol.Packet, error)
	Close() error
}

// UDPConn is a connected UDP socket to a single peer.
type UDPConn struct {
	conn *net.UDPConn

	readBuf []byte

	mu     sync.RWMutex
	closed bool
	stats  Statistics
}

// Statistics holds connection counters for logging.
type Statistics struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	Errors          uint64
}

// Config tunes socket buffer sizes.
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultConfig returns the buffer sizes used when none are given.
func DefaultConfig() *Config {
	return &Config{
		ReadBufferSize:  DefaultReadBufferSize,
		WriteBufferSize: DefaultWriteBufferSize,
	}
}

// Dial connects a UDP socket to host:port, the sender's single fixed peer.
func Dial(host string, port int, cfg *Config) (*UDPConn, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("transport: resolve peer address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial udp: %w", err)
	}

	if err := conn.SetReadBuffer(cfg.ReadBufferSize); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: set read buffer: %w", err)
	}
	if err := conn.SetWriteBuffer(cfg.WriteBufferSize); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: set write buffer: %w", err)
	}

	return &UDPConn{
		conn:    conn,
		readBuf: make([]byte, protocol.HeaderSize+protocol.PayloadMax),
	}, nil
}

// Send marshals and writes a single packet to the peer. A transport-fatal
// condition (the write itself fails) is returned for the caller to abort
// on; the caller distinguishes it from transient receive errors.
func (c *UDPConn) Send(pkt *protocol.Packet) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return fmt.Errorf("transport: connection closed")
	}
	c.mu.RUnlock()

	raw, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("transport: marshal packet: %w", err)
	}

	n, err := c.conn.Write(raw)
	if err != nil {
		c.mu.Lock()
		c.stats.Errors++
		c.mu.Unlock()
		return fmt.Errorf("transport: send packet: %w", err)
	}

	c.mu.Lock()
	c.stats.PacketsSent++
	c.stats.BytesSent += uint64(n)
	c.mu.Unlock()
	return nil
}

// Receive blocks for one datagram from the peer, honoring ctx's deadline if
// it has one. Errors returned here are transport-transient by convention:
// the caller logs and continues rather than aborting.
func (c *UDPConn) Receive(ctx context.Context) (*protocol.Packet, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, fmt.Errorf("transport: connection closed")
	}
	c.mu.RUnlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultReadTimeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("transport: set read deadline: %w", err)
	}

	n, err := c.conn.Read(c.readBuf)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			c.mu.Lock()
			c.stats.Errors++
			c.mu.Unlock()
			return nil, fmt.Errorf("transport: receive packet: %w", err)
		}
	}

	c.mu.Lock()
	c.stats.PacketsReceived++
	c.stats.BytesReceived += uint64(n)
	c.mu.Unlock()

	pkt, err := protocol.Unmarshal(c.readBuf[:n])
	if err != nil {
		c.mu.Lock()
		c.stats.Errors++
		c.mu.Unlock()
		return nil, fmt.Errorf("transport: unmarshal packet: %w", err)
	}
	return pkt, nil
}

// Statistics returns a snapshot of the connection counters.
func (c *UDPConn) Statistics() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Close closes the underlying socket. Safe to call more than once.
func (c *UDPConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
