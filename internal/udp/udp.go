// Package udp answers the out-of-band discovery pings clients use to
// measure latency and read server occupancy before connecting.
package udp

import (
	"context"
	"encoding/binary"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/murmelhq/murmel/internal/session"
)

// requestSize is the fixed discovery request: a big-endian int32 magic
// (zero) followed by a float64 client identifier.
const requestSize = 12

// StatsSource supplies the occupancy numbers packed into the reply.
type StatsSource interface {
	Count() int
}

var _ StatsSource = (*session.Registry)(nil)

// Responder answers discovery datagrams on a bound UDP socket.
type Responder struct {
	conn         net.PacketConn
	stats        StatsSource
	version      uint32
	maxUsers     int
	maxBandwidth int
}

// NewResponder wraps an already-bound packet socket.
func NewResponder(conn net.PacketConn, stats StatsSource, version uint32, maxUsers, maxBandwidth int) *Responder {
	return &Responder{
		conn:         conn,
		stats:        stats,
		version:      version,
		maxUsers:     maxUsers,
		maxBandwidth: maxBandwidth,
	}
}

// Run serves until the context is cancelled. Malformed datagrams are
// ignored; this socket is internet-facing.
func (r *Responder) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	buf := make([]byte, 64)
	for {
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if n != requestSize || binary.BigEndian.Uint32(buf[0:4]) != 0 {
			continue
		}

		reply := r.buildReply(buf[4:12])
		if _, err := r.conn.WriteTo(reply, addr); err != nil {
			log.Debug().Err(err).Str("module", "udp").
				Stringer("peer", addr).Msg("discovery reply failed")
		}
	}
}

// buildReply packs version, the echoed identifier, current user count
// (system seat excluded), max users and max bandwidth, all big-endian.
func (r *Responder) buildReply(ident []byte) []byte {
	out := make([]byte, 24)
	binary.BigEndian.PutUint32(out[0:4], r.version)
	copy(out[4:12], ident)
	binary.BigEndian.PutUint32(out[12:16], uint32(r.stats.Count()-1))
	binary.BigEndian.PutUint32(out[16:20], uint32(r.maxUsers))
	binary.BigEndian.PutUint32(out[20:24], uint32(r.maxBandwidth))
	return out
}
