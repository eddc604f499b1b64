package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// relayMethod is the client-streaming method the shore-link relay
// accepts lifecycle events on.
const relayMethod = "/helmdash.v1.Relay/PublishEvents"

// eventFrame is the wire framing for one relayed event.
type eventFrame struct {
	Vessel        string `json:"vessel,omitempty"`
	TimestampUnix int64  `json:"timestamp_unix"`
	Event         Event  `json:"event"`
}

// Relay ships lifecycle events to an optional shore-link relay over a
// long-lived gRPC client stream. The stream is lazily opened and
// reopened once per send on failure; persistent failures surface as
// errors to the dispatcher, which logs and moves on.
type Relay struct {
	log         zerolog.Logger
	addr        string
	vessel      string
	dialTimeout time.Duration

	mu     sync.Mutex
	conn   *grpc.ClientConn
	stream grpc.ClientStream
}

// NewRelay constructs a relay client for the given address.
func NewRelay(addr, vessel string, log zerolog.Logger) *Relay {
	encoding.RegisterCodec(jsonCodec{})
	return &Relay{
		log:         log.With().Str("component", "relay").Logger(),
		addr:        addr,
		vessel:      vessel,
		dialTimeout: 8 * time.Second,
	}
}

// Publish implements Sink.
func (r *Relay) Publish(ctx context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureConnLocked(ctx); err != nil {
		return err
	}
	if r.stream == nil {
		if err := r.openStreamLocked(); err != nil {
			return err
		}
	}

	frame := eventFrame{
		Vessel:        r.vessel,
		TimestampUnix: event.Timestamp.UTC().Unix(),
		Event:         event,
	}
	if err := r.stream.SendMsg(&frame); err != nil {
		r.log.Warn().Err(err).Msg("Relay send failed, reopening stream")
		r.stream = nil
		if err2 := r.openStreamLocked(); err2 != nil {
			return fmt.Errorf("reopen relay stream: %w", err2)
		}
		if err2 := r.stream.SendMsg(&frame); err2 != nil {
			return fmt.Errorf("send event frame: %w", err2)
		}
	}
	return nil
}

// Close tears the stream and connection down.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		_ = r.stream.CloseSend()
		r.stream = nil
	}
	if r.conn != nil {
		err := r.conn.Close()
		r.conn = nil
		return err
	}
	return nil
}

func (r *Relay) ensureConnLocked(ctx context.Context) error {
	if r.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), r.dialTimeout)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		dialCtx, cancel = context.WithDeadline(context.Background(), dl)
		defer cancel()
	}

	conn, err := grpc.DialContext(
		dialCtx,
		r.addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return fmt.Errorf("relay dial %s: %w", r.addr, err)
	}
	r.conn = conn
	r.log.Info().Str("addr", r.addr).Msg("Relay connected")
	return nil
}

func (r *Relay) openStreamLocked() error {
	if r.conn == nil {
		return fmt.Errorf("relay conn is nil")
	}
	// The stream outlives any single publish, so it is bound to the
	// relay's lifetime, not the caller's deadline. Close tears it down.
	s, err := r.conn.NewStream(context.Background(), &grpc.StreamDesc{ClientStreams: true}, relayMethod)
	if err != nil {
		return fmt.Errorf("open relay stream: %w", err)
	}
	r.stream = s
	return nil
}
