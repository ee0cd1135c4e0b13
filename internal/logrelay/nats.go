package logrelay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// natsChanSize is the per-subscription message buffer.
const natsChanSize = 64

// NATSDialer subscribes to {Subject}.{agentID} on a NATS server. Each
// message payload is one log line.
type NATSDialer struct {
	URL     string
	Subject string
	Timeout time.Duration
	Options []nats.Option
}

// SubjectFor returns the subject carrying an agent's log lines.
func (d NATSDialer) SubjectFor(agentID string) string {
	return strings.TrimSuffix(d.Subject, ".") + "." + agentID
}

// Dial implements Dialer.
func (d NATSDialer) Dial(ctx context.Context, agentID string) (Stream, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	stream := &natsStream{closed: make(chan struct{})}
	opts := append([]nats.Option{
		nats.Name("fleetdash-logs"),
		nats.Timeout(timeout),
		nats.NoReconnect(),
		nats.ClosedHandler(func(*nats.Conn) { stream.markClosed() }),
	}, d.Options...)

	nc, err := nats.Connect(d.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.URL, err)
	}

	ch := make(chan *nats.Msg, natsChanSize)
	sub, err := nc.ChanSubscribe(d.SubjectFor(agentID), ch)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", d.SubjectFor(agentID), err)
	}

	stream.nc, stream.sub, stream.ch = nc, sub, ch
	return stream, nil
}

type natsStream struct {
	nc        *nats.Conn
	sub       *nats.Subscription
	ch        chan *nats.Msg
	closed    chan struct{}
	closeOnce sync.Once
	markOnce  sync.Once
}

// markClosed fires when the connection is gone, whether we closed it or
// the server dropped it.
func (s *natsStream) markClosed() {
	s.markOnce.Do(func() { close(s.closed) })
}

func (s *natsStream) Next(ctx context.Context) (string, error) {
	select {
	case msg := <-s.ch:
		return strings.TrimRight(string(msg.Data), "\r\n"), nil
	case <-s.closed:
		return "", nats.ErrConnectionClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *natsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.sub.Unsubscribe()
		s.nc.Close()
		s.markClosed()
	})
	return err
}
