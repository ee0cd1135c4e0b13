package logrelay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanStream replays lines from a channel until it is closed.
type chanStream struct {
	lines     chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func newChanStream() *chanStream {
	return &chanStream{lines: make(chan string, 16), closed: make(chan struct{})}
}

func (s *chanStream) Next(ctx context.Context) (string, error) {
	select {
	case line, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-s.closed:
		return "", io.ErrClosedPipe
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *chanStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type fakeDialer struct {
	mu      sync.Mutex
	streams map[string]*chanStream
	errs    map[string]error
	dialed  []string
}

func (d *fakeDialer) Dial(ctx context.Context, agentID string) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, agentID)
	if err, ok := d.errs[agentID]; ok {
		return nil, err
	}
	return d.streams[agentID], nil
}

func waitState(t *testing.T, r *Relay, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, _ := r.State()
		return s == want
	}, time.Second, time.Millisecond, "want state %s", want)
}

func TestRelay_SelectAndReceive(t *testing.T) {
	a := newChanStream()
	d := &fakeDialer{streams: map[string]*chanStream{"a": a}}
	r := New(d)

	s, _ := r.State()
	assert.Equal(t, StateIdle, s)

	sub := r.Select(context.Background(), "a")
	require.NotNil(t, sub)
	assert.Equal(t, "a", sub.AgentID)
	waitState(t, r, StateConnected)

	a.lines <- "hello"
	a.lines <- "world"
	require.Eventually(t, func() bool { return len(r.Lines()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"hello", "world"}, r.Lines())

	r.Close()
	s, _ = r.State()
	assert.Equal(t, StateClosed, s)
}

func TestRelay_BufferDropsOldest(t *testing.T) {
	a := newChanStream()
	r := New(&fakeDialer{streams: map[string]*chanStream{"a": a}}, WithBuffer(3))
	r.Select(context.Background(), "a")
	waitState(t, r, StateConnected)

	for i := 1; i <= 5; i++ {
		a.lines <- fmt.Sprintf("l%d", i)
	}
	require.Eventually(t, func() bool {
		lines := r.Lines()
		return len(lines) == 3 && lines[2] == "l5"
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"l3", "l4", "l5"}, r.Lines())
	r.Close()
}

func TestRelay_Since(t *testing.T) {
	a := newChanStream()
	r := New(&fakeDialer{streams: map[string]*chanStream{"a": a}}, WithBuffer(3))
	r.Select(context.Background(), "a")
	waitState(t, r, StateConnected)

	lines, seq := r.Since(0)
	assert.Empty(t, lines)
	assert.Equal(t, uint64(0), seq)

	a.lines <- "l1"
	a.lines <- "l2"
	require.Eventually(t, func() bool { _, n := r.Since(0); return n == 2 }, time.Second, time.Millisecond)
	lines, seq = r.Since(1)
	assert.Equal(t, []string{"l2"}, lines)
	assert.Equal(t, uint64(2), seq)

	for i := 3; i <= 6; i++ {
		a.lines <- fmt.Sprintf("l%d", i)
	}
	require.Eventually(t, func() bool { _, n := r.Since(0); return n == 6 }, time.Second, time.Millisecond)

	// l3 was evicted; only what is still buffered comes back.
	lines, _ = r.Since(2)
	assert.Equal(t, []string{"l4", "l5", "l6"}, lines)
	lines, _ = r.Since(5)
	assert.Equal(t, []string{"l6"}, lines)
	lines, _ = r.Since(6)
	assert.Empty(t, lines)

	r.Select(context.Background(), "")
	_, seq = r.Since(0)
	assert.Equal(t, uint64(0), seq)
	r.Close()
}

func TestRelay_SwitchReleasesPrevious(t *testing.T) {
	a, b := newChanStream(), newChanStream()
	d := &fakeDialer{streams: map[string]*chanStream{"a": a, "b": b}}
	r := New(d)

	subA := r.Select(context.Background(), "a")
	waitState(t, r, StateConnected)
	a.lines <- "from a"
	require.Eventually(t, func() bool { return len(r.Lines()) == 1 }, time.Second, time.Millisecond)

	subB := r.Select(context.Background(), "b")
	assert.NotEqual(t, subA.ID, subB.ID)

	select {
	case <-a.closed:
	default:
		t.Fatal("previous stream was not closed before the switch returned")
	}
	assert.Empty(t, r.Lines(), "buffer resets on selection change")

	waitState(t, r, StateConnected)
	b.lines <- "from b"
	require.Eventually(t, func() bool { return len(r.Lines()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"from b"}, r.Lines())
	assert.Equal(t, "b", r.AgentID())

	subA.Release() // idempotent
	r.Select(context.Background(), "")
	s, _ := r.State()
	assert.Equal(t, StateIdle, s)
	select {
	case <-b.closed:
	default:
		t.Fatal("deselecting did not release the stream")
	}
}

// countingDialer opens a fresh stream per Dial and tracks how many are open.
type countingDialer struct {
	mu   sync.Mutex
	open int
}

func (d *countingDialer) Dial(ctx context.Context, agentID string) (Stream, error) {
	d.mu.Lock()
	d.open++
	d.mu.Unlock()
	return &slowCloseStream{chanStream: newChanStream(), d: d}, nil
}

func (d *countingDialer) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

type slowCloseStream struct {
	*chanStream
	d    *countingDialer
	once sync.Once
}

func (s *slowCloseStream) Close() error {
	s.once.Do(func() {
		time.Sleep(time.Millisecond)
		s.d.mu.Lock()
		s.d.open--
		s.d.mu.Unlock()
	})
	return s.chanStream.Close()
}

func TestRelay_ConcurrentSelectReleasesEverything(t *testing.T) {
	d := &countingDialer{}
	r := New(d)
	r.Select(context.Background(), "seed")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Select(context.Background(), fmt.Sprintf("agent-%d", i))
		}(i)
	}
	wg.Wait()
	r.Close()

	assert.Equal(t, 0, d.Open())
	s, _ := r.State()
	assert.Equal(t, StateClosed, s)
}

func TestRelay_DialErrorDoesNotRetry(t *testing.T) {
	d := &fakeDialer{errs: map[string]error{"x": fmt.Errorf("connection refused")}}
	r := New(d)

	r.Select(context.Background(), "x")
	waitState(t, r, StateError)

	_, err := r.State()
	assert.True(t, errors.IsCode(err, errors.ErrStream))

	time.Sleep(30 * time.Millisecond)
	d.mu.Lock()
	assert.Equal(t, []string{"x"}, d.dialed, "no automatic retry")
	d.mu.Unlock()
}

func TestRelay_ServerCloseIsError(t *testing.T) {
	a := newChanStream()
	r := New(&fakeDialer{streams: map[string]*chanStream{"a": a}})
	r.Select(context.Background(), "a")
	waitState(t, r, StateConnected)

	close(a.lines)
	waitState(t, r, StateError)
	_, err := r.State()
	assert.Contains(t, err.Error(), "closed by server")
}

func TestRelay_Updates(t *testing.T) {
	a := newChanStream()
	r := New(&fakeDialer{streams: map[string]*chanStream{"a": a}})
	r.Select(context.Background(), "a")

	select {
	case <-r.Updates():
	case <-time.After(time.Second):
		t.Fatal("no update notification")
	}
	r.Close()
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func TestWebSocketDialer(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, line := range []string{"boot\n", "ready"} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	d := WebSocketDialer{BaseURL: srv.URL}
	stream, err := d.Dial(context.Background(), "agent 7")
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, "/api/agents/agent 7/logs/stream", gotPath)

	line, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "boot", line)

	line, err = stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ready", line)

	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestWebSocketDialer_StreamURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://api:8000", "ws://api:8000/api/agents/a1/logs/stream", false},
		{"https://api/", "wss://api/api/agents/a1/logs/stream", false},
		{"ws://api/base", "ws://api/base/api/agents/a1/logs/stream", false},
		{"ftp://api", "", true},
	}

	for _, tt := range tests {
		got, err := WebSocketDialer{BaseURL: tt.base}.StreamURL("a1")
		if tt.wantErr {
			assert.Error(t, err, tt.base)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestWebSocketDialer_RejectedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := WebSocketDialer{BaseURL: srv.URL}.Dial(context.Background(), "a1")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "404"))
}

func TestNATSDialer_SubjectFor(t *testing.T) {
	assert.Equal(t, "agents.logs.42", NATSDialer{Subject: "agents.logs"}.SubjectFor("42"))
	assert.Equal(t, "agents.logs.42", NATSDialer{Subject: "agents.logs."}.SubjectFor("42"))
}

func TestState_String(t *testing.T) {
	for _, s := range States {
		assert.NotEqual(t, "unknown", s.String())
	}
	assert.Equal(t, "unknown", State(42).String())
}
