package socket

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kleeedolinux/socketclient/socket/transport"
)

type closeCall struct {
	code   int
	reason string
}

// fakeTransport records what the client asks of it. Close reports the
// requested code back as a closed event unless holdClose is set.
type fakeTransport struct {
	mu        sync.Mutex
	listener  transport.Listener
	active    bool
	opens     []string
	protocols [][]string
	sent      [][]byte
	closes    []closeCall
	sendErr   error
	holdClose bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) SetListener(l transport.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

func (f *fakeTransport) Open(endpoint string, protocols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = true
	f.opens = append(f.opens, endpoint)
	f.protocols = append(f.protocols, protocols)
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Close(code int, reason string) {
	f.mu.Lock()
	f.closes = append(f.closes, closeCall{code: code, reason: reason})
	fire := f.active && !f.holdClose
	if fire {
		f.active = false
	}
	l := f.listener
	f.mu.Unlock()

	if fire && l != nil {
		l(transport.Event{Kind: transport.EventClosed, Code: code, Reason: reason})
	}
}

func (f *fakeTransport) fire(ev transport.Event) {
	f.mu.Lock()
	if ev.Kind == transport.EventClosed {
		f.active = false
	}
	l := f.listener
	f.mu.Unlock()
	l(ev)
}

func (f *fakeTransport) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

func (f *fakeTransport) lastOpen() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.opens) == 0 {
		return ""
	}
	return f.opens[len(f.opens)-1]
}

func (f *fakeTransport) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeTransport) closeCalls() []closeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]closeCall(nil), f.closes...)
}

func (f *fakeTransport) setSendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *fakeTransport) setHoldClose(hold bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdClose = hold
}

type pingingTransport struct {
	*fakeTransport
	pingMu sync.Mutex
	pings  int
}

func (p *pingingTransport) Ping() error {
	p.pingMu.Lock()
	defer p.pingMu.Unlock()
	p.pings++
	return nil
}

func (p *pingingTransport) pingCount() int {
	p.pingMu.Lock()
	defer p.pingMu.Unlock()
	return p.pings
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	fn    func()
	done  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	pending := !t.done
	t.done = true
	return pending
}

// Advance moves the clock forward and fires every timer that came due, in
// deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	kept := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.done:
		case !t.at.After(c.now):
			t.done = true
			due = append(due, t)
		default:
			kept = append(kept, t)
		}
	}
	c.timers = kept
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// settle waits until the client's event loop has run everything queued so
// far, including work queued by that work.
func settle(t *testing.T, c *Client) {
	t.Helper()
	for i := 0; i < 100; i++ {
		done := make(chan struct{})
		if !c.queue.push(func() { close(done) }) {
			return
		}
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("event loop stalled")
		}

		c.queue.mu.Lock()
		idle := len(c.queue.tasks) == 0
		c.queue.mu.Unlock()
		if idle {
			return
		}
	}
	t.Fatal("event loop never went idle")
}

func newTestClient(t *testing.T, tr Transport, opts ...ClientOption) (*Client, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	base := []ClientOption{
		WithTransport(tr),
		withClock(clk),
		WithLogger(zerolog.Nop()),
	}
	c := NewClient("ws://example.test/socket", append(base, opts...)...)
	t.Cleanup(func() {
		c.Close()
		<-c.Done()
	})
	return c, clk
}

func connectClient(t *testing.T, c *Client, ft *fakeTransport) {
	t.Helper()
	c.Connect()
	settle(t, c)
	ft.fire(transport.Event{Kind: transport.EventOpened})
	settle(t, c)
	require.Equal(t, StateConnected, c.State())
}

func closeFromPeer(t *testing.T, c *Client, ft *fakeTransport, code int, reason string) {
	t.Helper()
	ft.fire(transport.Event{Kind: transport.EventClosed, Code: code, Reason: reason})
	settle(t, c)
}

// capture records handler invocations per event.
type capture struct {
	mu     sync.Mutex
	events []Event
	data   []interface{}
}

func (r *capture) handler(event Event) Handler {
	return func(data interface{}) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, event)
		r.data = append(r.data, data)
	}
}

func (r *capture) watch(c *Client, events ...Event) *capture {
	for _, ev := range events {
		c.On(ev, r.handler(ev))
	}
	return r
}

func (r *capture) of(event Event) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interface{}
	for i, ev := range r.events {
		if ev == event {
			out = append(out, r.data[i])
		}
	}
	return out
}

func (r *capture) order() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
