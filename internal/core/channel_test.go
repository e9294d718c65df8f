package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sergiobarbero91-prog/airband/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
	closed bool
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("send buffer full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) audioFrames(t *testing.T) []audioMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []audioMessage
	for _, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("bad frame json: %v", err)
		}
		if env.Type != "audio" {
			continue
		}
		var msg audioMessage
		if err := json.Unmarshal(f, &msg); err != nil {
			t.Fatalf("bad audio json: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

func (c *fakeConn) lastStatus(t *testing.T) (statusMessage, bool) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		var msg statusMessage
		if err := json.Unmarshal(c.frames[i], &msg); err != nil {
			t.Fatalf("bad status json: %v", err)
		}
		if msg.Type == "channelStatus" {
			return msg, true
		}
	}
	return statusMessage{}, false
}

type kickAfter struct{ n int }

func (p kickAfter) OnBackpressure(_ *domain.Channel, _ domain.SessionID, failures int) BackpressureAction {
	if failures >= p.n {
		return KickMember
	}
	return DropFrame
}

func newTestChannel(t *testing.T, lease time.Duration, policy Policy) ChannelService {
	t.Helper()
	ch := NewChannelService(&domain.Channel{ID: 3, DisplayName: "Airport"}, lease, policy)
	t.Cleanup(ch.Stop)
	return ch
}

func join(t *testing.T, ch ChannelService, sid domain.SessionID) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	meta, err := domain.NewMember(domain.Identity(sid), "user-"+string(sid))
	if err != nil {
		t.Fatalf("member: %v", err)
	}
	ch.Join(sid, meta, conn)
	return conn
}

func TestAcquireMutualExclusion(t *testing.T) {
	ch := newTestChannel(t, time.Hour, nil)
	const n = 8
	sids := make([]domain.SessionID, n)
	for i := range sids {
		sids[i] = domain.SessionID(fmt.Sprintf("s%d", i))
		join(t, ch, sids[i])
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for _, sid := range sids {
		wg.Add(1)
		go func(sid domain.SessionID) {
			defer wg.Done()
			res := ch.Acquire(sid)
			if res.Granted {
				mu.Lock()
				granted++
				mu.Unlock()
			} else if res.Reason != ReasonChannelBusy {
				t.Errorf("denied with reason %q, want %q", res.Reason, ReasonChannelBusy)
			}
		}(sid)
	}
	wg.Wait()

	if granted != 1 {
		t.Fatalf("granted %d sessions, want exactly 1", granted)
	}
	if !ch.Busy() {
		t.Fatalf("channel should be busy after a grant")
	}
}

func TestAcquireDeniedWhileHeld(t *testing.T) {
	ch := newTestChannel(t, time.Hour, nil)
	join(t, ch, "a")
	join(t, ch, "b")

	if res := ch.Acquire("a"); !res.Granted {
		t.Fatalf("first acquire should succeed, got reason %q", res.Reason)
	}
	if res := ch.Acquire("b"); res.Granted || res.Reason != ReasonChannelBusy {
		t.Fatalf("second acquire should be ChannelBusy, got %+v", res)
	}
	// Re-acquire by the holder renews, not denies.
	if res := ch.Acquire("a"); !res.Granted {
		t.Fatalf("holder re-acquire should succeed, got %+v", res)
	}
}

func TestAcquireRequiresMembership(t *testing.T) {
	ch := newTestChannel(t, time.Hour, nil)
	if res := ch.Acquire("stranger"); res.Granted || res.Reason != ReasonNotMember {
		t.Fatalf("non-member acquire should be denied with NotMember, got %+v", res)
	}
}

func TestReleaseByNonHolderIsNoop(t *testing.T) {
	ch := newTestChannel(t, time.Hour, nil)
	join(t, ch, "a")
	join(t, ch, "b")
	ch.Acquire("a")

	ch.Release("b")
	if !ch.Busy() {
		t.Fatalf("release by non-holder must not free the channel")
	}

	ch.Release("a")
	if ch.Busy() {
		t.Fatalf("release by holder should free the channel")
	}
	if res := ch.Acquire("b"); !res.Granted {
		t.Fatalf("acquire after release should succeed, got %+v", res)
	}
}

func TestSweepForceReleasesExpiredLease(t *testing.T) {
	ch := newTestChannel(t, time.Hour, nil)
	join(t, ch, "a")
	connB := join(t, ch, "b")
	ch.Acquire("a")

	ch.SweepExpired(time.Now())
	if !ch.Busy() {
		t.Fatalf("sweep before expiry must not release the lock")
	}

	ch.SweepExpired(time.Now().Add(2 * time.Hour))
	if ch.Busy() {
		t.Fatalf("sweep after expiry should force-release the lock")
	}

	status, ok := connB.lastStatus(t)
	if !ok {
		t.Fatalf("member b received no channelStatus")
	}
	if status.Busy || status.TransmitterID != "" {
		t.Fatalf("status after force-release should be free, got %+v", status)
	}

	if res := ch.Acquire("b"); !res.Granted {
		t.Fatalf("acquire after force-release should succeed, got %+v", res)
	}
}

func TestRenewByStrangerCannotResurrectLease(t *testing.T) {
	ch := newTestChannel(t, time.Hour, nil)
	join(t, ch, "a")
	join(t, ch, "b")
	ch.Acquire("a")
	ch.Release("a")

	ch.Renew("a")
	ch.Renew("b")
	if ch.Busy() {
		t.Fatalf("renew without the lock must not set a transmitter")
	}
}

func TestRenewExtendsHolderLease(t *testing.T) {
	ch := newTestChannel(t, 50*time.Millisecond, nil)
	join(t, ch, "a")
	ch.Acquire("a")

	for i := 0; i < 3; i++ {
		time.Sleep(30 * time.Millisecond)
		ch.Renew("a")
		ch.SweepExpired(time.Now())
		if !ch.Busy() {
			t.Fatalf("lease expired despite renewals (iteration %d)", i)
		}
	}

	time.Sleep(80 * time.Millisecond)
	ch.SweepExpired(time.Now())
	if ch.Busy() {
		t.Fatalf("lease should expire once renewals stop")
	}
}

func TestFrameRelayOrderAndSenderExclusion(t *testing.T) {
	ch := newTestChannel(t, time.Hour, nil)
	connA := join(t, ch, "a")
	connB := join(t, ch, "b")
	connC := join(t, ch, "c")
	ch.Acquire("a")

	for seq := uint64(1); seq <= 5; seq++ {
		ch.SubmitFrame("a", seq, []byte{byte(seq)})
	}
	ch.Snapshot() // serialize: all prior events are processed once this returns

	for name, conn := range map[string]*fakeConn{"b": connB, "c": connC} {
		frames := conn.audioFrames(t)
		if len(frames) != 5 {
			t.Fatalf("member %s got %d audio frames, want 5", name, len(frames))
		}
		for i, f := range frames {
			if f.SenderID != "a" {
				t.Fatalf("member %s frame %d senderId = %q, want a", name, i, f.SenderID)
			}
			if f.Seq != uint64(i+1) {
				t.Fatalf("member %s frame %d out of order: seq %d", name, i, f.Seq)
			}
		}
	}

	if got := connA.audioFrames(t); len(got) != 0 {
		t.Fatalf("sender received %d of its own frames, want 0", len(got))
	}
}

func TestFrameFromNonHolderNeverRelayed(t *testing.T) {
	ch := newTestChannel(t, time.Hour, nil)
	join(t, ch, "a")
	connB := join(t, ch, "b")
	connC := join(t, ch, "c")

	// No transmitter at all.
	ch.SubmitFrame("b", 1, []byte("x"))
	// Now a holds the lock; frames from c must still be dropped.
	ch.Acquire("a")
	ch.SubmitFrame("c", 1, []byte("y"))
	ch.Snapshot()

	if got := connB.audioFrames(t); len(got) != 0 {
		t.Fatalf("frames from non-holder relayed to b: %d", len(got))
	}
	if got := connC.audioFrames(t); len(got) != 0 {
		t.Fatalf("frames from non-holder relayed to c: %d", len(got))
	}
}

func TestFramesDoNotExtendLease(t *testing.T) {
	ch := newTestChannel(t, time.Hour, nil)
	join(t, ch, "a")
	join(t, ch, "b")
	ch.Acquire("a")

	ch.SubmitFrame("a", 1, []byte("x"))
	ch.Snapshot()

	// Frames are not proof of life: even a steady stream must not survive
	// the lease deadline.
	ch.SweepExpired(time.Now().Add(2 * time.Hour))
	if ch.Busy() {
		t.Fatalf("frame submission must not extend the lease")
	}
}

func TestLeaveReleasesLockAndIsIdempotent(t *testing.T) {
	ch := newTestChannel(t, time.Hour, nil)
	join(t, ch, "a")
	connB := join(t, ch, "b")
	ch.Acquire("a")

	ch.Leave("a")
	if ch.Busy() {
		t.Fatalf("leaving holder must release the lock")
	}
	if got := ch.MemberCount(); got != 1 {
		t.Fatalf("member count = %d, want 1", got)
	}

	ch.Leave("a")
	if got := ch.MemberCount(); got != 1 {
		t.Fatalf("second leave changed member count to %d", got)
	}

	status, ok := connB.lastStatus(t)
	if !ok || status.Busy {
		t.Fatalf("member b should observe busy=false after holder left, got %+v ok=%v", status, ok)
	}
	if res := ch.Acquire("b"); !res.Granted {
		t.Fatalf("acquire after holder left should succeed, got %+v", res)
	}
}

func TestPresenceSnapshot(t *testing.T) {
	ch := newTestChannel(t, time.Hour, nil)
	join(t, ch, "a")
	join(t, ch, "b")
	ch.Acquire("b")

	snap := ch.Snapshot()
	if len(snap.Members) != 2 {
		t.Fatalf("snapshot has %d members, want 2", len(snap.Members))
	}
	if !snap.Busy || snap.TransmitterID != "b" {
		t.Fatalf("snapshot transmitter = %+v, want busy b", snap)
	}
	for _, m := range snap.Members {
		want := m.SessionID == "b"
		if m.Transmitting != want {
			t.Fatalf("member %s transmitting = %v, want %v", m.SessionID, m.Transmitting, want)
		}
	}
}

func TestBackpressureKicksPersistentlySlowMember(t *testing.T) {
	ch := newTestChannel(t, time.Hour, kickAfter{n: 3})
	join(t, ch, "a")
	connB := join(t, ch, "b")
	connB.mu.Lock()
	connB.fail = true
	connB.mu.Unlock()
	ch.Acquire("a")

	for seq := uint64(1); seq <= 3; seq++ {
		ch.SubmitFrame("a", seq, []byte("x"))
	}
	ch.Snapshot()

	if got := ch.MemberCount(); got != 1 {
		t.Fatalf("member count = %d after kick, want 1", got)
	}
	if !connB.isClosed() {
		t.Fatalf("kicked member's connection should be closed")
	}
}
