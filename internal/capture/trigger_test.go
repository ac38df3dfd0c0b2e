package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/linkshot/internal/cachekey"
	"github.com/starford/linkshot/internal/models"
	"github.com/starford/linkshot/internal/testutil"
)

type fakeFrame struct {
	title      string
	captureErr error

	mu        sync.Mutex
	listeners map[int]func()
	nextID    int
	detached  int
	captures  atomic.Int32
	done      chan struct{}
	doneOnce  sync.Once
}

func newFrame(title string) *fakeFrame {
	return &fakeFrame{title: title, listeners: map[int]func(){}, done: make(chan struct{})}
}

func (f *fakeFrame) OnFinishLoad(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.listeners[id]; ok {
			delete(f.listeners, id)
			f.detached++
		}
	}
}

func (f *fakeFrame) finish() {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	f.end()
}

// fail ends the load without notifying listeners.
func (f *fakeFrame) fail() { f.end() }

func (f *fakeFrame) end() { f.doneOnce.Do(func() { close(f.done) }) }

func (f *fakeFrame) Done() <-chan struct{} { return f.done }

func (f *fakeFrame) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeFrame) Title(context.Context) (string, error) { return f.title, nil }

func (f *fakeFrame) Capture(context.Context) (image.Image, error) {
	f.captures.Add(1)
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	return testutil.Image(32, 24), nil
}

type fakeTarget struct {
	ref   models.LinkRef
	frame *fakeFrame
	alive atomic.Bool
}

func newTarget(id string, frame *fakeFrame) *fakeTarget {
	t := &fakeTarget{ref: models.LinkRef{Address: "https://example.com/" + id, NodeID: id}, frame: frame}
	t.alive.Store(true)
	return t
}

func (t *fakeTarget) Ref() models.LinkRef { return t.ref }

func (t *fakeTarget) Frame() (Frame, bool) {
	if t.frame == nil {
		return nil, false
	}
	return t.frame, true
}

func (t *fakeTarget) Alive() bool { return t.alive.Load() }

// recordingStore keeps writes in memory in call order.
type recordingStore struct {
	mu     sync.Mutex
	order  []string
	meta   map[string]models.Metadata
	images map[string][]byte
}

func newRecordingStore() *recordingStore {
	return &recordingStore{meta: map[string]models.Metadata{}, images: map[string][]byte{}}
}

func (s *recordingStore) WriteMetadata(_ context.Context, key string, meta models.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, "metadata:"+key)
	s.meta[key] = meta
	return nil
}

func (s *recordingStore) WriteImage(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, "image:"+key)
	s.images[key] = data
	return nil
}

func (s *recordingStore) writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func newTrigger(store Store, opts ...Option) *Trigger {
	opts = append([]Option{WithLogger(testutil.Logger()), WithSettleDelay(20 * time.Millisecond)}, opts...)
	return New(store, cachekey.Identity{}, opts...)
}

func TestArm_WritesMetadataThenImage(t *testing.T) {
	store := newRecordingStore()
	var captured []string
	trig := newTrigger(store, WithOnCaptured(func(key, title string) { captured = append(captured, key+"="+title) }))
	frame := newFrame("Example Domain")
	target := newTarget("n1", frame)

	loaded := make(chan struct{})
	if !trig.Arm(context.Background(), target, func() { close(loaded) }) {
		t.Fatal("Arm returned false for a node with a frame")
	}
	frame.finish()
	<-loaded
	trig.Wait()

	got := store.writes()
	if len(got) != 2 || got[0] != "metadata:n1" || got[1] != "image:n1" {
		t.Fatalf("writes = %v", got)
	}
	meta := store.meta["n1"]
	if meta.Title != "Example Domain" || meta.URL != "https://example.com/n1" || meta.CapturedAt.IsZero() {
		t.Errorf("metadata = %+v", meta)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(store.images["n1"]))
	if err != nil || cfg.Width != 32 || cfg.Height != 24 {
		t.Errorf("image decode = %+v, %v", cfg, err)
	}
	if len(captured) != 1 || captured[0] != "n1=Example Domain" {
		t.Errorf("onCaptured = %v", captured)
	}
}

func TestArm_WaitsSettleDelay(t *testing.T) {
	store := newRecordingStore()
	trig := newTrigger(store, WithSettleDelay(200*time.Millisecond))
	frame := newFrame("Slow")
	trig.Arm(context.Background(), newTarget("n1", frame), nil)

	frame.finish()
	time.Sleep(50 * time.Millisecond)
	if w := store.writes(); len(w) != 0 {
		t.Fatalf("wrote before the settle delay: %v", w)
	}
	trig.Wait()
	if w := store.writes(); len(w) != 2 {
		t.Fatalf("writes after settle = %v", w)
	}
}

func TestArm_NoFrame(t *testing.T) {
	store := newRecordingStore()
	trig := newTrigger(store)
	if trig.Arm(context.Background(), newTarget("n1", nil), nil) {
		t.Fatal("Arm should report false without a frame")
	}
	trig.Wait()
	if w := store.writes(); len(w) != 0 {
		t.Errorf("writes = %v", w)
	}
}

func TestArm_DetachesAfterFirstFire(t *testing.T) {
	store := newRecordingStore()
	trig := newTrigger(store, WithSettleDelay(0))
	frame := newFrame("Once")
	trig.Arm(context.Background(), newTarget("n1", frame), nil)

	frame.finish()
	trig.Wait()
	frame.finish()
	frame.finish()
	trig.Wait()

	if n := frame.listenerCount(); n != 0 {
		t.Errorf("listeners left = %d", n)
	}
	if w := store.writes(); len(w) != 2 {
		t.Errorf("writes = %v, want one capture", w)
	}
}

func TestArm_CancelDetaches(t *testing.T) {
	store := newRecordingStore()
	trig := newTrigger(store)
	frame := newFrame("Never")
	ctx, cancel := context.WithCancel(context.Background())
	trig.Arm(ctx, newTarget("n1", frame), nil)
	cancel()

	deadline := time.Now().Add(time.Second)
	for frame.listenerCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := frame.listenerCount(); n != 0 {
		t.Errorf("listener still attached after cancel")
	}
}

func waitReturns(trig *Trigger, within time.Duration) bool {
	done := make(chan struct{})
	go func() {
		trig.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(within):
		return false
	}
}

func TestArm_WaitHoldsArmedListener(t *testing.T) {
	store := newRecordingStore()
	trig := newTrigger(store)
	frame := newFrame("Pending")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trig.Arm(ctx, newTarget("n1", frame), nil)

	if waitReturns(trig, 50*time.Millisecond) {
		t.Fatal("Wait returned while a listener was still armed")
	}
	cancel()
	if !waitReturns(trig, time.Second) {
		t.Fatal("Wait did not return after cancel")
	}
	if w := store.writes(); len(w) != 0 {
		t.Errorf("writes = %v", w)
	}
}

func TestArm_FailedLoadReleases(t *testing.T) {
	store := newRecordingStore()
	trig := newTrigger(store)
	frame := newFrame("Unreachable")
	trig.Arm(context.Background(), newTarget("n1", frame), nil)

	frame.fail()
	if !waitReturns(trig, time.Second) {
		t.Fatal("Wait did not return after a failed load")
	}
	if n := frame.listenerCount(); n != 0 {
		t.Errorf("listeners left = %d", n)
	}
	if w := store.writes(); len(w) != 0 {
		t.Errorf("writes = %v", w)
	}
}

func TestArm_DeadNodeSkipsWrites(t *testing.T) {
	store := newRecordingStore()
	trig := newTrigger(store, WithSettleDelay(50*time.Millisecond))
	frame := newFrame("Gone")
	target := newTarget("n1", frame)
	trig.Arm(context.Background(), target, nil)

	frame.finish()
	target.alive.Store(false)
	trig.Wait()

	if w := store.writes(); len(w) != 0 {
		t.Errorf("writes for a destroyed node: %v", w)
	}
}

func TestArm_CaptureErrorSwallowed(t *testing.T) {
	store := newRecordingStore()
	var hooked atomic.Bool
	trig := newTrigger(store, WithSettleDelay(0), WithOnCaptured(func(string, string) { hooked.Store(true) }))
	frame := newFrame("Broken")
	frame.captureErr = errors.New("capture unavailable")
	trig.Arm(context.Background(), newTarget("n1", frame), nil)

	frame.finish()
	trig.Wait()

	if w := store.writes(); len(w) != 1 || w[0] != "metadata:n1" {
		t.Errorf("writes = %v, want metadata only", w)
	}
	if hooked.Load() {
		t.Error("onCaptured must not run for a failed capture")
	}
}

func TestRecapture_Debounced(t *testing.T) {
	store := newRecordingStore()
	trig := newTrigger(store, WithResizeDebounce(50*time.Millisecond))
	frame := newFrame("Resized")
	target := newTarget("n1", frame)

	for i := 0; i < 5; i++ {
		trig.Recapture(context.Background(), target)
		time.Sleep(5 * time.Millisecond)
	}
	trig.Wait()

	if n := frame.captures.Load(); n != 1 {
		t.Errorf("captures = %d, want 1", n)
	}
	if w := store.writes(); len(w) != 1 || w[0] != "image:n1" {
		t.Errorf("writes = %v, want one image write", w)
	}
}
