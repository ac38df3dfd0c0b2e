// Package capture writes artifact pairs once a live frame has settled.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/linkshot/internal/cachekey"
	"github.com/starford/linkshot/internal/metrics"
	"github.com/starford/linkshot/internal/models"
)

// Defaults for Trigger timing.
const (
	DefaultSettleDelay    = time.Second
	DefaultResizeDebounce = 500 * time.Millisecond
)

// JPEGQuality is the encoder quality of stored thumbnails.
const JPEGQuality = 100

// Frame is a live embedded frame.
type Frame interface {
	// OnFinishLoad registers fn for the frame's finish-load signal and
	// returns a function that unregisters it.
	OnFinishLoad(fn func()) (detach func())
	// Done is closed once the frame's load has ended, successful or not.
	Done() <-chan struct{}
	Title(ctx context.Context) (string, error)
	Capture(ctx context.Context) (image.Image, error)
}

// Target is a link node that may own a frame.
type Target interface {
	Ref() models.LinkRef
	// Frame returns the node's frame; false when the platform has none.
	Frame() (Frame, bool)
	// Alive reports whether the node is still attached to its canvas.
	Alive() bool
}

// Store is the write side of the artifact store.
type Store interface {
	WriteMetadata(ctx context.Context, key string, meta models.Metadata) error
	WriteImage(ctx context.Context, key string, jpeg []byte) error
}

// Trigger arms frames for capture.
type Trigger struct {
	store      Store
	keys       cachekey.Deriver
	settle     time.Duration
	debounce   time.Duration
	metrics    *metrics.Recorder
	logger     *slog.Logger
	onCaptured func(key, title string)

	wg      sync.WaitGroup
	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithSettleDelay sets the wait between finish-load and capture.
func WithSettleDelay(d time.Duration) Option {
	return func(t *Trigger) {
		if d >= 0 {
			t.settle = d
		}
	}
}

// WithResizeDebounce sets the quiet period before a resize recapture.
func WithResizeDebounce(d time.Duration) Option {
	return func(t *Trigger) {
		if d >= 0 {
			t.debounce = d
		}
	}
}

func WithLogger(l *slog.Logger) Option { return func(t *Trigger) { t.logger = l } }

func WithMetrics(r *metrics.Recorder) Option { return func(t *Trigger) { t.metrics = r } }

// WithOnCaptured registers a hook run after each complete capture.
func WithOnCaptured(fn func(key, title string)) Option {
	return func(t *Trigger) { t.onCaptured = fn }
}

// New creates a Trigger writing to store.
func New(store Store, keys cachekey.Deriver, opts ...Option) *Trigger {
	t := &Trigger{
		store:    store,
		keys:     keys,
		settle:   DefaultSettleDelay,
		debounce: DefaultResizeDebounce,
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.metrics == nil {
		t.metrics = metrics.Noop()
	}
	return t
}

// Arm listens for the target frame's next finish-load. The listener fires at
// most once and is detached on first fire, when ctx ends or when the load
// ends without firing; onLoaded, if set, runs before the capture starts. An
// armed listener counts toward Wait until it is detached or its capture has
// finished. Arm reports false when the target has no frame, in which case
// nothing is registered.
func (t *Trigger) Arm(ctx context.Context, target Target, onLoaded func()) bool {
	frame, ok := target.Frame()
	if !ok {
		t.logger.Debug("capture: no frame", slog.String("url", target.Ref().Address))
		return false
	}
	key := t.keys.Key(target.Ref())

	var (
		once   sync.Once
		detach func()
		stop   func() bool
		ready  = make(chan struct{})
	)
	t.wg.Add(1)
	release := func() {
		detach()
		t.wg.Done()
	}
	detach = frame.OnFinishLoad(func() {
		once.Do(func() {
			go func() {
				defer t.wg.Done()
				<-ready
				stop()
				detach()
				if onLoaded != nil {
					onLoaded()
				}
				t.capture(ctx, target, frame, key)
			}()
		})
	})
	stop = context.AfterFunc(ctx, func() { once.Do(release) })
	go func() {
		select {
		case <-frame.Done():
			once.Do(release)
		case <-ctx.Done():
		}
	}()
	close(ready)
	return true
}

// Recapture schedules an image-only capture of target after the resize
// debounce. Calls for the same key inside the window collapse into one.
func (t *Trigger) Recapture(ctx context.Context, target Target) {
	frame, ok := target.Frame()
	if !ok {
		return
	}
	key := t.keys.Key(target.Ref())

	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.pending[key]; ok && prev.Stop() {
		t.wg.Done()
	}
	t.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(t.debounce, func() {
		defer t.wg.Done()
		t.mu.Lock()
		if t.pending[key] == timer {
			delete(t.pending, key)
		}
		t.mu.Unlock()

		if ctx.Err() != nil || !target.Alive() {
			return
		}
		if err := t.writeImage(ctx, frame, key); err != nil {
			t.fail(ctx, key, target.Ref().Address, "recapture", err)
			return
		}
		t.logger.Debug("capture: recaptured", slog.String("key", key))
	})
	t.pending[key] = timer
}

// Wait blocks until every armed listener has been released and every started
// capture has finished.
func (t *Trigger) Wait() {
	t.wg.Wait()
}

func (t *Trigger) capture(ctx context.Context, target Target, frame Frame, key string) {
	ref := target.Ref()
	if t.settle > 0 {
		timer := time.NewTimer(t.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	if !target.Alive() {
		t.logger.Debug("capture: node gone", slog.String("key", key))
		return
	}

	title, err := frame.Title(ctx)
	if err != nil {
		t.fail(ctx, key, ref.Address, "title", err)
		return
	}
	meta := models.Metadata{Title: title, URL: ref.Address, CapturedAt: time.Now().UTC()}
	if err := t.store.WriteMetadata(ctx, key, meta); err != nil {
		t.fail(ctx, key, ref.Address, "metadata", err)
		return
	}
	if err := t.writeImage(ctx, frame, key); err != nil {
		t.fail(ctx, key, ref.Address, "image", err)
		return
	}

	t.metrics.Captured(ctx)
	t.logger.Info("cached link", slog.String("key", key), slog.String("url", ref.Address), slog.String("title", title))
	if t.onCaptured != nil {
		t.onCaptured(key, title)
	}
}

func (t *Trigger) writeImage(ctx context.Context, frame Frame, key string) error {
	img, err := frame.Capture(ctx)
	if err != nil {
		return err
	}
	data, err := Encode(img)
	if err != nil {
		return err
	}
	return t.store.WriteImage(ctx, key, data)
}

func (t *Trigger) fail(ctx context.Context, key, url, stage string, err error) {
	t.metrics.CaptureFailed(ctx)
	t.logger.Warn("capture: failed",
		slog.String("key", key),
		slog.String("url", url),
		slog.String("stage", stage),
		slog.String("error", err.Error()))
}

// Encode returns img as JPEG at JPEGQuality.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("capture: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
