package webframe

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/starford/linkshot/internal/capture"
	"github.com/starford/linkshot/internal/models"
	"github.com/starford/linkshot/internal/preview"
)

// Node is a headless link node.
type Node struct {
	ref     models.LinkRef
	loader  *Loader
	ctx     context.Context
	onFrame func(*Node)
	logger  *slog.Logger

	mu      sync.Mutex
	frame   *Frame
	label   string
	keep    bool
	preview *preview.Preview
	alive   atomic.Bool
	loads   sync.WaitGroup
}

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithFrameReady registers the hook run after each frame is constructed and
// before it starts loading.
func WithFrameReady(fn func(*Node)) NodeOption {
	return func(n *Node) { n.onFrame = fn }
}

func WithNodeLogger(l *slog.Logger) NodeOption { return func(n *Node) { n.logger = l } }

// NewNode creates a live node for ref. Loads run under ctx.
func NewNode(ctx context.Context, ref models.LinkRef, loader *Loader, opts ...NodeOption) *Node {
	n := &Node{ref: ref, loader: loader, ctx: ctx, keep: true, logger: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	n.alive.Store(true)
	return n
}

func (n *Node) Ref() models.LinkRef { return n.ref }

func (n *Node) SetLabel(title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.label = title
}

// Label returns the last label set.
func (n *Node) Label() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.label
}

func (n *Node) SetKeepLoaded(keep bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keep = keep
}

// KeepLoaded reports whether the live frame must stay resident.
func (n *Node) KeepLoaded() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.keep
}

// RecreateFrame replaces the frame and loads it in the background.
func (n *Node) RecreateFrame() {
	f := NewFrame(n.loader, n.ref.Address)
	n.mu.Lock()
	n.frame = f
	n.mu.Unlock()

	if n.onFrame != nil {
		n.onFrame(n)
	}

	n.loads.Add(1)
	go func() {
		defer n.loads.Done()
		if err := f.Load(n.ctx); err != nil {
			n.logger.Debug("webframe: load failed", slog.String("url", n.ref.Address), slog.String("error", err.Error()))
		}
	}()
}

func (n *Node) ShowPreview(p *preview.Preview) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.preview = p
}

func (n *Node) RemovePreview(p *preview.Preview) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.preview == p {
		n.preview = nil
	}
}

// Preview returns the preview on display, or nil.
func (n *Node) Preview() *preview.Preview {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.preview
}

// Frame returns the current frame; false before the first RecreateFrame.
func (n *Node) Frame() (capture.Frame, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.frame == nil {
		return nil, false
	}
	return n.frame, true
}

func (n *Node) Alive() bool { return n.alive.Load() }

// Destroy detaches the node from its canvas.
func (n *Node) Destroy() { n.alive.Store(false) }

// WaitLoaded blocks until every started load has returned.
func (n *Node) WaitLoaded() { n.loads.Wait() }
