// Package lifecycle connects host node events to the preview resolver and
// the capture trigger.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/linkshot/internal/capture"
	"github.com/starford/linkshot/internal/models"
	"github.com/starford/linkshot/internal/preview"
)

// Node is a host link node: displayable and capturable.
type Node interface {
	preview.Node
	capture.Target
}

// Controller handles the lifecycle of link nodes. Hosts call OnInitialize when
// a node is created, OnFrameReady after constructing a frame and before it
// starts loading, OnResize on size changes and OnDestroy on teardown.
type Controller struct {
	resolver *preview.Resolver
	trigger  *capture.Trigger
	logger   *slog.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	sessions map[Node]*preview.Session
}

// NewController creates a Controller.
func NewController(resolver *preview.Resolver, trigger *capture.Trigger, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		resolver: resolver,
		trigger:  trigger,
		logger:   logger,
		sessions: make(map[Node]*preview.Session),
	}
}

// OnInitialize starts resolving node in its own goroutine and returns the
// node's session right away.
func (c *Controller) OnInitialize(ctx context.Context, node Node) *preview.Session {
	sess := c.resolver.Begin(node)
	c.mu.Lock()
	c.sessions[node] = sess
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.resolver.Run(ctx, sess, node)
	}()
	return sess
}

// OnFrameReady arms capture for node's new frame. The node's session moves to
// LiveLoaded when the frame finishes loading.
func (c *Controller) OnFrameReady(ctx context.Context, node Node) bool {
	return c.trigger.Arm(ctx, node, func() {
		sess := c.Session(node)
		if sess == nil {
			return
		}
		if err := sess.MarkLoaded(); err != nil {
			c.logger.Debug("lifecycle: load ignored", slog.String("session", sess.ID), slog.String("error", err.Error()))
		}
	})
}

// OnResize schedules a recapture when a loaded node changes size.
func (c *Controller) OnResize(ctx context.Context, node Node, from, to models.Size) {
	if to.IsZero() || from == to {
		return
	}
	if sess := c.Session(node); sess != nil && sess.State() != models.StateLiveLoaded {
		return
	}
	c.trigger.Recapture(ctx, node)
}

// OnDestroy forgets node. In-flight captures check node liveness themselves.
func (c *Controller) OnDestroy(node Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, node)
}

// Session returns node's current session, or nil.
func (c *Controller) Session(node Node) *preview.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[node]
}

// Wait blocks until resolver tasks and captures have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
	c.trigger.Wait()
}
