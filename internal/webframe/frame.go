package webframe

import (
	"context"
	"errors"
	"image"
	"sync"
)

// ErrNotLoaded is returned by Frame accessors before a successful load.
var ErrNotLoaded = errors.New("webframe: frame not loaded")

// Frame is a headless frame for one address.
type Frame struct {
	loader *Loader
	url    string

	mu        sync.Mutex
	listeners map[int]func()
	nextID    int
	page      *Page
	err       error
	done      chan struct{}
}

// NewFrame creates an unloaded frame for url.
func NewFrame(loader *Loader, url string) *Frame {
	return &Frame{loader: loader, url: url, listeners: map[int]func(){}, done: make(chan struct{})}
}

// OnFinishLoad registers fn to run when a load succeeds.
func (f *Frame) OnFinishLoad(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

// Load fetches the page. On success every registered finish-load listener
// runs before Load returns; a failed load notifies nobody.
func (f *Frame) Load(ctx context.Context) error {
	page, err := f.loader.Fetch(ctx, f.url)

	f.mu.Lock()
	f.page, f.err = page, err
	var fns []func()
	if err == nil {
		for _, fn := range f.listeners {
			fns = append(fns, fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	close(f.done)
	return err
}

// Done is closed once Load has returned.
func (f *Frame) Done() <-chan struct{} {
	return f.done
}

// Page returns the loaded page, or the load error.
func (f *Frame) Page() (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.page == nil && f.err == nil {
		return nil, ErrNotLoaded
	}
	return f.page, f.err
}

// Title returns the page title, or the address for untitled pages.
func (f *Frame) Title(_ context.Context) (string, error) {
	p, err := f.Page()
	if err != nil {
		return "", err
	}
	if p.Title == "" {
		return f.url, nil
	}
	return p.Title, nil
}

// Capture returns the page's preview image.
func (f *Frame) Capture(ctx context.Context) (image.Image, error) {
	p, err := f.Page()
	if err != nil {
		return nil, err
	}
	if p.ImageURL == "" {
		return nil, ErrNoImage
	}
	return f.loader.FetchImage(ctx, p.ImageURL)
}
