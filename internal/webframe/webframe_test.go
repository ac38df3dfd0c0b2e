package webframe

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/linkshot/internal/models"
	"github.com/starford/linkshot/internal/testutil"
)

const pageHTML = `<!doctype html>
<html><head>
<title> Example Domain </title>
<meta property="og:title" content="OG Example">
<meta property="og:image" content="/static/preview.png">
</head><body><h1>Example</h1></body></html>`

func noWait(int) time.Duration { return 0 }

func site(t *testing.T) *httptest.Server {
	t.Helper()
	var img bytes.Buffer
	if err := png.Encode(&img, testutil.Image(40, 30)); err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(pageHTML))
	})
	mux.HandleFunc("/bare", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head></head><body>nothing</body></html>`))
	})
	mux.HandleFunc("/static/huge.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader(100_000, 100_000))
	})
	mux.HandleFunc("/static/preview.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img.Bytes())
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestParsePage(t *testing.T) {
	base, _ := url.Parse("https://example.com/a/b")
	p, err := ParsePage(strings.NewReader(pageHTML), base)
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != "Example Domain" {
		t.Errorf("title = %q", p.Title)
	}
	if p.ImageURL != "https://example.com/static/preview.png" {
		t.Errorf("image = %q", p.ImageURL)
	}
}

func TestParsePage_Fallbacks(t *testing.T) {
	base, _ := url.Parse("https://example.com/")
	doc := `<html><head>
<meta property="og:title" content="Only OG">
<meta name="twitter:image" content="https://cdn.example.com/t.jpg">
</head></html>`
	p, err := ParsePage(strings.NewReader(doc), base)
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != "Only OG" {
		t.Errorf("title = %q", p.Title)
	}
	if p.ImageURL != "https://cdn.example.com/t.jpg" {
		t.Errorf("image = %q", p.ImageURL)
	}
}

func TestLoader_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("user agent = %q", ua)
		}
		_, _ = w.Write([]byte(pageHTML))
	}))
	defer srv.Close()

	l := NewLoader(WithBackoff(noWait), WithUserAgent("test-agent"), WithLoaderLogger(testutil.Logger()))
	p, err := l.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p.Title != "Example Domain" || calls.Load() != 3 {
		t.Errorf("title=%q calls=%d", p.Title, calls.Load())
	}
}

func TestLoader_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := NewLoader(WithBackoff(noWait), WithLoaderLogger(testutil.Logger()))
	if _, err := l.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected an error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestLoader_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 2048))
	}))
	defer srv.Close()

	l := NewLoader(WithMaxBodyBytes(1024), WithBackoff(noWait))
	if _, err := l.Fetch(context.Background(), srv.URL); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestLoader_RejectsNonHTTP(t *testing.T) {
	l := NewLoader()
	if _, err := l.Fetch(context.Background(), "file:///etc/passwd"); err == nil {
		t.Fatal("expected an error for a file address")
	}
}

func TestFrame_LoadAndCapture(t *testing.T) {
	srv := site(t)
	f := NewFrame(NewLoader(WithBackoff(noWait)), srv.URL+"/page")

	var fired atomic.Int32
	detach := f.OnFinishLoad(func() { fired.Add(1) })
	defer detach()

	if _, err := f.Title(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("title before load err = %v", err)
	}
	if err := f.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fired.Load() != 1 {
		t.Errorf("finish-load fired %d times", fired.Load())
	}
	title, _ := f.Title(context.Background())
	if title != "Example Domain" {
		t.Errorf("title = %q", title)
	}
	img, err := f.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Errorf("bounds = %v", b)
	}
}

func TestFrame_NoImage(t *testing.T) {
	srv := site(t)
	f := NewFrame(NewLoader(), srv.URL+"/bare")
	if err := f.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if title, _ := f.Title(context.Background()); title != srv.URL+"/bare" {
		t.Errorf("untitled page title = %q", title)
	}
	if _, err := f.Capture(context.Background()); !errors.Is(err, ErrNoImage) {
		t.Errorf("err = %v, want ErrNoImage", err)
	}
}

func TestFrame_FailedLoadNotifiesNobody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	f := NewFrame(NewLoader(WithBackoff(noWait)), srv.URL)
	var fired atomic.Bool
	f.OnFinishLoad(func() { fired.Store(true) })
	if err := f.Load(context.Background()); err == nil {
		t.Fatal("expected a load error")
	}
	if fired.Load() {
		t.Error("listener ran for a failed load")
	}
	select {
	case <-f.Done():
	default:
		t.Error("Done should be closed after Load")
	}
}

func TestNode_FrameReadyBeforeLoad(t *testing.T) {
	srv := site(t)
	var order []string
	n := NewNode(context.Background(), models.LinkRef{Address: srv.URL + "/page", NodeID: "n1"}, NewLoader(),
		WithFrameReady(func(node *Node) {
			f, ok := node.Frame()
			if !ok {
				t.Error("frame missing in ready hook")
				return
			}
			order = append(order, "ready")
			f.OnFinishLoad(func() { order = append(order, "loaded") })
		}),
		WithNodeLogger(testutil.Logger()))

	if _, ok := n.Frame(); ok {
		t.Fatal("new node should have no frame")
	}
	n.RecreateFrame()
	n.WaitLoaded()

	if len(order) != 2 || order[0] != "ready" || order[1] != "loaded" {
		t.Errorf("order = %v", order)
	}
	if !n.Alive() {
		t.Error("node should be alive")
	}
	n.Destroy()
	if n.Alive() {
		t.Error("destroyed node reports alive")
	}
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h pixels,
// with no image data behind it.
func pngHeader(w, h uint32) []byte {
	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolor

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr[:]...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestLoader_RejectsOversizedImage(t *testing.T) {
	srv := site(t)
	l := NewLoader(WithBackoff(noWait))

	_, err := l.FetchImage(context.Background(), srv.URL+"/static/huge.png")
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("err = %v, want ErrImageTooLarge", err)
	}

	small := NewLoader(WithBackoff(noWait), WithMaxImagePixels(100))
	if _, err := small.FetchImage(context.Background(), srv.URL+"/static/preview.png"); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("40x30 with a 100 pixel cap: err = %v", err)
	}
	if _, err := l.FetchImage(context.Background(), srv.URL+"/static/preview.png"); err != nil {
		t.Errorf("normal image: %v", err)
	}
}
