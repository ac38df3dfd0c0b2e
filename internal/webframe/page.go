package webframe

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Page is what a headless load learns about a web page.
type Page struct {
	URL      string
	Title    string
	ImageURL string
}

// ParsePage extracts the title and preview image of an HTML document.
// Relative image references resolve against base.
func ParsePage(r io.Reader, base *url.URL) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("webframe: parse html: %w", err)
	}
	p := &Page{URL: base.String()}
	var ogTitle, ogImage, twImage string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if p.Title == "" {
					p.Title = strings.TrimSpace(textContent(n))
				}
				return
			case "meta":
				key := attr(n, "property")
				if key == "" {
					key = attr(n, "name")
				}
				content := strings.TrimSpace(attr(n, "content"))
				switch strings.ToLower(key) {
				case "og:title":
					ogTitle = content
				case "og:image", "og:image:url":
					if ogImage == "" {
						ogImage = content
					}
				case "twitter:image", "twitter:image:src":
					if twImage == "" {
						twImage = content
					}
				}
				return
			case "body":
				// Metadata lives in <head>.
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if p.Title == "" {
		p.Title = ogTitle
	}
	img := ogImage
	if img == "" {
		img = twImage
	}
	if img != "" {
		if ref, err := url.Parse(img); err == nil {
			p.ImageURL = base.ResolveReference(ref).String()
		}
	}
	return p, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
