package preview

import (
	"sync"

	"github.com/starford/linkshot/internal/models"
)

// Node is the host UI node a resolver works against. Host integrations adapt
// their own node objects to it.
type Node interface {
	// Ref returns the node's address and identifier.
	Ref() models.LinkRef
	// SetLabel replaces the node's display label.
	SetLabel(title string)
	// SetKeepLoaded toggles whether the live frame must stay resident.
	SetKeepLoaded(keep bool)
	// RecreateFrame (re)constructs the live view.
	RecreateFrame()
	// ShowPreview inserts the preview image element into the node content.
	ShowPreview(p *Preview)
	// RemovePreview removes a previously shown preview element.
	RemovePreview(p *Preview)
}

// Preview element attributes.
const (
	PreviewClass = "link-thumbnail"
	PreviewAlt   = "Webpage thumbnail"
)

// Reveal reasons.
const (
	RevealClick = "click"
	RevealError = "error"
)

// Preview is a cached thumbnail element shown in place of the live frame.
// Hosts forward user clicks to Click and image load failures to Fail; either
// discards the preview and loads the live frame, once.
type Preview struct {
	Key    string
	Src    string
	Alt    string
	Class  string
	Title  string
	Width  int
	Height int
	Image  []byte

	once   sync.Once
	reveal func(reason string, err error)
}

// Click handles a user click on the preview.
func (p *Preview) Click() {
	p.fire(RevealClick, nil)
}

// Fail handles an image load error.
func (p *Preview) Fail(err error) {
	p.fire(RevealError, err)
}

func (p *Preview) fire(reason string, err error) {
	p.once.Do(func() {
		if p.reveal != nil {
			p.reveal(reason, err)
		}
	})
}
