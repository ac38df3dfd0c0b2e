package preview

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/linkshot/internal/models"
)

var transitions = map[models.PreviewState][]models.PreviewState{
	models.StateCold:                 {models.StateLiveLoading, models.StateShowingCachedPreview},
	models.StateShowingCachedPreview: {models.StateLiveLoading},
	models.StateLiveLoading:          {models.StateLiveLoaded},
	models.StateLiveLoaded:           {models.StateLiveLoading},
}

// Session is the preview state of one link node for one initialization.
type Session struct {
	ID  string
	Key string
	Ref models.LinkRef

	mu      sync.Mutex
	state   models.PreviewState
	preview *Preview
}

// NewSession returns a Cold session for ref under key.
func NewSession(ref models.LinkRef, key string) *Session {
	return &Session{ID: uuid.NewString(), Key: key, Ref: ref, state: models.StateCold}
}

// State returns the current state.
func (s *Session) State() models.PreviewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Preview returns the cached preview on display, or nil.
func (s *Session) Preview() *Preview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

// Transition moves the session to state to. Illegal moves leave the state
// unchanged and return an error.
func (s *Session) Transition(to models.PreviewState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			if to != models.StateShowingCachedPreview {
				s.preview = nil
			}
			return nil
		}
	}
	return fmt.Errorf("preview: illegal transition %s -> %s", s.state, to)
}

// MarkLoaded records that the live frame finished loading.
func (s *Session) MarkLoaded() error {
	return s.Transition(models.StateLiveLoaded)
}

func (s *Session) show(p *Preview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.StateCold {
		return fmt.Errorf("preview: illegal transition %s -> %s", s.state, models.StateShowingCachedPreview)
	}
	s.state = models.StateShowingCachedPreview
	s.preview = p
	return nil
}
