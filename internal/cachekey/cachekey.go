// Package cachekey maps link references to stable, filesystem-safe cache keys.
package cachekey

import (
	"fmt"
	"regexp"

	"github.com/starford/linkshot/internal/checksum"
	"github.com/starford/linkshot/internal/models"
)

// Key policies.
const (
	PolicyIdentity = "identity"
	PolicyContent  = "content"
)

// MaxKeyLength is the longest key any Deriver returns.
const MaxKeyLength = 128

var safeKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Deriver computes the cache key for a link reference.
//
// Implementations must be pure: identical input yields the identical key.
type Deriver interface {
	Key(ref models.LinkRef) string
	Policy() string
}

// New returns the Deriver for the named policy.
func New(policy string) (Deriver, error) {
	switch policy {
	case PolicyIdentity, "":
		return Identity{}, nil
	case PolicyContent:
		return Content{}, nil
	default:
		return nil, fmt.Errorf("cachekey: unknown policy %q", policy)
	}
}

// IsSafe reports whether key can be used verbatim as a file name stem.
func IsSafe(key string) bool {
	return len(key) <= MaxKeyLength && safeKeyRe.MatchString(key)
}

// Identity keys each node by its node ID. Two nodes pointing at the same
// address get independent entries.
type Identity struct{}

// Key returns the node ID, or "id-" plus a short digest of it when the ID is
// empty or not file-name safe.
func (Identity) Key(ref models.LinkRef) string {
	if IsSafe(ref.NodeID) {
		return ref.NodeID
	}
	return "id-" + checksum.Short(ref.NodeID)
}

func (Identity) Policy() string { return PolicyIdentity }

// Content keys each node by a truncated SHA-256 of its address, so identical
// addresses share one entry.
type Content struct{}

func (Content) Key(ref models.LinkRef) string {
	return checksum.Short(ref.Address)
}

func (Content) Policy() string { return PolicyContent }

var (
	_ Deriver = Identity{}
	_ Deriver = Content{}
)
