// Package artifact stores cached link previews under a dedicated cache
// directory.
//
// Each cache key owns two files:
//
//	<key>.thumbnail.jpg   JPEG preview image
//	<key>.metadata.json   {"title": "..."} plus optional url and captured_at
//
// The pair is not written transactionally. Readers must treat a key as cached
// only when both files exist.
//
// Every call goes to the underlying go-billy filesystem; there is no in-memory
// layer. Writes go through a temp file and a rename so a reader never sees a
// half-written artifact.
package artifact
