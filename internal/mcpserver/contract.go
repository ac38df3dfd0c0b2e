package mcpserver

// CacheLayoutContract describes how linkshot stores previews on disk so LLM
// consumers can reason about keys and artifacts.
const CacheLayoutContract = `# linkshot Cache Layout

Every web-link node on a canvas is mapped to a cache key. A key owns at most
two files inside the cache directory.

## Files

| File                      | Content                                  |
|---------------------------|------------------------------------------|
| ` + "`" + `<key>.thumbnail.jpg` + "`" + `     | JPEG capture of the rendered page        |
| ` + "`" + `<key>.metadata.json` + "`" + `     | ` + "`" + `{"title", "url", "captured_at"}` + "`" + ` record |

A preview is only served when **both** files exist. A lone file is treated as
a miss and the page is loaded live again.

## Key policies

1. **identity** (default): the node id itself when it consists of letters,
   digits, ` + "`" + `_` + "`" + ` or ` + "`" + `-` + "`" + ` and is at most 128 characters; otherwise
   ` + "`" + `id-` + "`" + ` followed by 16 hex characters of its SHA-256.
2. **content**: 16 hex characters of the SHA-256 of the link address. Nodes
   that share an address share one preview.

## Cleanup

A key is unused when no node in any ` + "`" + `.canvas` + "`" + ` document derives it, whatever
the node type. Cleanup removes both files of every unused key and reports
"N unused thumbnails cleaned up". Documents that cannot be parsed are skipped
and contribute no keys.

## Thumbnail URLs

The HTTP API serves thumbnails at ` + "`" + `/api/previews/<key>/thumbnail` + "`" + `.
`
