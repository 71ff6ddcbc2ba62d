// Package docs normalizes code-hosting URLs and deduplicates crawled
// documents by filename before extraction.
package docs

import (
	"path"
	"strings"

	"coderag/internal/domain"
)

const (
	blobSegment = "/blob/"
	rawSegment  = "/raw/"
)

// ToRaw converts a viewable blob URL into its fetchable raw form.
// Only the first occurrence is replaced; other URLs pass through.
func ToRaw(url string) string {
	return strings.Replace(url, blobSegment, rawSegment, 1)
}

// ToBlob converts a raw URL into its viewable blob form.
func ToBlob(url string) string {
	return strings.Replace(url, rawSegment, blobSegment, 1)
}

// IsRaw reports whether url is a raw file URL.
func IsRaw(url string) bool { return strings.Contains(url, rawSegment) }

// IsBlob reports whether url is a blob file URL.
func IsBlob(url string) bool { return strings.Contains(url, blobSegment) }

// Filename returns the final path segment of url when it looks like a file,
// i.e. it contains a dot.
func Filename(url string) (string, bool) {
	trimmed := strings.TrimRight(url, "/")
	if trimmed == "" {
		return "", false
	}
	name := path.Base(trimmed)
	if !strings.Contains(name, ".") {
		return "", false
	}
	return name, true
}

// Partition is the result of deduplicating crawled documents.
type Partition struct {
	// Ready holds documents whose content is already the raw file,
	// with URLs in viewable form.
	Ready []domain.RawDoc
	// Queue holds fetchable raw URLs that still need extraction.
	Queue []string
}

// Dedup walks docs in arrival order and keeps the first document per
// filename. Two files with the same name under different paths collapse
// into one; that approximation is accepted. A filename is claimed even
// when its URL is neither raw nor blob.
func Dedup(docs []domain.CrawlDoc) Partition {
	var p Partition
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		name, ok := Filename(d.URL)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		switch {
		case IsRaw(d.URL):
			p.Ready = append(p.Ready, domain.RawDoc{URL: ToBlob(d.URL), Content: d.Content})
		case IsBlob(d.URL):
			p.Queue = append(p.Queue, ToRaw(d.URL))
		}
	}
	return p
}
