package models

import "sort"

// DefaultThumbnailSize is the size served when the requested one is missing.
const DefaultThumbnailSize = "medium"

// Thumbnails maps a size name ("default", "medium", "high", ...) to an image URL.
type Thumbnails map[string]string

// Get returns the URL for size, falling back to the medium thumbnail and then
// to any stored size. It returns "" when there are no thumbnails at all.
func (t Thumbnails) Get(size string) string {
	if url, ok := t[size]; ok && url != "" {
		return url
	}
	if url, ok := t[DefaultThumbnailSize]; ok && url != "" {
		return url
	}

	sizes := make([]string, 0, len(t))
	for s, url := range t {
		if url != "" {
			sizes = append(sizes, s)
		}
	}
	if len(sizes) == 0 {
		return ""
	}
	sort.Strings(sizes)
	return t[sizes[0]]
}
