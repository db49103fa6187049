// Package validation checks identifiers and user input accepted by the read API.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/db/models"
)

// maxKeyLength bounds composite keys accepted from clients.
const maxKeyLength = 512

var keyRegex = regexp.MustCompile(`^[-0-9A-Za-z_]+$`)

type Validator struct {
	maxTitleLength int
}

func New() *Validator {
	return &Validator{maxTitleLength: models.MaxBucketTitleLength}
}

// BucketTitle trims title and rejects empty or overlong titles.
func (v *Validator) BucketTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("title is required")
	}
	if utf8.RuneCountInString(title) > v.maxTitleLength {
		return "", fmt.Errorf("title exceeds %d characters", v.maxTitleLength)
	}
	return title, nil
}

// IsValidKey reports whether key could have been produced by the composite key codec.
func (v *Validator) IsValidKey(key string) bool {
	return len(key) <= maxKeyLength && keyRegex.MatchString(key)
}
