package checksum

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/conorfennell/ankipack/internal/domain"
)

var (
	htmlComment = regexp.MustCompile(`(?s)<!--.*?-->`)
	htmlTag     = regexp.MustCompile(`(?s)<.*?>`)
	imgTag      = regexp.MustCompile(`(?i)<img[^>]*src=["']?([^"'>]+)["']?[^>]*>`)
	soundTag    = regexp.MustCompile(`\[sound:[^\]]+\]`)
)

// StripHTML removes comments and tags from s, keeping image file names so
// fields that only hold an image still differ, and unescapes entities.
func StripHTML(s string) string {
	s = htmlComment.ReplaceAllString(s, "")
	s = imgTag.ReplaceAllString(s, " $1 ")
	s = soundTag.ReplaceAllString(s, "")
	s = htmlTag.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

// SortField returns the value stored in the notes.csum column for a sort
// field: the first 32 bits of the SHA-1 of the stripped text.
func SortField(value string) int64 {
	sum := sha1.Sum([]byte(StripHTML(value)))
	return int64(binary.BigEndian.Uint32(sum[:4]))
}

// Normalize concatenates the card's content after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each field
// before joining them.
func Normalize(card domain.SourceCard) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	// Joined with a newline so "question" and "answer" never run together.
	return strings.Join([]string{
		normalizePart(card.Question),
		normalizePart(card.Answer),
		normalizePart(card.Context),
	}, "\n")
}

// Hash returns the hex SHA-256 of the normalized card.
func Hash(card domain.SourceCard) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(Normalize(card))))
}

// GUID derives a stable note guid from a card's content so importing the same
// card twice maps to the same note.
func GUID(card domain.SourceCard) string {
	return Hash(card)[:10]
}
