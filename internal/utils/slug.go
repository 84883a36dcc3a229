package utils

import (
	"strconv"

	"github.com/gosimple/slug"
)

// maxSlugLen matches the width of the slug columns.
const maxSlugLen = 60

func init() {
	slug.MaxLength = maxSlugLen
}

// Slugify turns a title into a lowercase, dash separated ASCII slug.
// Accents are transliterated ("Café Théâtre" -> "cafe-theatre").
func Slugify(s string) string {
	out := slug.Make(s)
	if out == "" {
		return "show"
	}
	return out
}

// UniqueSlug returns base, or base suffixed with -2, -3... until taken
// reports false. The suffix never pushes the slug past the column width.
func UniqueSlug(base string, taken func(string) (bool, error)) (string, error) {
	candidate := base
	for n := 2; ; n++ {
		used, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
		suffix := "-" + strconv.Itoa(n)
		head := base
		if len(head)+len(suffix) > maxSlugLen {
			head = head[:maxSlugLen-len(suffix)]
		}
		candidate = head + suffix
	}
}
