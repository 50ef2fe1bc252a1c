// Package identity derives stable user identifiers from display names.
//
// The same rules run on the client before a token request and on the token
// endpoint itself; if the two ever disagree the token is signed for a user
// the client does not think it is.
package identity

import (
	"net/url"
	"strings"
)

const avatarBaseURL = "https://api.dicebear.com/6.x/thumbs/svg"

// Canonicalize lowercases name and replaces every rune outside
// [a-z0-9@_-] with '-'. Surrounding whitespace is ignored.
func Canonicalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '@', r == '_', r == '-':
			return r
		}
		return '-'
	}, name)
}

// IsCanonical reports whether id is already in canonical form.
func IsCanonical(id string) bool {
	return id != "" && Canonicalize(id) == id
}

// AvatarURL returns the deterministic default avatar for id.
func AvatarURL(id string) string {
	return avatarBaseURL + "?seed=" + url.QueryEscape(id)
}
