// Package emoji converts between workspace shortcodes, unicode emoji and plain emoticons.
package emoji

import (
	"strings"

	kemoji "github.com/kenshaw/emoji"
)

// Converter is a pure text transform.
type Converter func(string) string

// simpleSmile is a workspace-only shortcode with no unicode equivalent.
const simpleSmile = ":simple_smile:"

// ToUnicode rewrites :shortcode: aliases as unicode emoji for the remote platform.
func ToUnicode(text string) string {
	text = strings.ReplaceAll(text, simpleSmile, ":)")
	return kemoji.ReplaceAliases(text)
}

// EmoticonsToShortcodes rewrites plain emoticons such as :) as :shortcode: aliases
// so the workspace renders them.
func EmoticonsToShortcodes(text string) string {
	return kemoji.ReplaceEmoticonsWithAliases(text)
}
