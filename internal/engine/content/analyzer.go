// Package content extracts semantic features from message bodies and
// composes the quality multiplier used by the message reward pipeline.
package content

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Features describes a message body after markup-aware analysis.
type Features struct {
	WordCount     int
	LinkCount     int
	EmojiCount    int
	TextLength    int
	HasAttachment bool
}

var (
	urlRE = regexp.MustCompile(`https?://[^\s]+`)

	// Custom emoji tokens, :shortcodes:, and the Unicode emoji blocks
	// (symbols, emoticons, transport, dingbats).
	emojiRE = regexp.MustCompile(`<a?:\w+:\d+>` +
		`|:[a-zA-Z0-9_~\-]+:` +
		`|[\x{1F300}-\x{1F9FF}\x{1F680}-\x{1F6FF}\x{2600}-\x{27BF}]`)

	// Variation selectors and zero-width joiners ride along with emoji
	// sequences and must not survive into word tokens.
	joinerRE = regexp.MustCompile(`[\x{FE0E}\x{FE0F}\x{200D}]`)
)

// Analyze extracts features from a message body. URLs, custom emoji tokens,
// shortcodes, and Unicode emoji are excluded from the word count, so a
// message consisting solely of those reports zero words. Pure function of
// its inputs.
func Analyze(text string, attachmentCount int) Features {
	f := Features{
		TextLength:    utf8.RuneCountInString(text),
		HasAttachment: attachmentCount > 0,
	}

	f.LinkCount = len(urlRE.FindAllString(text, -1))

	// Strip URLs before emoji matching so URL punctuation can't be
	// mistaken for a shortcode.
	stripped := urlRE.ReplaceAllString(text, " ")

	f.EmojiCount = len(emojiRE.FindAllString(stripped, -1))

	stripped = emojiRE.ReplaceAllString(stripped, " ")
	stripped = joinerRE.ReplaceAllString(stripped, "")

	f.WordCount = len(strings.Fields(stripped))

	return f
}
