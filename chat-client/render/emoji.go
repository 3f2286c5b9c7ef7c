package render

import (
	"fmt"
	"html"
	"html/template"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kyokomi/emoji/v2"
)

// DefaultEmojiCDN serves EmojiOne PNGs named by lowercase codepoints.
const DefaultEmojiCDN = "https://cdn.jsdelivr.net/emojione/assets/3.1/png/64/"

var (
	shortcodes = emoji.CodeMap()
	aliases    = emoji.RevCodeMap()
)

// emoticon maps an ASCII smiley to the emoji it stands for.
type emoticon struct {
	text      string
	unicode   string
	shortcode string
}

// emoticons lists the smileys converted when Emojifier.ASCII is set.
// Longer forms come first so ":-)" wins over ":-".
var emoticons = []emoticon{
	{":'(", "\U0001f622", ":cry:"},
	{":-)", "\U0001f642", ":slight_smile:"},
	{":-(", "\U0001f641", ":slightly_frowning_face:"},
	{":-D", "\U0001f603", ":smiley:"},
	{":-P", "\U0001f61b", ":stuck_out_tongue:"},
	{":-O", "\U0001f62e", ":open_mouth:"},
	{";-)", "\U0001f609", ":wink:"},
	{":)", "\U0001f642", ":slight_smile:"},
	{":(", "\U0001f641", ":slightly_frowning_face:"},
	{":D", "\U0001f603", ":smiley:"},
	{":P", "\U0001f61b", ":stuck_out_tongue:"},
	{":p", "\U0001f61b", ":stuck_out_tongue:"},
	{":O", "\U0001f62e", ":open_mouth:"},
	{":o", "\U0001f62e", ":open_mouth:"},
	{";)", "\U0001f609", ":wink:"},
	{":|", "\U0001f610", ":neutral_face:"},
	{"<3", "\u2764", ":heart:"},
}

// Emojifier turns emoji in plain text into inline <img> markup.
//
// It recognises :shortcode: names, unicode emoji sequences and, when ASCII is
// set, free-standing emoticons such as ":)". Everything else is HTML-escaped.
type Emojifier struct {
	CDN   string
	ASCII bool
}

// ToImage renders text as HTML with every emoji replaced by an image tag.
func (e Emojifier) ToImage(text string) template.HTML {
	var b strings.Builder
	b.Grow(len(text))
	plain := 0
	flush := func(end int) {
		if end > plain {
			b.WriteString(html.EscapeString(text[plain:end]))
		}
	}
	for i := 0; i < len(text); {
		if code, uni, ok := matchShortcode(text[i:]); ok {
			flush(i)
			b.WriteString(e.image(uni, code))
			i += len(code)
			plain = i
			continue
		}
		if e.ASCII && boundaryBefore(text, i) {
			if em, ok := matchASCII(text[i:]); ok && boundaryAfter(text, i+len(em.text)) {
				flush(i)
				b.WriteString(e.image(em.unicode, em.shortcode))
				i += len(em.text)
				plain = i
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if isEmojiBase(r) {
			if seq, title, ok := knownSequence(text[i:], size); ok {
				flush(i)
				b.WriteString(e.image(seq, title))
				i += len(seq)
				plain = i
				continue
			}
		}
		i += size
	}
	flush(len(text))
	return template.HTML(b.String())
}

func (e Emojifier) image(uni, title string) string {
	cdn := e.CDN
	if cdn == "" {
		cdn = DefaultEmojiCDN
	}
	if !strings.HasSuffix(cdn, "/") {
		cdn += "/"
	}
	return fmt.Sprintf(`<img class="emojione" alt="%s" title="%s" src="%s%s.png"/>`,
		html.EscapeString(uni), html.EscapeString(title), html.EscapeString(cdn), codepoints(uni))
}

// codepoints names the image for an emoji sequence: lowercase hex codepoints
// joined by "-", with variation selectors dropped.
func codepoints(seq string) string {
	parts := make([]string, 0, 2)
	for _, r := range seq {
		if r == 0xfe0f {
			continue
		}
		parts = append(parts, fmt.Sprintf("%x", r))
	}
	return strings.Join(parts, "-")
}

func matchShortcode(s string) (code, uni string, ok bool) {
	if len(s) < 3 || s[0] != ':' {
		return "", "", false
	}
	end := 1
	for end < len(s) && isShortcodeByte(s[end]) {
		end++
	}
	if end == 1 || end >= len(s) || s[end] != ':' {
		return "", "", false
	}
	code = s[:end+1]
	uni, ok = shortcodes[code]
	return code, strings.TrimSpace(uni), ok
}

func isShortcodeByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c == '-' || c == '+'
}

func matchASCII(s string) (emoticon, bool) {
	for _, em := range emoticons {
		if strings.HasPrefix(s, em.text) {
			return em, true
		}
	}
	return emoticon{}, false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsSpace(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

// knownSequence returns the longest emoji at the start of s that the
// shortcode table knows, with its first alias. size is the byte length of the
// leading rune.
func knownSequence(s string, size int) (seq, title string, ok bool) {
	seq = emojiSequence(s)
	if title, ok = lookupAlias(seq); ok {
		return seq, title, true
	}
	if len(seq) > size {
		if title, ok = lookupAlias(s[:size]); ok {
			return s[:size], title, true
		}
	}
	return "", "", false
}

func lookupAlias(seq string) (string, bool) {
	for _, key := range []string{seq, seq + "\ufe0f", strings.ReplaceAll(seq, "\ufe0f", "")} {
		if names := aliases[key]; len(names) > 0 {
			return names[0], true
		}
	}
	return "", false
}

// isEmojiBase reports whether r may start an emoji sequence. Candidates are
// confirmed against the shortcode table before they are replaced.
func isEmojiBase(r rune) bool {
	switch {
	case r >= 0x1f000 && r <= 0x1faff:
		return !isSkinTone(r)
	case r >= 0x2600 && r <= 0x27bf:
		return true
	case r >= 0x2300 && r <= 0x23ff:
		return true
	case r == 0x2b50, r == 0x2b55, r == 0x2b1b, r == 0x2b1c, r == 0x3030, r == 0x303d, r == 0x3297, r == 0x3299:
		return true
	}
	return false
}

func isSkinTone(r rune) bool { return r >= 0x1f3fb && r <= 0x1f3ff }

func isRegionalIndicator(r rune) bool { return r >= 0x1f1e6 && r <= 0x1f1ff }

// emojiSequence returns the prefix of s forming one emoji: the base rune plus
// any variation selector, skin tone, keycap, flag pair or ZWJ-joined parts.
func emojiSequence(s string) string {
	first, n := utf8.DecodeRuneInString(s)
	i := n
	if isRegionalIndicator(first) {
		if r, size := utf8.DecodeRuneInString(s[i:]); isRegionalIndicator(r) {
			return s[:i+size]
		}
		return s[:i]
	}
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == 0xfe0f, r == 0x20e3, isSkinTone(r):
			i += size
		case r == 0x200d:
			next, nsize := utf8.DecodeRuneInString(s[i+size:])
			if !isEmojiBase(next) {
				return s[:i]
			}
			i += size + nsize
		default:
			return s[:i]
		}
	}
	return s[:i]
}
