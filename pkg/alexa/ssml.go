package alexa

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// speakTag matches the <speak> envelope, opening or closing.
	speakTag = regexp.MustCompile(`(?i)</?speak\s*/?>`)

	// ampersand matches every '&' together with a following entity, if any.
	ampersand = regexp.MustCompile(`&(#[0-9]+;|#x[0-9a-fA-F]+;|[a-zA-Z][a-zA-Z0-9]*;)?`)

	// ssmlTag matches an opening, closing or self-closing tag of an SSML
	// element the platform supports.
	ssmlTag = regexp.MustCompile(`</?(?:amazon:[a-z]+|audio|break|emphasis|lang|mark|p|phoneme|prosody|s|say-as|sub|voice|w)(?:\s[^<>]*)?/?>`)

	// angles escapes brackets that do not belong to an SSML tag.
	angles = strings.NewReplacer("<", "&lt;", ">", "&gt;")

	// stripAll removes every tag and keeps text content.
	stripAll = bluemonday.StrictPolicy()
)

// ToSSML wraps text in a single <speak> envelope. Existing <speak> tags are
// removed first, and bare ampersands and angle brackets outside supported
// SSML tags are escaped. Supported SSML tags are kept.
func ToSSML(text string) string {
	text = speakTag.ReplaceAllString(text, "")
	text = ampersand.ReplaceAllStringFunc(text, func(m string) string {
		if m == "&" {
			return "&amp;"
		}
		return m
	})
	text = escapeAngles(text)
	return "<speak>" + strings.TrimSpace(text) + "</speak>"
}

func escapeAngles(text string) string {
	var b strings.Builder
	last := 0
	for _, loc := range ssmlTag.FindAllStringIndex(text, -1) {
		b.WriteString(angles.Replace(text[last:loc[0]]))
		b.WriteString(text[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(angles.Replace(text[last:]))
	return b.String()
}

// Cleanse returns the plain text of an SSML document: every tag is removed
// and entities are decoded.
func Cleanse(ssml string) string {
	return strings.TrimSpace(html.UnescapeString(stripAll.Sanitize(ssml)))
}
