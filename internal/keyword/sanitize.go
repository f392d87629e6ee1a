package keyword

import (
	"regexp"
	"time"

	"github.com/dlclark/regexp2"
)

// matchTimeout bounds every backtracking match. A timed-out match is
// treated as no match.
const matchTimeout = 250 * time.Millisecond

var (
	fencedCodeRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe  = regexp.MustCompile("`[^`\n]+`")
	selfClosingRe = regexp.MustCompile(`<[A-Za-z][\w:-]*(?:\s[^<>]*)?/>`)
	urlRe         = regexp.MustCompile(`\b(?:https?|ftp|file)://\S+`)
	absPathRe     = regexp.MustCompile(`(?:^|\s)(?:~|\.{1,2})?(?:/[\w.@~-]+)+/?`)
	relPathRe     = regexp.MustCompile(`[\w.@~-]+(?:/[\w.@~-]+)+/?`)

	// tagBlockRe needs a backreference so that only well-formed blocks,
	// whose closing tag names the opening tag, are stripped.
	tagBlockRe = mustCompile(`<([A-Za-z][\w:-]*)(?:\s[^<>]*)?>[\s\S]*?</\1\s*>`, regexp2.None)
)

func mustCompile(pattern string, opts regexp2.RegexOptions) *regexp2.Regexp {
	re := regexp2.MustCompile(pattern, opts)
	re.MatchTimeout = matchTimeout
	return re
}

// Sanitize removes the parts of text that routinely contain
// false-positive keywords: fenced and inline code, well-formed tag
// blocks, self-closing tags, URLs and path-like tokens. Removed spans are
// replaced by a single space so that surrounding words stay separate.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	s := fencedCodeRe.ReplaceAllString(text, " ")
	s = inlineCodeRe.ReplaceAllString(s, " ")
	if out, err := tagBlockRe.Replace(s, " ", -1, -1); err == nil {
		s = out
	}
	s = selfClosingRe.ReplaceAllString(s, " ")
	s = urlRe.ReplaceAllString(s, " ")
	s = absPathRe.ReplaceAllString(s, " ")
	s = relPathRe.ReplaceAllString(s, " ")
	return s
}
