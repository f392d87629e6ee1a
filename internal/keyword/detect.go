package keyword

import "github.com/dlclark/regexp2"

// patterns holds one case-insensitive expression per kind. Several need
// lookaround (team must not match "my team"; ralph must not match
// "ralph-"), which is why these use regexp2 rather than RE2.
var patterns = map[Kind]*regexp2.Regexp{
	Cancel:     mustCompile(`\b(?:cancelomc|stopomc)\b`, regexp2.IgnoreCase),
	Ralph:      mustCompile(`\bralph\b(?!-)`, regexp2.IgnoreCase),
	Autopilot:  mustCompile(`\b(?:autopilot|auto[\s-]pilot|full\s+auto|fullsend)\b`, regexp2.IgnoreCase),
	Ultrapilot: mustCompile(`\b(?:ultrapilot|ultra-pilot)\b|\bparallel\s+build\b`, regexp2.IgnoreCase),
	Team:       mustCompile(`(?<!\b(?:my|the|our|your|their|his|her|its|a|an)\s+)\bteam\b(?!-)|\bcoordinated\s+team\b`, regexp2.IgnoreCase),
	Ultrawork:  mustCompile(`\b(?:ultrawork|ulw)\b`, regexp2.IgnoreCase),
	Swarm:      mustCompile(`\bswarm\b`, regexp2.IgnoreCase),
	Pipeline:   mustCompile(`\b(?:agent\s+pipeline|chain\s+agents|pipeline\s+mode)\b`, regexp2.IgnoreCase),
	Ralplan:    mustCompile(`\bralplan\b`, regexp2.IgnoreCase),
	Plan:       mustCompile(`\b(?:plan\s+(?:this|that|it\s+out)|make\s+a\s+plan|planning\s+mode)\b`, regexp2.IgnoreCase),
	TDD:        mustCompile(`\btdd\b|\btest[\s-]first\b`, regexp2.IgnoreCase),
	Deepsearch: mustCompile(`\bdeepsearch\b|\bsearch\s+the\s+(?:whole\s+)?codebase\b`, regexp2.IgnoreCase),
	Analyze:    mustCompile(`\bdeep[\s-]?analy[sz]e\b|\binvestigate\s+(?:this|the|why)\b`, regexp2.IgnoreCase),
	Codex:      mustCompile(`\b(?:ask|use|delegate\s+to)\s+(?:codex|gpt)\b`, regexp2.IgnoreCase),
	Gemini:     mustCompile(`\b(?:ask|use|delegate\s+to)\s+gemini\b`, regexp2.IgnoreCase),
}

// Options controls which kinds are considered.
type Options struct {
	// TeamEnabled turns on team, ultrapilot and swarm. When false those
	// kinds are never reported.
	TeamEnabled bool
}

// Detected is a single keyword hit.
type Detected struct {
	Kind Kind
	// Match is the matched text.
	Match string
	// Offset is the rune offset of Match within the sanitized text.
	Offset int
}

// Detect sanitizes text and returns the first hit for each enabled kind,
// in [Priority] order. At most one hit per kind is reported.
func Detect(text string, opts Options) []Detected {
	clean := Sanitize(text)
	if clean == "" {
		return nil
	}
	var out []Detected
	for _, k := range Priority {
		if k.TeamRelated() && !opts.TeamEnabled {
			continue
		}
		m, err := patterns[k].FindStringMatch(clean)
		if err != nil || m == nil {
			continue
		}
		out = append(out, Detected{Kind: k, Match: m.String(), Offset: m.Index})
	}
	return out
}
