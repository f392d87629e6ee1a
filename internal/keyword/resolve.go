package keyword

// Resolve detects keywords in text and applies the conflict rules,
// returning the surviving kinds in [Priority] order. The first element is
// the primary keyword.
func Resolve(text string, opts Options) []Kind {
	return ResolveHits(Detect(text, opts), opts)
}

// ResolveHits applies the conflict rules to hits already produced by
// [Detect]:
//
//  1. cancel is exclusive: the result is exactly [Cancel].
//  2. team suppresses autopilot.
//  3. ultrapilot and swarm also emit team when team is enabled.
func ResolveHits(hits []Detected, opts Options) []Kind {
	if len(hits) == 0 {
		return nil
	}
	present := make(map[Kind]bool, len(hits))
	for _, h := range hits {
		if h.Kind.TeamRelated() && !opts.TeamEnabled {
			continue
		}
		present[h.Kind] = true
	}
	if present[Cancel] {
		return []Kind{Cancel}
	}
	if present[Team] && present[Autopilot] {
		delete(present, Autopilot)
	}
	if opts.TeamEnabled && (present[Ultrapilot] || present[Swarm]) {
		present[Team] = true
	}

	var out []Kind
	for _, k := range Priority {
		if present[k] {
			out = append(out, k)
		}
	}
	return out
}

// Primary returns the highest-priority resolved keyword in text.
func Primary(text string, opts Options) (Kind, bool) {
	kinds := Resolve(text, opts)
	if len(kinds) == 0 {
		return 0, false
	}
	return kinds[0], true
}
