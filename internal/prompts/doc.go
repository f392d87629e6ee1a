// Package prompts contains the message templates Lifeline injects into
// the host's conversation.
//
// Message text is Go code rather than config files because it is part of
// the hook contract: templates use fmt.Sprintf interpolation and can be
// validated by tests.
//
// Convention: each message category gets its own file (continuation.go,
// recovery.go, keyword.go) with an exported function that accepts the
// dynamic parts and returns the fully interpolated string.
package prompts
