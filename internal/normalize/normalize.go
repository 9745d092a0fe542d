package normalize

import (
	"sort"
	"strings"
)

// Package normalize turns raw, per-source notification payloads into
// canonical events. All functions are pure: no I/O, no clocks.

// SelfSender is the sentinel sender for messages the user sent themselves
// (detected by display-name equality with Options.SelfName).
const SelfSender = "me"

// RawFields is the generic shape of an inbound notification before any
// per-source interpretation.
type RawFields struct {
	Title    string
	Body     string
	Subtitle string
	// ConvTitle is the source's conversation-title hint, when present.
	ConvTitle string
	// Group is the source's group-conversation flag, when it exposes one.
	Group bool
}

// Canonical is the normalized event: the only shape downstream code sees.
type Canonical struct {
	ConversationName string
	Sender           string
	Body             string
	IsDirect         bool
	// MediaTag is one of the Tag* constants, or empty for plain text.
	MediaTag string
}

// Options carries the read-only user settings normalization depends on.
type Options struct {
	// SelfName is the user's own display name; senders equal to it are
	// normalized to SelfSender.
	SelfName string
}

type parseFunc func(raw RawFields, opt Options) (Canonical, bool)

// Normalize parses a raw payload using the rules registered for sourceID.
//
// The second return is false when the event must be discarded: unknown
// source, or an empty title+body payload (pre-flight and group-summary
// notifications look like that and are not real messages).
func Normalize(sourceID string, raw RawFields, opt Options) (Canonical, bool) {
	fn, ok := registry[strings.ToLower(strings.TrimSpace(sourceID))]
	if !ok {
		return Canonical{}, false
	}
	if strings.TrimSpace(raw.Title) == "" && strings.TrimSpace(raw.Body) == "" {
		return Canonical{}, false
	}

	c, ok := fn(raw, opt)
	if !ok {
		return Canonical{}, false
	}

	if opt.SelfName != "" && c.Sender == opt.SelfName {
		c.Sender = SelfSender
	}
	if tag, marker, ok := detectMedia(c.Body); ok {
		c.MediaTag = tag
		c.Body = marker
	}
	if c.ConversationName == "" {
		c.ConversationName = c.Sender
	}
	return c, true
}

// Known reports whether a source id has registered rules.
func Known(sourceID string) bool {
	_, ok := registry[strings.ToLower(strings.TrimSpace(sourceID))]
	return ok
}

// Sources lists all registered source ids, sorted.
func Sources() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// splitComposite splits titles of the form "<conversation>: <sender>".
func splitComposite(title string) (conv, sender string, ok bool) {
	i := strings.Index(title, ": ")
	if i <= 0 {
		return "", "", false
	}
	conv = strings.TrimSpace(title[:i])
	sender = strings.TrimSpace(title[i+2:])
	if conv == "" || sender == "" {
		return "", "", false
	}
	return conv, sender, true
}

func isChannelName(name string) bool {
	return strings.HasPrefix(strings.TrimSpace(name), "#")
}
