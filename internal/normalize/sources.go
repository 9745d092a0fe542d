package normalize

// registry maps source ids to their parsing rules. Each rule is a pure
// function and independently unit-testable.
var registry = map[string]parseFunc{
	"whatsapp":  parseWhatsApp,
	"telegram":  parseTelegram,
	"messenger": parseMessenger,
	"instagram": parseInstagram,
	"kakaotalk": parseKakaoTalk,
	"line":      parseLine,
	"slack":     parseSlack,
	"discord":   parseDiscord,
}

// parseWhatsApp: group messages arrive with a composite "<group>: <sender>"
// title; direct messages put the peer's name in the title.
func parseWhatsApp(raw RawFields, _ Options) (Canonical, bool) {
	if conv, sender, ok := splitComposite(raw.Title); ok {
		return Canonical{ConversationName: conv, Sender: sender, Body: raw.Body, IsDirect: false}, true
	}
	if raw.Group {
		// Group hint without a composite title: the conversation-title hint
		// names the group, the title names the sender.
		conv := raw.ConvTitle
		if conv == "" {
			conv = raw.Title
		}
		return Canonical{ConversationName: conv, Sender: raw.Title, Body: raw.Body, IsDirect: false}, true
	}
	return Canonical{ConversationName: raw.Title, Sender: raw.Title, Body: raw.Body, IsDirect: true}, true
}

// parseTelegram: groups put the group name in the title and the sender in
// the subtitle (or a composite title on some clients). Absence of both
// means a direct chat where title == sender == conversation.
func parseTelegram(raw RawFields, _ Options) (Canonical, bool) {
	if raw.Subtitle != "" {
		return Canonical{ConversationName: raw.Title, Sender: raw.Subtitle, Body: raw.Body, IsDirect: false}, true
	}
	if conv, sender, ok := splitComposite(raw.Title); ok {
		return Canonical{ConversationName: conv, Sender: sender, Body: raw.Body, IsDirect: false}, true
	}
	return Canonical{ConversationName: raw.Title, Sender: raw.Title, Body: raw.Body, IsDirect: !raw.Group}, true
}

func parseMessenger(raw RawFields, _ Options) (Canonical, bool) {
	if conv, sender, ok := splitComposite(raw.Title); ok {
		return Canonical{ConversationName: conv, Sender: sender, Body: raw.Body, IsDirect: false}, true
	}
	if raw.Group || raw.ConvTitle != "" {
		conv := raw.ConvTitle
		if conv == "" {
			conv = raw.Title
		}
		return Canonical{ConversationName: conv, Sender: raw.Title, Body: raw.Body, IsDirect: false}, true
	}
	return Canonical{ConversationName: raw.Title, Sender: raw.Title, Body: raw.Body, IsDirect: true}, true
}

// parseInstagram: DMs only; the title is always the sender.
func parseInstagram(raw RawFields, _ Options) (Canonical, bool) {
	return Canonical{ConversationName: raw.Title, Sender: raw.Title, Body: raw.Body, IsDirect: !raw.Group}, true
}

// parseKakaoTalk: open/group chats carry the room name as the subtitle or
// conversation-title hint; 1:1 chats carry only the sender.
func parseKakaoTalk(raw RawFields, _ Options) (Canonical, bool) {
	room := raw.Subtitle
	if room == "" {
		room = raw.ConvTitle
	}
	if room != "" {
		return Canonical{ConversationName: room, Sender: raw.Title, Body: raw.Body, IsDirect: false}, true
	}
	return Canonical{ConversationName: raw.Title, Sender: raw.Title, Body: raw.Body, IsDirect: !raw.Group}, true
}

func parseLine(raw RawFields, _ Options) (Canonical, bool) {
	if conv, sender, ok := splitComposite(raw.Title); ok {
		return Canonical{ConversationName: conv, Sender: sender, Body: raw.Body, IsDirect: false}, true
	}
	if raw.ConvTitle != "" && raw.ConvTitle != raw.Title {
		return Canonical{ConversationName: raw.ConvTitle, Sender: raw.Title, Body: raw.Body, IsDirect: false}, true
	}
	return Canonical{ConversationName: raw.Title, Sender: raw.Title, Body: raw.Body, IsDirect: !raw.Group}, true
}

// parseSlack: a leading '#' marks a channel and forces "not direct" even
// without a group hint. Channel messages title as "#chan: sender" or put
// the sender in the subtitle.
func parseSlack(raw RawFields, _ Options) (Canonical, bool) {
	if conv, sender, ok := splitComposite(raw.Title); ok {
		return Canonical{ConversationName: conv, Sender: sender, Body: raw.Body, IsDirect: false}, true
	}
	if isChannelName(raw.Title) {
		sender := raw.Subtitle
		if sender == "" {
			sender = raw.Title
		}
		return Canonical{ConversationName: raw.Title, Sender: sender, Body: raw.Body, IsDirect: false}, true
	}
	return Canonical{ConversationName: raw.Title, Sender: raw.Title, Body: raw.Body, IsDirect: !raw.Group}, true
}

func parseDiscord(raw RawFields, _ Options) (Canonical, bool) {
	if conv, sender, ok := splitComposite(raw.Title); ok {
		// A composite title is either a server channel ("#chan: sender")
		// or a group DM; neither is a direct chat.
		return Canonical{ConversationName: conv, Sender: sender, Body: raw.Body, IsDirect: false}, true
	}
	if isChannelName(raw.Title) {
		sender := raw.Subtitle
		if sender == "" {
			sender = raw.Title
		}
		return Canonical{ConversationName: raw.Title, Sender: sender, Body: raw.Body, IsDirect: false}, true
	}
	return Canonical{ConversationName: raw.Title, Sender: raw.Title, Body: raw.Body, IsDirect: !raw.Group}, true
}
