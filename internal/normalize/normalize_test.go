package normalize

import "testing"

func TestNormalizeVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		source string
		raw    RawFields
		opt    Options

		want   Canonical
		wantOK bool
	}{
		{
			name:   "whatsapp direct",
			source: "whatsapp",
			raw:    RawFields{Title: "Ana", Body: "hola"},
			want:   Canonical{ConversationName: "Ana", Sender: "Ana", Body: "hola", IsDirect: true},
			wantOK: true,
		},
		{
			name:   "whatsapp group composite title",
			source: "whatsapp",
			raw:    RawFields{Title: "Family: Ana", Body: "dinner?"},
			want:   Canonical{ConversationName: "Family", Sender: "Ana", Body: "dinner?", IsDirect: false},
			wantOK: true,
		},
		{
			name:   "whatsapp group hint without composite",
			source: "whatsapp",
			raw:    RawFields{Title: "Ana", Body: "hey", Group: true, ConvTitle: "Family"},
			want:   Canonical{ConversationName: "Family", Sender: "Ana", Body: "hey", IsDirect: false},
			wantOK: true,
		},
		{
			name:   "telegram group via subtitle",
			source: "telegram",
			raw:    RawFields{Title: "Team Chat", Subtitle: "Bo", Body: "ok"},
			want:   Canonical{ConversationName: "Team Chat", Sender: "Bo", Body: "ok", IsDirect: false},
			wantOK: true,
		},
		{
			name:   "telegram direct no subtitle",
			source: "telegram",
			raw:    RawFields{Title: "Bo", Body: "ok"},
			want:   Canonical{ConversationName: "Bo", Sender: "Bo", Body: "ok", IsDirect: true},
			wantOK: true,
		},
		{
			name:   "slack channel forces not direct",
			source: "slack",
			raw:    RawFields{Title: "#general", Subtitle: "cleo", Body: "standup"},
			want:   Canonical{ConversationName: "#general", Sender: "cleo", Body: "standup", IsDirect: false},
			wantOK: true,
		},
		{
			name:   "slack dm stays direct",
			source: "slack",
			raw:    RawFields{Title: "cleo", Body: "lunch?"},
			want:   Canonical{ConversationName: "cleo", Sender: "cleo", Body: "lunch?", IsDirect: true},
			wantOK: true,
		},
		{
			name:   "discord composite channel",
			source: "discord",
			raw:    RawFields{Title: "#dev: rex", Body: "pushed"},
			want:   Canonical{ConversationName: "#dev", Sender: "rex", Body: "pushed", IsDirect: false},
			wantOK: true,
		},
		{
			name:   "kakaotalk room via subtitle",
			source: "kakaotalk",
			raw:    RawFields{Title: "지민", Subtitle: "스터디방", Body: "안녕"},
			want:   Canonical{ConversationName: "스터디방", Sender: "지민", Body: "안녕", IsDirect: false},
			wantOK: true,
		},
		{
			name:   "self sender normalized",
			source: "whatsapp",
			raw:    RawFields{Title: "Ana", Body: "note to self"},
			opt:    Options{SelfName: "Ana"},
			want:   Canonical{ConversationName: "Ana", Sender: SelfSender, Body: "note to self", IsDirect: true},
			wantOK: true,
		},
		{
			name:   "empty payload dropped",
			source: "whatsapp",
			raw:    RawFields{Title: "", Body: ""},
			wantOK: false,
		},
		{
			name:   "unknown source dropped",
			source: "carrier-pigeon",
			raw:    RawFields{Title: "Ana", Body: "hi"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.source, tt.raw, tt.opt)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got != tt.want {
				t.Fatalf("Normalize = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMediaTags(t *testing.T) {
	t.Parallel()
	tests := []struct {
		source string
		body   string
		tag    string
	}{
		{"whatsapp", "Photo", TagPhoto},
		{"whatsapp", "[Photo]", TagPhoto},
		{"kakaotalk", "사진을 보냈습니다", TagPhoto},
		{"line", "スタンプを送信しました", TagSticker},
		{"whatsapp", "mensaje de voz", TagVoice},
		{"telegram", "Sticker", TagSticker},
		{"telegram", "Video", TagVideo},
		{"whatsapp", "GIF", TagGIF},
		{"slack", "document", TagFile},
	}
	for _, tt := range tests {
		got, ok := Normalize(tt.source, RawFields{Title: "Ana", Body: tt.body}, Options{})
		if !ok {
			t.Fatalf("%s/%q: dropped", tt.source, tt.body)
		}
		if got.MediaTag != tt.tag {
			t.Fatalf("%s/%q: tag = %q, want %q", tt.source, tt.body, got.MediaTag, tt.tag)
		}
		if got.Body != "["+tt.tag+"]" {
			t.Fatalf("%s/%q: body = %q, want canonical marker", tt.source, tt.body, got.Body)
		}
	}

	// Plain text must pass through untouched.
	got, _ := Normalize("whatsapp", RawFields{Title: "Ana", Body: "see the photo I sent?"}, Options{})
	if got.MediaTag != "" || got.Body != "see the photo I sent?" {
		t.Fatalf("plain text mangled: %+v", got)
	}
}

func TestSourcesRegistry(t *testing.T) {
	t.Parallel()
	if !Known("whatsapp") || Known("nope") {
		t.Fatal("Known misreports registry contents")
	}
	srcs := Sources()
	if len(srcs) != len(registry) {
		t.Fatalf("Sources len = %d, want %d", len(srcs), len(registry))
	}
	for i := 1; i < len(srcs); i++ {
		if srcs[i-1] >= srcs[i] {
			t.Fatalf("Sources not sorted: %v", srcs)
		}
	}
}
