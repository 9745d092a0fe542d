package normalize

import "strings"

// Canonical media tags. Downstream dedup and media handling key off these
// instead of per-source, per-language phrases.
const (
	TagPhoto   = "photo"
	TagVideo   = "video"
	TagSticker = "sticker"
	TagFile    = "file"
	TagVoice   = "voice"
	TagGIF     = "gif"
)

// mediaPhrases lists, per canonical tag, the bodies sources substitute for
// non-text messages in their notification languages (en/ko/ja/es at
// minimum). Matching is case-insensitive after stripping decoration.
var mediaPhrases = map[string][]string{
	TagPhoto: {
		"photo", "image", "sent a photo", "sent you a photo",
		"사진", "사진을 보냈습니다",
		"写真", "画像を送信しました",
		"foto",
	},
	TagVideo: {
		"video", "sent a video",
		"동영상", "동영상을 보냈습니다",
		"動画", "動画を送信しました",
	},
	TagSticker: {
		"sticker", "sent a sticker",
		"스티커", "이모티콘을 보냈습니다",
		"スタンプ", "スタンプを送信しました",
	},
	TagFile: {
		"file", "sent a file", "document",
		"파일", "파일을 보냈습니다",
		"ファイル",
		"archivo",
	},
	TagVoice: {
		"voice message", "sent a voice message", "audio",
		"음성 메시지", "음성메시지를 보냈습니다",
		"ボイスメッセージ",
		"mensaje de voz",
	},
	TagGIF: {
		"gif", "sent a gif",
	},
}

var phraseToTag = func() map[string]string {
	m := make(map[string]string)
	for tag, phrases := range mediaPhrases {
		for _, p := range phrases {
			m[p] = tag
		}
	}
	return m
}()

// detectMedia reports whether a body is a media placeholder and, if so,
// the canonical tag and the marker body to store in its place.
func detectMedia(body string) (tag, marker string, ok bool) {
	key := strings.ToLower(strings.TrimSpace(body))
	// Sources decorate placeholders with brackets or an emoji prefix
	// ("[Photo]", "📷 Photo"); strip the common decorations.
	key = strings.Trim(key, "[]()【】")
	key = strings.TrimSpace(strings.TrimLeft(key, "📷📹🎤🎞🗂📎"))

	t, hit := phraseToTag[key]
	if !hit {
		return "", "", false
	}
	return t, "[" + t + "]", true
}
