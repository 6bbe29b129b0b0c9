package dispatch

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// Inbound is one incoming chat message: its plain text and, for rich share cards, the raw JSON card payload.
type Inbound struct {
	Text string
	Card string
}

type cardLink struct {
	QQDocURL string `json:"qqdocurl"`
	JumpURL  string `json:"jumpUrl"`
}

type cardPayload struct {
	Meta struct {
		Detail1 *cardLink `json:"detail_1"`
		News    *cardLink `json:"news"`
		Music   *cardLink `json:"music"`
	} `json:"meta"`
}

var unescaper = strings.NewReplacer(`\`, "", "&amp;", "&")

// ExtractText returns the text to match against the registry. A card takes precedence over plain text, and yields
// "" if it carries no link.
func ExtractText(in Inbound) string {
	if in.Card != "" {
		return unescaper.Replace(cardURL(in.Card))
	}
	return strings.TrimSpace(in.Text)
}

func cardURL(raw string) string {
	var card cardPayload
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		zap.S().Named("dispatch").Debugw("failed to decode card", "error", err)
		return ""
	}
	meta := card.Meta
	switch {
	case meta.Detail1 != nil && meta.Detail1.QQDocURL != "":
		return meta.Detail1.QQDocURL
	case meta.News != nil && meta.News.JumpURL != "":
		return meta.News.JumpURL
	case meta.Music != nil && meta.Music.JumpURL != "":
		return meta.Music.JumpURL
	}
	return ""
}
