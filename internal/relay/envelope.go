package relay

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kyokomi/emoji/v2"
)

// BotMarker is the literal substring that addresses the responder.
const BotMarker = "@bot"

// BotName is the sender identity used for responder answers.
const BotName = "🤖 @bot"

// DefaultTimestampFormat renders times the way a locale time string does.
const DefaultTimestampFormat = "3:04:05 PM"

const directivePrefix = "/msg"

var privateDirective = regexp.MustCompile(`^/msg (\w+) (.+)$`)

func init() {
	// Expanded glyphs replace the shorthand in place; no trailing padding.
	emoji.ReplacePadding = ""
}

// Kind is the routing class of an envelope.
type Kind int

const (
	KindBroadcast Kind = iota
	KindPrivate
	KindBotQuery
)

func (k Kind) String() string {
	switch k {
	case KindBroadcast:
		return "broadcast"
	case KindPrivate:
		return "private"
	case KindBotQuery:
		return "bot_query"
	default:
		return "unknown"
	}
}

// Envelope is the unit the router operates on.
type Envelope struct {
	Sender    string
	Body      string
	Timestamp time.Time
	Kind      Kind

	// Target is the recipient of a private envelope.
	Target string
	// Query is the body with the bot marker removed, set for KindBotQuery.
	Query string
}

// Emojify expands :name: shorthand into glyphs. Unknown names are left as is.
func Emojify(text string) string {
	return emoji.Sprint(text)
}

// Classify derives the envelope kind from body alone. The second return value
// is ErrMalformedDirective when body looks like a private directive but does
// not parse; the envelope is then a plain broadcast.
func Classify(sender, body string, at time.Time) (Envelope, error) {
	env := Envelope{Sender: sender, Body: body, Timestamp: at, Kind: KindBroadcast}

	if m := privateDirective.FindStringSubmatch(body); m != nil {
		env.Kind = KindPrivate
		env.Target = m[1]
		env.Body = m[2]
		return env, nil
	}

	var err error
	if strings.HasPrefix(body, directivePrefix+" ") || body == directivePrefix {
		err = ErrMalformedDirective
	}

	if strings.Contains(body, BotMarker) {
		env.Kind = KindBotQuery
		env.Query = strings.TrimSpace(strings.Replace(body, BotMarker, "", 1))
	}

	return env, err
}

// Format renders env for the given timestamp layout.
func (e Envelope) Format(layout string) string {
	return fmt.Sprintf("%s %s: %s", e.Timestamp.Format(layout), e.Sender, e.Body)
}

// FormatPrivate renders env as the recipient sees it.
func (e Envelope) FormatPrivate(layout string) string {
	return "(Private) " + e.Format(layout)
}

// FormatEcho renders env as the sender's own confirmation.
func (e Envelope) FormatEcho(layout string) string {
	return fmt.Sprintf("(Private) %s You -> %s: %s", e.Timestamp.Format(layout), e.Target, e.Body)
}
