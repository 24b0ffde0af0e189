package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		kind      Kind
		target    string
		text      string
		query     string
		malformed bool
	}{
		{name: "plain broadcast", body: "hello everyone", kind: KindBroadcast, text: "hello everyone"},
		{name: "private", body: "/msg bob see you", kind: KindPrivate, target: "bob", text: "see you"},
		{name: "private wins over bot", body: "/msg bob ask @bot later", kind: KindPrivate, target: "bob", text: "ask @bot later"},
		{name: "bot mention", body: "hey @bot what time is it?", kind: KindBotQuery, text: "hey @bot what time is it?", query: "hey  what time is it?"},
		{name: "bot marker removed once", body: "@bot @bot", kind: KindBotQuery, text: "@bot @bot", query: "@bot"},
		{name: "bot is case sensitive", body: "hey @BOT", kind: KindBroadcast, text: "hey @BOT"},
		{name: "directive without text", body: "/msg bob", kind: KindBroadcast, text: "/msg bob", malformed: true},
		{name: "bare directive", body: "/msg", kind: KindBroadcast, text: "/msg", malformed: true},
		{name: "directive with bad target", body: "/msg b-o-b hi", kind: KindBroadcast, text: "/msg b-o-b hi", malformed: true},
		{name: "not a directive", body: "/msgbob hi", kind: KindBroadcast, text: "/msgbob hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Classify("alice", tt.body, fixedTime)
			if tt.malformed {
				assert.ErrorIs(t, err, ErrMalformedDirective)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.kind, env.Kind)
			assert.Equal(t, tt.target, env.Target)
			assert.Equal(t, tt.text, env.Body)
			assert.Equal(t, tt.query, env.Query)
			assert.Equal(t, "alice", env.Sender)
			assert.Equal(t, fixedTime, env.Timestamp)
		})
	}
}

func TestEnvelopeFormats(t *testing.T) {
	env := Envelope{Sender: "alice", Body: "hi", Timestamp: fixedTime, Target: "bob"}

	assert.Equal(t, "3:04:05 PM alice: hi", env.Format(DefaultTimestampFormat))
	assert.Equal(t, "(Private) 3:04:05 PM alice: hi", env.FormatPrivate(DefaultTimestampFormat))
	assert.Equal(t, "(Private) 3:04:05 PM You -> bob: hi", env.FormatEcho(DefaultTimestampFormat))
	assert.Equal(t, "15:04 alice: hi", env.Format("15:04"))
}

func TestEmojify(t *testing.T) {
	assert.Equal(t, "hi 😄", Emojify("hi :smile:"))
	assert.Equal(t, "hi :not_an_emoji_name:", Emojify("hi :not_an_emoji_name:"))
	assert.Equal(t, "plain", Emojify("plain"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "broadcast", KindBroadcast.String())
	assert.Equal(t, "private", KindPrivate.String())
	assert.Equal(t, "bot_query", KindBotQuery.String())
}
