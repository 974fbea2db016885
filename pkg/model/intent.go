package model

type Intent string

const (
	IntentShortTermChat     Intent = "stm_chat"
	IntentPastConversations Intent = "ltm_past_conversations"
	IntentVerifiedSources   Intent = "ltm_verified_sources"
)

func (x Intent) String() string {
	return string(x)
}
