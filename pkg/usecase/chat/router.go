package chat

import (
	"strings"

	"github.com/m-mizutani/mnemo/pkg/model"
)

type marker struct {
	prefixes []string
	intent   model.Intent
}

// markers are checked in order, so verified sources win over past conversations
var markers = []marker{
	{prefixes: []string{"/verified", `\verified`}, intent: model.IntentVerifiedSources},
	{prefixes: []string{"/past", `\past`}, intent: model.IntentPastConversations},
}

// matchMarker returns the marker prefix that the trimmed query starts with, ignoring case
func matchMarker(query string) (string, model.Intent, bool) {
	for _, m := range markers {
		for _, prefix := range m.prefixes {
			if len(query) >= len(prefix) && strings.EqualFold(query[:len(prefix)], prefix) {
				return prefix, m.intent, true
			}
		}
	}
	return "", model.IntentShortTermChat, false
}

// Classify decides how a query is answered. Markers match in any case, so "/PAST x" is a
// past conversations query. It never fails: anything without a marker is chat.
func Classify(query string) model.Intent {
	_, intent, _ := matchMarker(strings.TrimSpace(query))
	return intent
}

// StripMarker removes the leading marker, leaving the text to retrieve with
func StripMarker(query string) string {
	trimmed := strings.TrimSpace(query)
	prefix, _, ok := matchMarker(trimmed)
	if !ok {
		return trimmed
	}
	return strings.TrimSpace(trimmed[len(prefix):])
}
