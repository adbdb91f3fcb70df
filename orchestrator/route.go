package orchestrator

import (
	"strings"

	"github.com/parleyhq/parley/core"
)

// imagePrefix marks a turn as an image request when it leads the text input.
const imagePrefix = "/image"

// Route classifies the latest input into a workflow kind. It is a pure
// function: audio payloads win over text, an image prefix on the text routes
// to the image branch, everything else is plain conversation.
func Route(input TurnInput) core.WorkflowKind {
	if len(input.Audio) > 0 {
		return core.WorkflowAudio
	}
	trimmed := strings.TrimSpace(input.Text)
	if trimmed == imagePrefix || strings.HasPrefix(trimmed, imagePrefix+" ") {
		return core.WorkflowImage
	}
	return core.WorkflowConversation
}

// imageSubject strips the image prefix, leaving the requested subject.
func imageSubject(text string) string {
	trimmed := strings.TrimSpace(text)
	return strings.TrimSpace(strings.TrimPrefix(trimmed, imagePrefix))
}
