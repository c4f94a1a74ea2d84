package catalog

import v1 "github.com/aevon-lab/segment-relay/internal/api/v1"

// Built-in triggers.
const (
	TriggerUserCreated     = "user.created"
	TriggerPostCreated     = "post.created"
	TriggerTopicCreated    = "topic.created"
	TriggerTopicTagged     = "topic.tagged"
	TriggerReactionCreated = "reaction.created"
	TriggerPageViewed      = "page.viewed"
)

// Defaults returns the built-in bindings.
func Defaults() []Binding {
	return []Binding{
		{
			Trigger: TriggerUserCreated,
			Emits: []Emit{
				{Operation: v1.OperationIdentify},
				{Operation: v1.OperationTrack, Event: "Signed Up"},
			},
		},
		{
			Trigger:    TriggerPostCreated,
			Emits:      []Emit{{Operation: v1.OperationTrack, Event: "Post Created"}},
			Properties: []string{"slug", "title", "url"},
		},
		{
			Trigger:    TriggerTopicCreated,
			Emits:      []Emit{{Operation: v1.OperationTrack, Event: "Topic Created"}},
			Properties: []string{"slug", "title", "url"},
		},
		{
			Trigger: TriggerTopicTagged,
			Emits:   []Emit{{Operation: v1.OperationTrack, Event: "Topic Tagged"}},
		},
		{
			Trigger: TriggerReactionCreated,
			Emits:   []Emit{{Operation: v1.OperationTrack, Event: "Reaction Created"}},
		},
		{
			Trigger: TriggerPageViewed,
			Emits:   []Emit{{Operation: v1.OperationPage}},
		},
	}
}
