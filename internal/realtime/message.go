package realtime

// Event kinds carried on every change message.
const (
	EventAdd    = "add"
	EventUpdate = "update"
	EventDelete = "delete"
)

// Message is one change notification. Channel is "<entity>.<event>".
type Message struct {
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Entity  string         `json:"entity"`
	Data    map[string]any `json:"data,omitempty"`
}

func ChannelName(entity, event string) string {
	return entity + "." + event
}

// DefaultChannels is every channel a notifier publishes on.
func DefaultChannels() []string {
	var out []string
	for _, entity := range []string{"subject", "sample"} {
		for _, event := range []string{EventAdd, EventUpdate, EventDelete} {
			out = append(out, ChannelName(entity, event))
		}
	}
	return out
}
