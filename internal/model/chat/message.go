package chat

import "time"

// TimestampLayout renders live messages the same way the common 12-hour exports do.
const TimestampLayout = "01/02/06, 03:04 PM"

// Message is a single transcript turn. Timestamp stays an opaque display
// string because export formats vary by locale and app version.
type Message struct {
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp"`
	Sender    string `json:"sender"`
	Body      string `json:"message"`
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}
