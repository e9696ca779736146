package drive

import (
	"net/http"
	"strings"
	"time"

	"minuteman/internal/services"
)

// PushNotification is a normalized push callback. The platform sends state
// in headers with an empty body; sync messages announce channel creation
// and carry no change.
type PushNotification struct {
	ChannelID     string
	ResourceID    string
	ResourceState string
	Token         string
	ObservedAt    time.Time
}

// Sync reports whether this is the initial handshake message.
func (p PushNotification) Sync() bool {
	return strings.EqualFold(p.ResourceState, "sync")
}

// ParsePushHeaders normalizes a push callback request. A missing channel id
// means the request is not a push notification at all.
func ParsePushHeaders(header http.Header, now time.Time) (PushNotification, error) {
	notification := PushNotification{
		ChannelID:     header.Get("X-Goog-Channel-Id"),
		ResourceID:    header.Get("X-Goog-Resource-Id"),
		ResourceState: header.Get("X-Goog-Resource-State"),
		Token:         header.Get("X-Goog-Channel-Token"),
		ObservedAt:    now,
	}
	if notification.ChannelID == "" {
		return PushNotification{}, services.Wrap(services.ErrValidation, "drive", "parse_push", "missing channel id header", nil)
	}
	return notification, nil
}

// VerifyPushToken checks the shared secret echoed back in push callbacks.
// An empty configured secret disables the check.
func (c *Client) VerifyPushToken(notification PushNotification) error {
	if c.secret == "" {
		return nil
	}
	if notification.Token != c.secret {
		return services.Wrap(services.ErrValidation, "drive", "verify_push", "channel token mismatch", nil)
	}
	return nil
}
