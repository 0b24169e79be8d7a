package wire

import "github.com/SherClockHolmes/webpush-go"

// RelayPath is the server relay function route.
const RelayPath = "/functions/v1/send-push-notification"

// RelayNotification is the message envelope sent to the relay.
type RelayNotification struct {
	Title   string `json:"title" binding:"required"`
	Message string `json:"message" binding:"required"`
	MatchID string `json:"matchId,omitempty"`
	URL     string `json:"url,omitempty"`
}

// RelayRequest asks the relay to push one notification to each subscription.
type RelayRequest struct {
	Subscriptions []webpush.Subscription `json:"subscriptions" binding:"required"`
	Notification  RelayNotification      `json:"notification" binding:"required"`
}

// RelayResponse summarizes a relay fan-out.
type RelayResponse struct {
	Success bool `json:"success"`
	Sent    int  `json:"sent"`
	Failed  int  `json:"failed"`
	Expired int  `json:"expired"`
}

// Payload renders the envelope into the push payload delivered to devices.
func (n RelayNotification) Payload() PushPayload {
	url := n.URL
	if url == "" {
		url = MatchURL(n.MatchID)
	}
	return PushPayload{
		Title:    n.Title,
		Body:     n.Message,
		Data:     PayloadData{URL: url, MatchID: n.MatchID},
		Renotify: true,
	}.WithDefaults()
}
