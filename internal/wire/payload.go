package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrMalformedPayload is returned for push data that does not match PushPayload.
var ErrMalformedPayload = errors.New("malformed push payload")

// PayloadData is the routing information carried by a notification.
type PayloadData struct {
	URL     string `json:"url"`
	MatchID string `json:"matchId,omitempty"`
}

// PushPayload is the only shape accepted by the delivery surface.
type PushPayload struct {
	Title    string      `json:"title"`
	Body     string      `json:"body"`
	Icon     string      `json:"icon,omitempty"`
	Badge    string      `json:"badge,omitempty"`
	Data     PayloadData `json:"data"`
	Tag      string      `json:"tag"`
	Renotify bool        `json:"renotify"`
}

const (
	DefaultIcon  = "/icons/icon-192x192.png"
	DefaultBadge = "/icons/badge-72x72.png"
	DefaultURL   = "/"
	generalTag   = "general"
)

const pushPayloadSchema = `{
  "type": "object",
  "required": ["title"],
  "properties": {
    "title":    {"type": "string", "minLength": 1},
    "body":     {"type": "string"},
    "message":  {"type": "string"},
    "icon":     {"type": "string"},
    "badge":    {"type": "string"},
    "tag":      {"type": "string"},
    "renotify": {"type": "boolean"},
    "data": {
      "type": "object",
      "properties": {
        "url":     {"type": "string"},
        "matchId": {"type": "string"}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func payloadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(pushPayloadSchema))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("push-payload.json", doc); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("push-payload.json")
	})
	return schema, schemaErr
}

// ParsePushPayload validates raw push data and decodes it with defaults applied.
func ParsePushPayload(raw []byte) (PushPayload, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return PushPayload{}, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}

	sch, err := payloadSchema()
	if err != nil {
		return PushPayload{}, fmt.Errorf("compile push payload schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return PushPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := sch.Validate(inst); err != nil {
		return PushPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var decoded struct {
		PushPayload
		Message  string `json:"message"`
		Renotify *bool  `json:"renotify"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return PushPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	p := decoded.PushPayload
	if p.Body == "" {
		p.Body = decoded.Message
	}
	p.Renotify = decoded.Renotify == nil || *decoded.Renotify
	return p.WithDefaults(), nil
}

// WithDefaults fills icon, badge, url and the match tag.
func (p PushPayload) WithDefaults() PushPayload {
	if p.Icon == "" {
		p.Icon = DefaultIcon
	}
	if p.Badge == "" {
		p.Badge = DefaultBadge
	}
	if p.Data.URL == "" {
		p.Data.URL = DefaultURL
	}
	if p.Tag == "" {
		p.Tag = MatchTag(p.Data.MatchID)
	}
	return p
}

// MatchTag collapses notifications about the same match into one.
func MatchTag(matchID string) string {
	if matchID == "" {
		return generalTag
	}
	return "match-" + matchID
}

// MatchURL is the page a notification about matchID opens.
func MatchURL(matchID string) string {
	if matchID == "" {
		return DefaultURL
	}
	return "/matches/" + matchID
}
