package slack

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gorilla/websocket"
)

// Event is an inbound chat message after envelope unwrapping. File is set
// when the message carried an upload.
type Event struct {
	TeamID    string
	ChannelID string
	UserID    string
	Text      string
	EventTS   string
	File      *FileUpload
}

// FileUpload carries the two upload fields the bot reads: the shareable link
// and the comment typed alongside the file.
type FileUpload struct {
	Permalink      string
	InitialComment string
}

type socketEnvelope struct {
	Type       string          `json:"type"`
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

type socketAck struct {
	EnvelopeID string `json:"envelope_id"`
}

type eventsAPIPayload struct {
	TeamID string       `json:"team_id"`
	Event  messageEvent `json:"event"`
}

type messageEvent struct {
	Type    string     `json:"type"`
	Subtype string     `json:"subtype,omitempty"`
	User    string     `json:"user,omitempty"`
	BotID   string     `json:"bot_id,omitempty"`
	Channel string     `json:"channel,omitempty"`
	Text    string     `json:"text,omitempty"`
	TS      string     `json:"ts,omitempty"`
	Files   []fileWire `json:"files,omitempty"`
}

type fileWire struct {
	Permalink      string `json:"permalink,omitempty"`
	InitialComment struct {
		Comment string `json:"comment,omitempty"`
	} `json:"initial_comment,omitempty"`
}

// ConsumeSocket reads Socket Mode envelopes until the connection breaks or
// the context ends. Every events_api envelope is acked before handle runs so
// the platform does not redeliver while a command is in flight.
func ConsumeSocket(ctx context.Context, conn *websocket.Conn, handle func(Event)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var envelope socketEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		switch envelope.Type {
		case "hello":
			continue
		case "disconnect":
			// The platform rotates socket URLs; the caller reconnects.
			return nil
		case "events_api":
			if envelope.EnvelopeID != "" {
				if err := conn.WriteJSON(socketAck{EnvelopeID: envelope.EnvelopeID}); err != nil {
					return err
				}
			}
			event, ok := parseEvent(envelope.Payload)
			if !ok {
				continue
			}
			handle(event)
		}
	}
}

func parseEvent(payload json.RawMessage) (Event, bool) {
	if len(payload) == 0 {
		return Event{}, false
	}
	var wrapper eventsAPIPayload
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return Event{}, false
	}
	msg := wrapper.Event
	if msg.Type != "message" && msg.Type != "app_mention" {
		return Event{}, false
	}
	// Echoes of the bot's own posts and edits are not commands.
	if msg.BotID != "" {
		return Event{}, false
	}
	if msg.Subtype != "" && msg.Subtype != "file_share" {
		return Event{}, false
	}
	if strings.TrimSpace(msg.User) == "" || strings.TrimSpace(msg.Channel) == "" {
		return Event{}, false
	}

	event := Event{
		TeamID:    wrapper.TeamID,
		ChannelID: msg.Channel,
		UserID:    msg.User,
		Text:      msg.Text,
		EventTS:   msg.TS,
	}
	if len(msg.Files) > 0 {
		event.File = &FileUpload{
			Permalink:      msg.Files[0].Permalink,
			InitialComment: msg.Files[0].InitialComment.Comment,
		}
	}
	return event, true
}
