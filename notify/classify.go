package notify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/mqy/wabiz/chatstore"
)

// Classify turns an envelope into notifications, one per message or status
// item, in payload order. It never fails: items that cannot be mapped yield
// an Unknown notification.
func Classify(env *Envelope) []*Notification {
	if env == nil {
		return nil
	}

	var out []*Notification
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			if value == nil || value.Metadata == nil || value.Metadata.PhoneNumberID == "" {
				glog.Warningf("classify: skip change without metadata, entry: %s, field: %s", entry.ID, change.Field)
				out = append(out, &Notification{Payload: &Unknown{Type: change.Field, Reason: "missing metadata"}})
				continue
			}
			channelID := string(value.Metadata.PhoneNumberID)

			for i, raw := range value.Messages {
				n := classifyMessage(raw, value.Contacts)
				n.ChannelID = channelID
				if u, ok := n.Payload.(*Unknown); ok {
					glog.Infof("classify: unknown message item #%d, type: %q, reason: %s", i, u.Type, u.Reason)
				}
				out = append(out, n)
			}
			for i, raw := range value.Statuses {
				n := classifyStatus(raw)
				n.ChannelID = channelID
				if u, ok := n.Payload.(*Unknown); ok {
					glog.Infof("classify: unknown status item #%d, reason: %s", i, u.Reason)
				}
				out = append(out, n)
			}
			if len(value.Messages) == 0 && len(value.Statuses) == 0 {
				out = append(out, &Notification{
					ChannelID: channelID,
					Payload:   &Unknown{Type: change.Field, Reason: "no messages or statuses"},
				})
			}
		}
	}
	return out
}

func classifyMessage(raw json.RawMessage, contacts []SenderContact) *Notification {
	var m rawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return &Notification{Payload: &Unknown{Reason: fmt.Sprintf("malformed message: %v", err)}}
	}

	n := &Notification{
		MessengerID: m.ID,
		From:        m.From,
		Timestamp:   parseTimestamp(m.Timestamp),
		Profile:     findProfile(contacts, m.From),
	}
	if c := m.Context; c != nil {
		n.ReplyTo = c.ID
		n.Forwarded = c.Forwarded || c.FrequentlyForwarded
	}
	if m.ID == "" || m.From == "" {
		n.Payload = &Unknown{Type: m.Type, Reason: "missing message id or sender"}
		return n
	}
	n.Payload = messagePayload(&m)
	return n
}

func messagePayload(m *rawMessage) Payload {
	switch m.Type {
	case "text":
		if m.Text != nil {
			return &Text{Body: m.Text.Body}
		}
	case "image":
		return mediaPayload(chatstore.MediaImage, m.Type, m.Image)
	case "sticker":
		return mediaPayload(chatstore.MediaImage, m.Type, m.Sticker)
	case "video":
		return mediaPayload(chatstore.MediaVideo, m.Type, m.Video)
	case "audio":
		return mediaPayload(chatstore.MediaAudio, m.Type, m.Audio)
	case "document":
		return mediaPayload(chatstore.MediaDocument, m.Type, m.Document)
	case "location":
		if v := m.Location; v != nil {
			return &Location{Latitude: v.Latitude, Longitude: v.Longitude, Name: v.Name, Address: v.Address}
		}
	case "contacts":
		if len(m.Contacts) > 0 {
			c := &Contact{FormattedName: m.Contacts[0].Name.FormattedName}
			if phones := m.Contacts[0].Phones; len(phones) > 0 {
				c.Phone = phones[0].Phone
			}
			return c
		}
	case "button":
		if v := m.Button; v != nil {
			return &Button{Text: v.Text, Payload: v.Payload}
		}
	case "interactive":
		if v := m.Interact; v != nil {
			switch {
			case v.ButtonReply != nil:
				return &Interactive{ID: v.ButtonReply.ID, Title: v.ButtonReply.Title}
			case v.ListReply != nil:
				return &Interactive{ID: v.ListReply.ID, Title: v.ListReply.Title}
			case v.NfmReply != nil:
				return &Flow{Name: v.NfmReply.Name, Body: v.NfmReply.Body, ResponseJSON: v.NfmReply.ResponseJSON}
			}
			return &Unknown{Type: "interactive/" + v.Type, Reason: "unsupported interactive reply"}
		}
	case "system":
		if v := m.System; v != nil {
			return &System{Body: v.Body, SystemType: v.Type}
		}
	case "reaction":
		if v := m.Reaction; v != nil && v.MessageID != "" {
			return &Reaction{MessageID: v.MessageID, Emoji: v.Emoji}
		}
	default:
		return &Unknown{Type: m.Type, Reason: "unsupported message type"}
	}
	return &Unknown{Type: m.Type, Reason: "missing " + m.Type + " body"}
}

func mediaPayload(kind chatstore.MediaKind, typ string, v *rawMedia) Payload {
	if v == nil || v.ID == "" {
		return &Unknown{Type: typ, Reason: "missing media id"}
	}
	return &Media{
		MediaKind: kind,
		MediaID:   v.ID,
		MimeType:  v.MimeType,
		Caption:   v.Caption,
		FileName:  v.Filename,
	}
}

func classifyStatus(raw json.RawMessage) *Notification {
	var s rawStatus
	if err := json.Unmarshal(raw, &s); err != nil {
		return &Notification{Payload: &Unknown{Type: "status", Reason: fmt.Sprintf("malformed status: %v", err)}}
	}

	n := &Notification{
		MessengerID: s.ID,
		From:        s.RecipientID,
		Timestamp:   parseTimestamp(s.Timestamp),
	}
	if s.ID == "" || s.Status == "" {
		n.Payload = &Unknown{Type: "status", Reason: "missing status id or value"}
		return n
	}

	st := &Status{Status: strings.ToLower(s.Status), Unread: s.UnreadCount}
	for _, e := range s.Errors {
		st.Errors = append(st.Errors, fmt.Sprintf("%d: %s", e.Code, e.Title))
	}
	n.Payload = st
	return n
}

func findProfile(contacts []SenderContact, from string) *Profile {
	if len(contacts) == 0 {
		return nil
	}
	c := contacts[0]
	for _, v := range contacts {
		if v.WaID == from {
			c = v
			break
		}
	}
	return &Profile{Name: c.Profile.Name, WaID: c.WaID}
}

func parseTimestamp(s FlexString) int64 {
	v, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
