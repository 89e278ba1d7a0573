package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqy/wabiz/chatstore"
)

const batchBody = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550001111", "phone_number_id": "1001"},
        "contacts": [{"profile": {"name": "Alice"}, "wa_id": "79990001122"}],
        "messages": [
          {"from": "79990001122", "id": "wamid.1", "timestamp": "1700000000", "type": "text",
           "text": {"body": "hello"}, "context": {"id": "wamid.0", "forwarded": true}},
          "not an object",
          {"from": "79990001122", "id": "wamid.2", "timestamp": "1700000001", "type": "audio",
           "audio": {"id": "m1", "mime_type": "audio/ogg; codecs=opus"}},
          {"from": "79990001122", "id": "wamid.3", "timestamp": "1700000002", "type": "reaction",
           "reaction": {"message_id": "wamid.1", "emoji": "👍"}},
          {"from": "79990001122", "id": "wamid.4", "timestamp": "1700000003", "type": "unsupported"}
        ]
      }
    }, {
      "field": "messages",
      "value": {
        "metadata": {"phone_number_id": 1001},
        "statuses": [{"id": "wamid.9", "status": "READ", "timestamp": 1700000009, "recipient_id": "79990001122"}]
      }
    }]
  }, {
    "id": "WABA1",
    "changes": [{"field": "messages", "value": {"messages": []}}]
  }]
}`

func TestClassifyBatch(t *testing.T) {
	env, err := Decode([]byte(batchBody))
	require.NoError(t, err)

	out := Classify(env)
	require.Len(t, out, 7)

	kinds := make([]Kind, 0, len(out))
	for _, n := range out {
		kinds = append(kinds, n.Kind())
	}
	assert.Equal(t, []Kind{KindText, KindUnknown, KindMedia, KindReaction, KindUnknown, KindStatus, KindUnknown}, kinds)

	text := out[0]
	assert.Equal(t, "wamid.1", text.MessengerID)
	assert.Equal(t, "79990001122", text.From)
	assert.Equal(t, "1001", text.ChannelID)
	assert.Equal(t, int64(1700000000), text.Timestamp)
	assert.Equal(t, "wamid.0", text.ReplyTo)
	assert.True(t, text.Forwarded)
	assert.Equal(t, &Profile{Name: "Alice", WaID: "79990001122"}, text.Profile)
	assert.Equal(t, &Text{Body: "hello"}, text.Payload)

	assert.Equal(t, "1001", out[1].ChannelID)

	media := out[2].Payload.(*Media)
	assert.Equal(t, chatstore.MediaAudio, media.MediaKind)
	assert.Equal(t, "m1", media.MediaID)

	assert.Equal(t, &Reaction{MessageID: "wamid.1", Emoji: "👍"}, out[3].Payload)

	unknown := out[4].Payload.(*Unknown)
	assert.Equal(t, "unsupported", unknown.Type)
	assert.Equal(t, "wamid.4", out[4].MessengerID)

	status := out[5]
	assert.Equal(t, "1001", status.ChannelID)
	assert.Equal(t, "79990001122", status.From)
	assert.Equal(t, int64(1700000009), status.Timestamp)
	assert.Equal(t, "read", status.Payload.(*Status).Status)

	assert.Equal(t, "missing metadata", out[6].Payload.(*Unknown).Reason)
}

func TestClassifyMessageKinds(t *testing.T) {
	cases := []struct {
		name   string
		item   string
		expect Payload
	}{
		{
			name:   "image",
			item:   `{"type":"image","image":{"id":"i1","mime_type":"image/jpeg","caption":"look"}}`,
			expect: &Media{MediaKind: chatstore.MediaImage, MediaID: "i1", MimeType: "image/jpeg", Caption: "look"},
		},
		{
			name:   "sticker",
			item:   `{"type":"sticker","sticker":{"id":"s1","mime_type":"image/webp"}}`,
			expect: &Media{MediaKind: chatstore.MediaImage, MediaID: "s1", MimeType: "image/webp"},
		},
		{
			name:   "document",
			item:   `{"type":"document","document":{"id":"d1","mime_type":"application/pdf","filename":"a.pdf"}}`,
			expect: &Media{MediaKind: chatstore.MediaDocument, MediaID: "d1", MimeType: "application/pdf", FileName: "a.pdf"},
		},
		{
			name:   "location",
			item:   `{"type":"location","location":{"latitude":55.75,"longitude":37.61}}`,
			expect: &Location{Latitude: 55.75, Longitude: 37.61},
		},
		{
			name:   "contacts",
			item:   `{"type":"contacts","contacts":[{"name":{"formatted_name":"Bob"},"phones":[{"phone":"+1 555"}]}]}`,
			expect: &Contact{FormattedName: "Bob", Phone: "+1 555"},
		},
		{
			name:   "contacts without phone",
			item:   `{"type":"contacts","contacts":[{"name":{"formatted_name":"Bob"}}]}`,
			expect: &Contact{FormattedName: "Bob"},
		},
		{
			name:   "button",
			item:   `{"type":"button","button":{"text":"Yes","payload":"Y"}}`,
			expect: &Button{Text: "Yes", Payload: "Y"},
		},
		{
			name:   "button reply",
			item:   `{"type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"b1","title":"Ok"}}}`,
			expect: &Interactive{ID: "b1", Title: "Ok"},
		},
		{
			name:   "list reply",
			item:   `{"type":"interactive","interactive":{"type":"list_reply","list_reply":{"id":"l1","title":"Row"}}}`,
			expect: &Interactive{ID: "l1", Title: "Row"},
		},
		{
			name:   "flow",
			item:   `{"type":"interactive","interactive":{"type":"nfm_reply","nfm_reply":{"name":"flow","body":"Sent","response_json":"{}"}}}`,
			expect: &Flow{Name: "flow", Body: "Sent", ResponseJSON: "{}"},
		},
		{
			name:   "system",
			item:   `{"type":"system","system":{"body":"changed number","type":"user_changed_number"}}`,
			expect: &System{Body: "changed number", SystemType: "user_changed_number"},
		},
		{
			name:   "text without body",
			item:   `{"type":"text"}`,
			expect: &Unknown{Type: "text", Reason: "missing text body"},
		},
		{
			name:   "media without id",
			item:   `{"type":"video","video":{}}`,
			expect: &Unknown{Type: "video", Reason: "missing media id"},
		},
		{
			name:   "reaction without target",
			item:   `{"type":"reaction","reaction":{"emoji":"👍"}}`,
			expect: &Unknown{Type: "reaction", Reason: "missing reaction body"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			item := `{"from":"1","id":"w1",` + c.item[1:]
			n := classifyMessage([]byte(item), nil)
			assert.Equal(t, c.expect, n.Payload)
			assert.Nil(t, n.Profile)
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	n := classifyStatus([]byte(`{"id":"w1","status":"failed","recipient_id":"7","unread_count":2,
		"errors":[{"code":131047,"title":"Re-engagement message"}]}`))
	st, ok := n.Payload.(*Status)
	require.True(t, ok)
	assert.Equal(t, "failed", st.Status)
	require.NotNil(t, st.Unread)
	assert.Equal(t, int32(2), *st.Unread)
	assert.Equal(t, []string{"131047: Re-engagement message"}, st.Errors)

	n = classifyStatus([]byte(`{"status":"read"}`))
	assert.Equal(t, KindUnknown, n.Kind())

	n = classifyStatus([]byte(`[]`))
	assert.Equal(t, KindUnknown, n.Kind())
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)

	assert.Empty(t, Classify(nil))
}

func TestFindProfile(t *testing.T) {
	assert.Nil(t, findProfile(nil, "79990001122"))

	contacts := make([]SenderContact, 2)
	contacts[0].WaID = "79990000000"
	contacts[0].Profile.Name = "Bob"
	contacts[1].WaID = "79990001122"
	contacts[1].Profile.Name = "Alice"

	assert.Equal(t, &Profile{Name: "Alice", WaID: "79990001122"}, findProfile(contacts, "79990001122"))
	assert.Equal(t, &Profile{Name: "Bob", WaID: "79990000000"}, findProfile(contacts, "70000000000"))
}
