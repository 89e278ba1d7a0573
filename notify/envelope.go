package notify

import (
	"encoding/json"
	"fmt"
)

// Envelope is the webhook body posted by the Cloud API. Items are kept raw
// so a single malformed item cannot fail decoding of the batch.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string       `json:"field"`
	Value *ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         *Metadata         `json:"metadata"`
	Contacts         []SenderContact   `json:"contacts"`
	Messages         []json.RawMessage `json:"messages"`
	Statuses         []json.RawMessage `json:"statuses"`
}

type Metadata struct {
	DisplayPhoneNumber string     `json:"display_phone_number"`
	PhoneNumberID      FlexString `json:"phone_number_id"`
}

// SenderContact is the profile of a message sender.
type SenderContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// FlexString accepts both JSON strings and numbers, the Cloud API is not
// consistent about ids and timestamps.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = FlexString(n)
	return nil
}

// Decode parses a webhook body. Only a body that is not a JSON object is an error.
func Decode(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

type rawMessage struct {
	From      string          `json:"from"`
	ID        string          `json:"id"`
	Timestamp FlexString      `json:"timestamp"`
	Type      string          `json:"type"`
	Context   *rawContext     `json:"context"`
	Text      *rawText        `json:"text"`
	Image     *rawMedia       `json:"image"`
	Video     *rawMedia       `json:"video"`
	Audio     *rawMedia       `json:"audio"`
	Document  *rawMedia       `json:"document"`
	Sticker   *rawMedia       `json:"sticker"`
	Location  *rawLocation    `json:"location"`
	Contacts  []rawContactMsg `json:"contacts"`
	Button    *rawButton      `json:"button"`
	Interact  *rawInteractive `json:"interactive"`
	System    *rawSystem      `json:"system"`
	Reaction  *rawReaction    `json:"reaction"`
}

type rawContext struct {
	From                string `json:"from"`
	ID                  string `json:"id"`
	Forwarded           bool   `json:"forwarded"`
	FrequentlyForwarded bool   `json:"frequently_forwarded"`
}

type rawText struct {
	Body string `json:"body"`
}

type rawMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
	SHA256   string `json:"sha256"`
}

type rawLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
}

type rawContactMsg struct {
	Name struct {
		FormattedName string `json:"formatted_name"`
	} `json:"name"`
	Phones []struct {
		Phone string `json:"phone"`
		WaID  string `json:"wa_id"`
	} `json:"phones"`
}

type rawButton struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

type rawInteractive struct {
	Type        string `json:"type"`
	ButtonReply *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"button_reply"`
	ListReply *struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"list_reply"`
	NfmReply *struct {
		Name         string `json:"name"`
		Body         string `json:"body"`
		ResponseJSON string `json:"response_json"`
	} `json:"nfm_reply"`
}

type rawSystem struct {
	Body    string `json:"body"`
	Type    string `json:"type"`
	NewWaID string `json:"new_wa_id"`
}

type rawReaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type rawStatus struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Timestamp   FlexString `json:"timestamp"`
	RecipientID string     `json:"recipient_id"`
	UnreadCount *int32     `json:"unread_count"`
	Errors      []struct {
		Code  int    `json:"code"`
		Title string `json:"title"`
	} `json:"errors"`
}
