package chatstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Reactions maps a reacting chat id to its single active emoji.
// Absent key means no reaction; empty values are never stored.
type Reactions map[string]string

// Merge applies one reaction event. An empty emoji removes the entry of
// chatID, anything else replaces or inserts it. Returns whether the set changed.
func (r *Reactions) Merge(chatID, emoji string) bool {
	if emoji == "" {
		if _, ok := (*r)[chatID]; !ok {
			return false
		}
		delete(*r, chatID)
		return true
	}
	if *r == nil {
		*r = make(Reactions)
	}
	if (*r)[chatID] == emoji {
		return false
	}
	(*r)[chatID] = emoji
	return true
}

// Value implements driver.Valuer, stored as a JSON object.
func (r Reactions) Value() (driver.Value, error) {
	if len(r) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(r))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (r *Reactions) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("reactions: unsupported scan type %T", src)
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("reactions: %v", err)
	}
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	if len(m) == 0 {
		*r = nil
		return nil
	}
	*r = m
	return nil
}
