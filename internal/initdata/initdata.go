// Package initdata verifies the signed init data a Telegram WebApp
// front-end sends along with each request. Verification is pure
// computation: no I/O, deterministic for a given input and bot token.
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrEmptyInit  = errors.New("empty init data")
	ErrEmptyToken = errors.New("empty bot token")
	ErrBadHash    = errors.New("bad hash")
	ErrNoIdentity = errors.New("no identity")
)

// Identity is the trusted result of a successful verification.
type Identity struct {
	// UserID and ChatID are the stringified numeric ids from the signed
	// "user" and "chat" fields. Either may be empty, never both.
	UserID  string
	ChatID  string
	RawUser string
	RawChat string
}

// DeliveryTarget is the chat identity used for routing outbound
// notifications: the user id when present, otherwise the chat id.
func (i Identity) DeliveryTarget() string {
	if i.UserID != "" {
		return i.UserID
	}
	return i.ChatID
}

// Verify checks the keyed-hash signature of raw init data against the bot
// token and extracts the asserted identity. The signature scheme is fixed
// by Telegram: the secret key is HMAC-SHA256 of the literal "WebAppData"
// keyed with the bot token, and the signed payload is the remaining
// key=value pairs sorted by key and joined with newlines.
func Verify(raw, botToken string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrEmptyInit
	}
	if botToken == "" {
		return Identity{}, ErrEmptyToken
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return Identity{}, fmt.Errorf("parse init data: %w", err)
	}

	gotHash := values.Get("hash")
	if gotHash == "" {
		return Identity{}, ErrBadHash
	}
	values.Del("hash")
	values.Del("signature")

	if !hmac.Equal([]byte(gotHash), []byte(signature(values, botToken))) {
		return Identity{}, ErrBadHash
	}

	identity := Identity{
		RawUser: values.Get("user"),
		RawChat: values.Get("chat"),
		UserID:  numericID(values.Get("user")),
		ChatID:  numericID(values.Get("chat")),
	}
	if identity.UserID == "" && identity.ChatID == "" {
		return Identity{}, ErrNoIdentity
	}
	return identity, nil
}

// Sign computes the hash field for a set of init data pairs. Exposed so
// tests and local tooling can produce verifiable payloads.
func Sign(values url.Values, botToken string) string {
	return signature(values, botToken)
}

func signature(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var lines []string
	for _, key := range keys {
		for _, value := range values[key] {
			lines = append(lines, key+"="+value)
		}
	}
	checkString := strings.Join(lines, "\n")

	secretMAC := hmac.New(sha256.New, []byte(botToken))
	secretMAC.Write([]byte("WebAppData"))
	secret := secretMAC.Sum(nil)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(checkString))
	return hex.EncodeToString(mac.Sum(nil))
}

// numericID pulls the numeric "id" out of a JSON-encoded user or chat
// field. Malformed JSON or a missing id is treated as absence, not as a
// verification failure.
func numericID(raw string) string {
	if raw == "" {
		return ""
	}
	var record struct {
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &record); err != nil || record.ID == nil {
		return ""
	}
	return strconv.FormatInt(*record.ID, 10)
}
