// Package decode turns whatever a wallet posted into a protocol message. Wallets
// send plain JSON, JWZ/JWS-style dot-separated envelopes, or nothing at all, and
// a hard failure here strands a holder mid-flow, so decoding degrades through a
// fixed sequence of branches instead of erroring.
package decode

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"zkcred/internal/wallet/message"
)

// Kind records which branch produced the message.
type Kind string

const (
	KindPlainJSON       Kind = "plain_json"
	KindEncodedEnvelope Kind = "encoded_envelope"
	KindSynthesized     Kind = "synthesized"
)

var (
	errNotJSONObject = errors.New("body is not a JSON object")
	errNotEnvelope   = errors.New("body is not a dot-separated envelope")
)

// Result is the tagged outcome of Decode. Cause holds the last branch error when
// the message had to be synthesized.
type Result struct {
	Kind    Kind
	Message *message.Message
	Cause   error
}

// Decode runs the pipeline: plain JSON, then encoded envelope, then a minimal
// message synthesized around fallbackID. It never fails.
func Decode(body []byte, fallbackID string) Result {
	trimmed := bytes.TrimSpace(body)

	msg, err := PlainJSON(trimmed)
	if err == nil {
		return Result{Kind: KindPlainJSON, Message: msg}
	}

	msg, envErr := EncodedEnvelope(trimmed)
	if envErr == nil {
		return Result{Kind: KindEncodedEnvelope, Message: msg}
	}

	return Result{Kind: KindSynthesized, Message: Synthesize(fallbackID), Cause: errors.Join(err, envErr)}
}

// PlainJSON parses body as a JSON message object.
func PlainJSON(body []byte) (*message.Message, error) {
	if len(body) == 0 || !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, errNotJSONObject
	}
	return unmarshal(body)
}

// EncodedEnvelope takes the middle segment of a header.payload.signature
// envelope, base64url-decodes it, and parses the result as a JSON message.
// Both padded and unpadded encodings are accepted.
func EncodedEnvelope(body []byte) (*message.Message, error) {
	parts := strings.Split(string(body), ".")
	if len(parts) < 3 || parts[1] == "" {
		return nil, errNotEnvelope
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, err
	}
	return PlainJSON(bytes.TrimSpace(payload))
}

// Synthesize builds the minimal message keyed by id that downstream
// normalization fills in.
func Synthesize(id string) *message.Message {
	return &message.Message{ID: id, ThreadID: id}
}

func unmarshal(raw []byte) (*message.Message, error) {
	var msg message.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	// Some wallets send thid only inside the body of a fetch-request.
	if msg.ThreadID == "" {
		msg.ThreadID = gjson.GetBytes(raw, "body.thid").String()
	}
	return &msg, nil
}
