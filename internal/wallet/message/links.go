package message

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// Links are the encodings a verifier or issuer UI shows to the holder.
type Links struct {
	// QRPayload is the message JSON, the exact string a QR code should encode.
	QRPayload     string `json:"qr_payload"`
	DeepLink      string `json:"deep_link"`
	UniversalLink string `json:"universal_link"`
	// QRImage is a PNG data URL of QRPayload; empty when the payload is too
	// large for a single QR symbol.
	QRImage string `json:"qr_image,omitempty"`
}

// Links encodes m as a QR payload, a scheme deep link, and a universal link.
func (b *Builder) Links(m *Message) (*Links, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message for links: %w", err)
	}
	// Standard base64 carries '+', '/' and '=', which query parsers mangle.
	encoded := url.QueryEscape(base64.StdEncoding.EncodeToString(raw))

	links := &Links{
		QRPayload:     string(raw),
		DeepLink:      fmt.Sprintf("%s://?i_m=%s", b.cfg.Scheme, encoded),
		UniversalLink: universalLink(b.cfg.UniversalLinkBase, encoded),
		QRImage:       qrImage(raw),
	}
	return links, nil
}

func universalLink(base, encoded string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/#") + "/#i_m=" + encoded
}

// qrImage renders payload as a PNG data URL, dropping to the lowest error
// correction level before giving up on payloads that do not fit.
func qrImage(payload []byte) string {
	for _, level := range []qrcode.RecoveryLevel{qrcode.Medium, qrcode.Low} {
		png, err := qrcode.Encode(string(payload), level, qrImageSize)
		if err == nil {
			return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
		}
	}
	return ""
}
