// Package qr encodes and decodes the order claim QR payload.
//
// Current codes carry JSON: {"orderNumber":"ORD-2025-0001","qrIssuedAt":"..."}.
// Older codes carry the bare order number and no issuance time; those are
// still accepted and skip the validity window.
package qr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Errors returned by Decode and CheckValidity.
var (
	ErrInvalidFormat = errors.New("invalid QR code format")
	ErrExpired       = errors.New("QR code expired")
)

// Payload is the decoded content of a claim QR code.
type Payload struct {
	OrderNumber string
	IssuedAt    *time.Time
}

type wirePayload struct {
	OrderNumber string          `json:"orderNumber"`
	QRIssuedAt  json.RawMessage `json:"qrIssuedAt,omitempty"`
}

// Decode parses a scanned payload.
func Decode(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, fmt.Errorf("%w: empty payload", ErrInvalidFormat)
	}

	if raw[0] != '{' {
		if !isOrderNumber(raw) {
			return Payload{}, fmt.Errorf("%w: %q is not an order number", ErrInvalidFormat, raw)
		}
		return Payload{OrderNumber: raw}, nil
	}

	var w wirePayload
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	w.OrderNumber = strings.TrimSpace(w.OrderNumber)
	if !isOrderNumber(w.OrderNumber) {
		return Payload{}, fmt.Errorf("%w: missing orderNumber", ErrInvalidFormat)
	}

	p := Payload{OrderNumber: w.OrderNumber}
	issued, err := parseIssuedAt(w.QRIssuedAt)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: qrIssuedAt: %v", ErrInvalidFormat, err)
	}
	p.IssuedAt = issued
	return p, nil
}

// Encode renders a payload for printing as a QR code.
func Encode(p Payload) (string, error) {
	if !isOrderNumber(p.OrderNumber) {
		return "", fmt.Errorf("%w: missing orderNumber", ErrInvalidFormat)
	}
	w := struct {
		OrderNumber string `json:"orderNumber"`
		QRIssuedAt  string `json:"qrIssuedAt,omitempty"`
	}{OrderNumber: p.OrderNumber}
	if p.IssuedAt != nil {
		w.QRIssuedAt = p.IssuedAt.UTC().Format(time.RFC3339)
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

// Remaining is the validity left for a code issued at issuedAt. It is
// negative once the window has passed.
func Remaining(issuedAt, now time.Time, window time.Duration) time.Duration {
	return issuedAt.Add(window).Sub(now)
}

// CheckValidity rejects a payload whose window has passed. A code exactly at
// the boundary is still valid. Codes without an issuance time always pass.
func CheckValidity(p Payload, now time.Time, window time.Duration) error {
	if p.IssuedAt == nil {
		return nil
	}
	left := Remaining(*p.IssuedAt, now, window)
	if left >= 0 {
		return nil
	}
	days := int((-left + 24*time.Hour - 1) / (24 * time.Hour))
	return fmt.Errorf("%w %d day(s) ago; ask the student to re-issue the QR code from their order page", ErrExpired, days)
}

// parseIssuedAt accepts RFC 3339 strings and unix-millisecond numbers.
func parseIssuedAt(raw json.RawMessage) (*time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if s == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}

	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("not a timestamp: %s", raw)
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}

func isOrderNumber(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, r := range s {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '/') {
			return false
		}
	}
	return true
}
