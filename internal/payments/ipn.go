package payments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

var (
	ErrInvalidSignature = errors.New("invalid IPN signature")
	ErrInvalidPayload   = errors.New("invalid IPN payload")
)

// Notification is the part of an IPN callback the service acts on
type Notification struct {
	OrderID       string
	PaymentID     string
	PaymentStatus string
	ActuallyPaid  *decimal.Decimal
}

// VerifySignature checks the x-nowpayments-sig header: HMAC-SHA512 over the
// body re-serialised with keys sorted, keyed by the IPN secret.
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return ErrInvalidSignature
	}
	canonical, err := sortedJSON(body)
	if err != nil {
		return ErrInvalidPayload
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(strings.TrimSpace(signature))), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign produces the signature the gateway would send for body
func Sign(body []byte, secret string) (string, error) {
	canonical, err := sortedJSON(body)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// sortedJSON re-encodes body with object keys sorted at every level and
// numbers kept verbatim. encoding/json sorts map keys on output.
func sortedJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ParseNotification extracts the fields of an IPN body
func ParseNotification(body []byte) (*Notification, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidPayload
	}
	n := &Notification{
		OrderID:       gjson.GetBytes(body, "order_id").String(),
		PaymentID:     gjson.GetBytes(body, "payment_id").String(),
		PaymentStatus: strings.ToLower(gjson.GetBytes(body, "payment_status").String()),
	}
	if n.OrderID == "" || n.PaymentStatus == "" {
		return nil, ErrInvalidPayload
	}
	if !knownStatus(n.PaymentStatus) {
		return nil, ErrInvalidPayload
	}

	if paid := gjson.GetBytes(body, "actually_paid"); paid.Exists() && paid.Raw != "null" {
		amount, err := decimal.NewFromString(paid.String())
		if err != nil {
			return nil, ErrInvalidPayload
		}
		n.ActuallyPaid = &amount
	}
	return n, nil
}
