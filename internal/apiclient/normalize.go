package apiclient

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

// Alternate key names seen across carriers and API versions, in order of preference.
var (
	disputeNumberKeys  = []string{"disputeNumber", "ohpDisputeId", "disputeId"}
	disputeStatusKeys  = []string{"status", "disputeStatus", "currentStatus", "statusDescription"}
	disputeAmountKeys  = []string{"amount", "disputedAmount"}
	disputeReasonKeys  = []string{"disputeReason", "dispute_reason", "reason"}
	disputeCreatedKeys = []string{"disputeCreated", "createdDate", "createdAt"}
	disputeRefKeys     = []string{"ref", "reference"}
)

// Records unwraps a decoded JSON payload into a list of objects. A list is returned as is,
// an object holding one of the envelope keys yields that list, any other object is a single record.
func Records(raw any, envelopes ...string) []map[string]any {
	switch v := raw.(type) {
	case []any:
		return objects(v)
	case map[string]any:
		for _, key := range envelopes {
			if list, ok := v[key].([]any); ok {
				return objects(list)
			}
		}
		for _, key := range envelopes {
			if _, ok := v[key]; ok {
				// envelope present but empty or null
				return nil
			}
		}
		if len(v) == 0 {
			return nil
		}
		return []map[string]any{v}
	default:
		return nil
	}
}

func objects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// NormalizeDispute maps a raw dispute object onto core.Dispute.
// Records without any status are reported as not ok and should be skipped.
func NormalizeDispute(rec map[string]any) (core.Dispute, bool) {
	d := core.Dispute{
		Number:         First(rec, disputeNumberKeys...),
		InvoiceNumber:  String(rec["invoiceNumber"]),
		Status:         First(rec, disputeStatusKeys...),
		StatusCode:     String(rec["statusCode"]),
		Amount:         FirstNumber(rec, disputeAmountKeys...),
		Currency:       String(rec["currency"]),
		Type:           String(rec["disputeType"]),
		InvoiceDueDate: String(rec["invoiceDueDate"]),
		Reference:      First(rec, disputeRefKeys...),
		CreatedAt:      First(rec, disputeCreatedKeys...),
		LastModifiedAt: String(rec["lastModifiedDate"]),
	}
	if b, ok := rec["allowSecondReview"].(bool); ok {
		d.AllowSecondReview = &b
	}

	d.ReasonCode, d.ReasonDescription = reason(rec)

	if agent, ok := rec["agent"].(map[string]any); ok {
		d.AgentName = First(agent, "name", "agentName")
		d.AgentEmail = First(agent, "email", "agentEmail")
	}

	return d, d.Status != ""
}

// reason accepts the reason either as {reasonCode, reasonDescription} or as plain text.
func reason(rec map[string]any) (code, description string) {
	for _, key := range disputeReasonKeys {
		switch r := rec[key].(type) {
		case map[string]any:
			return String(r["reasonCode"]), String(r["reasonDescription"])
		case string:
			if r != "" {
				return "", r
			}
		}
	}
	return "", ""
}

// First returns the first non-empty value of keys as a string.
func First(rec map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := String(rec[key]); s != "" {
			return s
		}
	}
	return ""
}

// FirstNumber returns the first numeric value of keys.
func FirstNumber(rec map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		if n := Number(rec[key]); n != nil {
			return n
		}
	}
	return nil
}

// String renders scalar JSON values as text. Whole numbers lose their fraction,
// so a numeric dispute id 12345 becomes "12345".
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Number converts numeric JSON values and numeric strings.
func Number(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return nil
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = n
	default:
		return nil
	}
	return &f
}
