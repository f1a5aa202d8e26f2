package apiclient

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestRecords(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		envelopes []string
		want      int
	}{
		{"list", `[{"a":1},{"a":2}]`, nil, 2},
		{"single object", `{"disputeNumber":1}`, nil, 1},
		{"envelope", `{"search_records":[{"a":1},{"a":2},{"a":3}]}`, []string{"search_records"}, 3},
		{"second envelope key", `{"invoiceList":[{"a":1}]}`, []string{"invoices", "invoiceList"}, 1},
		{"null envelope", `{"search_records":null}`, []string{"search_records"}, 0},
		{"empty object", `{}`, nil, 0},
		{"null", `null`, nil, 0},
		{"scalars in list are dropped", `[1,"x",{"a":1}]`, nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Records(decode(t, tt.payload), tt.envelopes...), tt.want)
		})
	}
}

func TestNormalizeDispute(t *testing.T) {
	amount := 1250.5
	yes := true

	tests := []struct {
		name    string
		payload string
		want    core.Dispute
		ok      bool
	}{
		{
			name: "hapag",
			payload: `{"disputeNumber": 987654, "status": "IN_PROGRESS", "amount": 1250.5, "currency": "USD",
				"dispute_reason": "Wrong rate", "ref": "BL123", "allowSecondReview": true,
				"disputeCreated": "2025-05-01T10:00:00Z", "invoiceNumber": "2100012345"}`,
			want: core.Dispute{
				Number: "987654", InvoiceNumber: "2100012345", Status: "IN_PROGRESS", Amount: &amount,
				Currency: "USD", ReasonDescription: "Wrong rate", Reference: "BL123",
				AllowSecondReview: &yes, CreatedAt: "2025-05-01T10:00:00Z",
			},
			ok: true,
		},
		{
			name: "maersk details",
			payload: `{"ohpDisputeId": "123456", "statusDescription": "Under review", "statusCode": "UR",
				"disputedAmount": "1250.5", "currency": "BRL", "disputeType": "RATE",
				"disputeReason": {"reasonCode": "R01", "reasonDescription": "Rate mismatch"},
				"agent": {"agentName": "Ana", "email": "ana@example.com"},
				"invoiceDueDate": "2025-06-30", "createdDate": "2025-05-02", "lastModifiedDate": "2025-05-03"}`,
			want: core.Dispute{
				Number: "123456", Status: "Under review", StatusCode: "UR", Amount: &amount,
				Currency: "BRL", Type: "RATE", ReasonCode: "R01", ReasonDescription: "Rate mismatch",
				AgentName: "Ana", AgentEmail: "ana@example.com", InvoiceDueDate: "2025-06-30",
				CreatedAt: "2025-05-02", LastModifiedAt: "2025-05-03",
			},
			ok: true,
		},
		{
			name:    "status fallback order",
			payload: `{"disputeNumber": 1, "disputeStatus": "", "currentStatus": "OPEN", "statusDescription": "Open"}`,
			want:    core.Dispute{Number: "1", Status: "OPEN"},
			ok:      true,
		},
		{
			name:    "no status",
			payload: `{"disputeNumber": 2}`,
			want:    core.Dispute{Number: "2"},
			ok:      false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Records(decode(t, tt.payload))
			require.Len(t, rec, 1)
			got, ok := NormalizeDispute(rec[0])
			assert.Equal(t, tt.ok, ok)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NormalizeDispute() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"/Date(1757548800000)/", time.Date(2025, 9, 11, 0, 0, 0, 0, time.UTC), true},
		{"/Date(1757548800000+0200)/", time.Date(2025, 9, 11, 0, 0, 0, 0, time.UTC), true},
		{"2025-05-01", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), true},
		{"2025-05-01 13:45:00", time.Date(2025, 5, 1, 13, 45, 0, 0, time.UTC), true},
		{"2025-05-01T13:45:00Z", time.Date(2025, 5, 1, 13, 45, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
