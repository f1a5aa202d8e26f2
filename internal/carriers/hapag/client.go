package hapag

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/apiclient"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

// ErrMissingStatus is returned for dispute payloads without any status field.
var ErrMissingStatus = errors.New("dispute payload has no status")

// Client wraps the dispute and invoice overview APIs.
type Client struct {
	api      *apiclient.Client
	settings *Settings
}

func NewClient(api *apiclient.Client, settings *Settings) *Client {
	return &Client{api: api, settings: settings}
}

func (c *Client) request(method, target string) apiclient.Request {
	return apiclient.Request{
		Method:   method,
		URL:      target,
		Scope:    core.DefaultScope,
		Decorate: Decorate,
	}
}

// ListInvoices returns every invoice visible to the account.
func (c *Client) ListInvoices(ctx context.Context) ([]core.Invoice, error) {
	var raw any
	if err := c.api.Do(ctx, c.request(http.MethodGet, c.settings.InvoiceAPI), &raw); err != nil {
		return nil, fmt.Errorf("listing hapag invoices: %w", err)
	}

	records := apiclient.Records(raw, "invoiceList")
	invoices := make([]core.Invoice, 0, len(records))
	for _, rec := range records {
		inv := normalizeInvoice(rec)
		if inv.Number == "" {
			continue
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

// GetDispute returns one dispute by its number. A missing dispute yields core.ErrNotFound.
func (c *Client) GetDispute(ctx context.Context, number string) (core.Dispute, error) {
	var raw any
	target := c.settings.DisputeAPI + "/" + url.PathEscape(number)
	if err := c.api.Do(ctx, c.request(http.MethodGet, target), &raw); err != nil {
		return core.Dispute{}, fmt.Errorf("fetching hapag dispute %s: %w", number, err)
	}

	records := apiclient.Records(raw)
	if len(records) == 0 {
		return core.Dispute{}, fmt.Errorf("fetching hapag dispute %s: %w", number, core.ErrNotFound)
	}
	d, ok := apiclient.NormalizeDispute(records[0])
	if !ok {
		return core.Dispute{}, fmt.Errorf("hapag dispute %s: %w", number, ErrMissingStatus)
	}
	if d.Number == "" {
		d.Number = number
	}
	return d, nil
}

// DisputesByInvoice looks disputes up by invoice number. The API answers some invoices only
// to a POST search, so a 404 on the GET is retried as POST. No disputes is not an error.
func (c *Client) DisputesByInvoice(ctx context.Context, invoiceNumber string) ([]core.Dispute, error) {
	logger := log.Ctx(ctx).With().Str("carrier", Type).Str("invoice", invoiceNumber).Logger()

	get := c.request(http.MethodGet, c.settings.DisputeAPI)
	get.Query = url.Values{"invoiceNumber": {invoiceNumber}}

	var raw any
	err := c.api.Do(ctx, get, &raw)
	if errors.Is(err, core.ErrNotFound) {
		logger.Debug().Msg("no disputes via GET, trying POST search")
		post := c.request(http.MethodPost, c.settings.DisputeAPI)
		post.Body = map[string]string{"invoiceNumber": invoiceNumber}
		raw = nil
		err = c.api.Do(ctx, post, &raw)
	}
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("searching hapag disputes of invoice %s: %w", invoiceNumber, err)
	}

	var disputes []core.Dispute
	for _, rec := range apiclient.Records(raw, "disputes") {
		d, ok := apiclient.NormalizeDispute(rec)
		if !ok {
			logger.Warn().Str("dispute", d.Number).Msg("dispute without status, skipping")
			continue
		}
		if d.InvoiceNumber == "" {
			d.InvoiceNumber = invoiceNumber
		}
		disputes = append(disputes, d)
	}
	return disputes, nil
}

func normalizeInvoice(rec map[string]any) core.Invoice {
	inv := core.Invoice{
		Number:     apiclient.String(rec["invoiceNumber"]),
		Carrier:    Type,
		BookingRef: apiclient.First(rec, "bookingNumber", "blNumber"),
		Amount:     apiclient.FirstNumber(rec, "invoiceAmount", "amount"),
		Currency:   apiclient.First(rec, "currency", "invoiceCurrency"),
		Status:     "UNKNOWN",
	}
	if statuses, ok := rec["invoiceStatuses"].([]any); ok && len(statuses) > 0 {
		if s := apiclient.String(statuses[0]); s != "" {
			inv.Status = s
		}
	} else if s := apiclient.String(rec["invoiceStatus"]); s != "" {
		inv.Status = s
	}
	if issued, ok := apiclient.ParseDate(apiclient.First(rec, "invoiceDate", "issueDate")); ok {
		inv.IssuedAt = issued
	}
	return inv
}
