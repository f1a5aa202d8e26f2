package maersk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/apiclient"
	"github.com/nitrotech24/disputa-portal-conferencia/internal/core"
)

const (
	acceptDisputeV1 = "application/vnd.ohp.dispute.v1+json"
	acceptDisputeV2 = "application/vnd.ohp.dispute.v2+json"

	disputesPath = "/disputes-external/api/dispute"
	invoicesPath = "/invoices"

	// maxPages bounds ListAllDisputes in case the API ignores page_no.
	maxPages = 100
)

// InvoiceTypes are the invoice listings FindInvoice searches, in order.
var InvoiceTypes = []string{"PAID", "OPEN", "OVERDUE", "DISPUTED", "CREDIT", "DEBIT"}

// DisputeRef is a row of the dispute search: enough to match a dispute to its invoice.
type DisputeRef struct {
	ID            string
	InvoiceNumber string
	Status        string
}

type Client struct {
	api      *apiclient.Client
	settings *Settings
}

func NewClient(api *apiclient.Client, settings *Settings) *Client {
	return &Client{api: api, settings: settings}
}

// APICustomerCode translates the portal customer code into the code the APIs expect.
func (c *Client) APICustomerCode(customer string) string {
	return c.settings.APICustomerCode(customer)
}

func (c *Client) disputeRequest(method, path, customer, accept string) apiclient.Request {
	apiCode := c.settings.APICustomerCode(customer)
	return apiclient.Request{
		Method: method,
		URL:    c.settings.APIBaseURL + path,
		Scope:  customer,
		Decorate: func(h http.Header, _ string) {
			h.Set("consumer-key", c.settings.DisputeConsumerKey)
			h.Set("carrier-code", strings.ToLower(c.settings.CarrierCode))
			h.Set("customer-code", apiCode)
			h.Set("Accept", accept)
			h.Set("Origin", c.settings.BaseURL)
			h.Set("Referer", c.settings.BaseURL+"/")
		},
	}
}

func searchBody(filters []map[string]any) map[string]any {
	body := map[string]any{
		"object_id": "disputes-view",
		"search":    nil,
		"filters":   filters,
	}
	if len(filters) == 0 {
		body["filters"] = []map[string]any{}
		body["sort_by"] = "ohpDisputeId"
		body["sort_order"] = "DESC"
	}
	return body
}

func refs(records []map[string]any) []DisputeRef {
	out := make([]DisputeRef, 0, len(records))
	for _, rec := range records {
		ref := DisputeRef{
			ID:            apiclient.First(rec, "ohpDisputeId", "disputeNumber", "disputeId"),
			InvoiceNumber: apiclient.String(rec["invoiceNumber"]),
			Status:        apiclient.First(rec, "statusDescription", "status"),
		}
		if ref.ID != "" {
			out = append(out, ref)
		}
	}
	return out
}

// ListAllDisputes returns every dispute of the customer, newest first.
func (c *Client) ListAllDisputes(ctx context.Context, customer string) ([]DisputeRef, error) {
	seen := make(map[string]struct{})
	var all []DisputeRef

	for page := 0; page < maxPages; page++ {
		req := c.disputeRequest(http.MethodPost, disputesPath+"/search/filter", customer, acceptDisputeV1)
		req.Query = url.Values{
			"page_no":   {strconv.Itoa(page)},
			"page_size": {strconv.Itoa(c.settings.PageSize)},
		}
		req.Body = searchBody(nil)

		var raw any
		if err := c.api.Do(ctx, req, &raw); err != nil {
			return nil, fmt.Errorf("listing maersk disputes of %s: %w", customer, err)
		}
		records := apiclient.Records(raw, "search_records")

		added := 0
		for _, ref := range refs(records) {
			if _, ok := seen[ref.ID]; ok {
				continue
			}
			seen[ref.ID] = struct{}{}
			all = append(all, ref)
			added++
		}
		if len(records) < c.settings.PageSize || added == 0 {
			break
		}
	}

	log.Ctx(ctx).Debug().Str("customer", customer).Int("disputes", len(all)).Msg("listed maersk disputes")
	return all, nil
}

// SearchDisputesByInvoice returns the disputes filed against one invoice.
func (c *Client) SearchDisputesByInvoice(ctx context.Context, customer, invoiceNumber string) ([]DisputeRef, error) {
	req := c.disputeRequest(http.MethodPost, disputesPath+"/search/filter", customer, acceptDisputeV1)
	req.Body = searchBody([]map[string]any{{
		"exclude":     false,
		"updatable":   true,
		"property_id": "invoiceNumber",
		"filterName":  "Invoice number",
		"values":      []string{invoiceNumber},
	}})

	var raw any
	if err := c.api.Do(ctx, req, &raw); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("searching maersk disputes of invoice %s: %w", invoiceNumber, err)
	}
	return refs(apiclient.Records(raw, "search_records")), nil
}

// GetDisputeDetails returns the full dispute. A dispute without status is kept as "Unknown".
func (c *Client) GetDisputeDetails(ctx context.Context, customer, disputeID string) (core.Dispute, error) {
	req := c.disputeRequest(http.MethodGet, disputesPath+"/"+url.PathEscape(disputeID), customer, acceptDisputeV1)

	var raw any
	if err := c.api.Do(ctx, req, &raw); err != nil {
		return core.Dispute{}, fmt.Errorf("fetching maersk dispute %s: %w", disputeID, err)
	}
	records := apiclient.Records(raw)
	if len(records) == 0 {
		return core.Dispute{}, fmt.Errorf("fetching maersk dispute %s: %w", disputeID, core.ErrNotFound)
	}

	d, ok := apiclient.NormalizeDispute(records[0])
	if !ok {
		d.Status = "Unknown"
	}
	if d.Number == "" {
		d.Number = disputeID
	}
	d.CustomerCode = customer
	return d, nil
}

// GetDisputeComments returns one page of comments.
func (c *Client) GetDisputeComments(ctx context.Context, customer, disputeID string, limit, page int) ([]map[string]any, error) {
	req := c.disputeRequest(http.MethodGet, disputesPath+"/"+url.PathEscape(disputeID)+"/comment", customer, acceptDisputeV1)
	req.Query = url.Values{"limit": {strconv.Itoa(limit)}, "page": {strconv.Itoa(page)}}

	var raw any
	if err := c.api.Do(ctx, req, &raw); err != nil {
		return nil, fmt.Errorf("fetching comments of maersk dispute %s: %w", disputeID, err)
	}
	return apiclient.Records(raw, "comments"), nil
}

func (c *Client) GetDisputeAttachments(ctx context.Context, customer, disputeID string) ([]map[string]any, error) {
	req := c.disputeRequest(http.MethodGet, disputesPath+"/attachment/"+url.PathEscape(disputeID), customer, acceptDisputeV2)

	var raw any
	if err := c.api.Do(ctx, req, &raw); err != nil {
		return nil, fmt.Errorf("fetching attachments of maersk dispute %s: %w", disputeID, err)
	}
	return apiclient.Records(raw, "attachments"), nil
}

// GetInvoice looks the invoice up in one invoice listing. Absence is core.ErrNotFound.
func (c *Client) GetInvoice(ctx context.Context, customer, number, invoiceType string) (core.Invoice, error) {
	apiCode := c.settings.APICustomerCode(customer)
	req := apiclient.Request{
		Method: http.MethodGet,
		URL:    c.settings.APIBaseURL + invoicesPath,
		Scope:  customer,
		Query: url.Values{
			"searchType":      {"INV_NOS"},
			"ids":             {number},
			"customerCodeCMD": {apiCode},
			"carrierCode":     {c.settings.CarrierCode},
			"invoiceType":     {invoiceType},
			"isSelected":      {"true"},
			"isCreditCountry": {"true"},
		},
		Decorate: func(h http.Header, _ string) {
			h.Set("consumer-key", c.settings.InvoiceConsumerKey)
			h.Set("Accept", "*/*")
			h.Set("Origin", c.settings.BaseURL)
			h.Set("Referer", c.settings.BaseURL+"/")
		},
	}

	var raw any
	if err := c.api.Do(ctx, req, &raw); err != nil {
		return core.Invoice{}, fmt.Errorf("fetching maersk invoice %s (%s): %w", number, invoiceType, err)
	}
	records := apiclient.Records(raw, "invoices")
	if len(records) == 0 {
		return core.Invoice{}, fmt.Errorf("maersk invoice %s (%s): %w", number, invoiceType, core.ErrNotFound)
	}
	return normalizeInvoice(records[0], customer, number, invoiceType), nil
}

// FindInvoice searches every invoice listing until the invoice shows up and reports where it was found.
func (c *Client) FindInvoice(ctx context.Context, customer, number string) (core.Invoice, string, error) {
	for _, invoiceType := range InvoiceTypes {
		inv, err := c.GetInvoice(ctx, customer, number, invoiceType)
		if err == nil {
			return inv, invoiceType, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return core.Invoice{}, "", err
		}
	}
	return core.Invoice{}, "", fmt.Errorf("maersk invoice %s: %w", number, core.ErrNotFound)
}

func normalizeInvoice(rec map[string]any, customer, number, invoiceType string) core.Invoice {
	inv := core.Invoice{
		Number:       apiclient.First(rec, "invoiceNo", "invoiceNumber"),
		Carrier:      Type,
		CustomerCode: customer,
		CustomerName: apiclient.String(rec["priceOwnerName"]),
		Amount:       apiclient.FirstNumber(rec, "invoicedAmount", "openAmount"),
		Currency:     apiclient.String(rec["currency"]),
		Status:       apiclient.First(rec, "invoiceStatus", "status"),
	}
	if inv.Number == "" {
		inv.Number = number
	}
	if inv.Status == "" {
		inv.Status = invoiceType
	}
	if issued, ok := apiclient.ParseDate(apiclient.String(rec["invoiceDate"])); ok {
		inv.IssuedAt = issued
	}
	return inv
}
