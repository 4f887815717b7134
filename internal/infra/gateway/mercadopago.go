package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"subscription-payments/internal/domain"
	"subscription-payments/internal/domain/model"
	"subscription-payments/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.CheckoutGateway = (*MercadoPagoGateway)(nil)

// MercadoPagoGateway implements CheckoutGateway using direct HTTP calls.
type MercadoPagoGateway struct {
	accessToken   string
	baseURL       string
	returnBaseURL string
	client        *http.Client
}

func NewMercadoPagoGateway(accessToken, baseURL, returnBaseURL string) *MercadoPagoGateway {
	if baseURL == "" {
		baseURL = "https://api.mercadopago.com"
	}
	return &MercadoPagoGateway{
		accessToken:   accessToken,
		baseURL:       baseURL,
		returnBaseURL: returnBaseURL,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *MercadoPagoGateway) Name() string { return "mercadopago" }

// preferenceResponse represents the response from the preference creation API.
type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// paymentResult is the subset of a payment object the oracle needs.
type paymentResult struct {
	ID          int64  `json:"id"`
	Status      string `json:"status"`
	ExternalRef string `json:"external_reference"`
	Metadata    struct {
		PlanID    string `json:"plan_id"`
		SessionID string `json:"session_id"`
	} `json:"metadata"`
	DateCreated time.Time `json:"date_created"`
}

type paymentSearchResponse struct {
	Results []paymentResult `json:"results"`
}

// CreatePreference registers a checkout intent and returns its id plus the
// init-point URL the surface is redirected to.
func (g *MercadoPagoGateway) CreatePreference(ctx context.Context, plan *model.SubscriptionPlan, s model.PaymentSession) (string, string, error) {
	if plan.IsZero() || s.UserID == "" {
		return "", "", domain.ErrInvalidArgument
	}
	currency := plan.Currency
	if currency == "" {
		currency = "ARS"
	}
	returnURL := func(kind string) string {
		return g.returnBaseURL + "/payments/return/" + kind + "?session_id=" + url.QueryEscape(s.ID) + "&plan_id=" + url.QueryEscape(plan.ID)
	}
	requestData := map[string]any{
		"items": []map[string]any{{
			"title":       plan.Name,
			"quantity":    1,
			"unit_price":  float64(plan.PriceCents) / 100,
			"currency_id": currency,
		}},
		"payer":              map[string]any{"email": s.Email},
		"external_reference": s.UserID,
		"metadata":           map[string]any{"plan_id": plan.ID, "session_id": s.ID},
		"back_urls": map[string]any{
			"success": returnURL("success"),
			"failure": returnURL("failure"),
			"pending": returnURL("pending"),
		},
		"auto_return": "approved",
	}

	jsonData, err := json.Marshal(requestData)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal request data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/checkout/preferences", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.accessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("mercadopago error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var response preferenceResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", "", fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}
	if response.ID == "" || response.InitPoint == "" {
		return "", "", fmt.Errorf("mercadopago returned empty preference, body: %s", string(body))
	}
	return response.ID, response.InitPoint, nil
}

// CheckPaymentStatus answers whether the payment reached a terminal outcome.
// With a payment id it reads the payment directly; otherwise it searches the
// account's payments by external reference and picks the latest one for the
// plan.
func (g *MercadoPagoGateway) CheckPaymentStatus(ctx context.Context, q adapter.StatusQuery) (adapter.StatusReport, error) {
	if q.PaymentID == "" && q.PreferenceID == "" {
		return adapter.StatusReport{}, domain.ErrInvalidArgument
	}

	if q.PaymentID != "" {
		return g.paymentByID(ctx, q.PaymentID)
	}
	return g.latestPaymentFor(ctx, q)
}

func (g *MercadoPagoGateway) paymentByID(ctx context.Context, paymentID string) (adapter.StatusReport, error) {
	body, err := g.get(ctx, g.baseURL+"/v1/payments/"+url.PathEscape(paymentID))
	if err != nil {
		return adapter.StatusReport{}, err
	}
	var p paymentResult
	if err := json.Unmarshal(body, &p); err != nil {
		return adapter.StatusReport{}, fmt.Errorf("failed to unmarshal payment: %w, body: %s", err, string(body))
	}
	return reportFor(p.Status), nil
}

func (g *MercadoPagoGateway) latestPaymentFor(ctx context.Context, q adapter.StatusQuery) (adapter.StatusReport, error) {
	v := url.Values{}
	v.Set("external_reference", q.UserID)
	v.Set("sort", "date_created")
	v.Set("criteria", "desc")
	body, err := g.get(ctx, g.baseURL+"/v1/payments/search?"+v.Encode())
	if err != nil {
		return adapter.StatusReport{}, err
	}

	var response paymentSearchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return adapter.StatusReport{}, fmt.Errorf("failed to unmarshal search response: %w, body: %s", err, string(body))
	}
	for _, p := range response.Results {
		if q.PlanID != "" && p.Metadata.PlanID != "" && p.Metadata.PlanID != q.PlanID {
			continue
		}
		return reportFor(p.Status), nil
	}
	// No payment registered yet for this attempt.
	return adapter.StatusReport{LatestStatus: "pending"}, nil
}

func (g *MercadoPagoGateway) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mercadopago error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// reportFor collapses the provider's status vocabulary onto the oracle
// contract. "in_process"/"pending"/anything unknown stays non-terminal.
func reportFor(status string) adapter.StatusReport {
	return adapter.StatusReport{
		Approved:     status == "approved",
		LatestStatus: status,
	}
}
