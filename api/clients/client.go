package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/certificate-trust-backend/api"
	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// APIError is a non-2xx answer of the backend. It unwraps to the interfaces
// sentinel matching the status code, so callers can use errors.Is.
type APIError struct {
	StatusCode int
	Response   api.ErrorResponse
}

func (e *APIError) Error() string {
	msg := e.Response.Error
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Response.Required != "" {
		return fmt.Sprintf("%d: %s (balance %s, required %s)", e.StatusCode, msg, e.Response.Balance, e.Response.Required)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return interfaces.ErrBadRequest
	case http.StatusForbidden:
		return interfaces.ErrForbidden
	case http.StatusNotFound:
		return interfaces.ErrNotFound
	case http.StatusConflict:
		return interfaces.ErrConflict
	case http.StatusPaymentRequired:
		return interfaces.ErrInsufficientFunds
	case http.StatusServiceUnavailable:
		return interfaces.ErrUpstreamUnavailable
	}
	return nil
}

// Client talks to the certificate trust HTTP API. InstitutionID is sent as
// the identity header on institution routes; in production the gateway sets it.
type Client struct {
	baseURL       string
	institutionID interfaces.InstitutionID
	httpClient    *http.Client
}

// NewClient creates a client for the API at baseURL (e.g. "http://localhost:8080").
// The timeout defaults to 30 seconds.
func NewClient(baseURL string, institutionID interfaces.InstitutionID, timeout ...time.Duration) *Client {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		institutionID: institutionID,
		httpClient:    &http.Client{Timeout: clientTimeout},
	}
}

func (c *Client) Signup(ctx context.Context, req api.SignupRequest) (*interfaces.Institution, error) {
	var institution interfaces.Institution
	if err := c.doJSON(ctx, http.MethodPost, "/api/institutions", req, &institution); err != nil {
		return nil, err
	}
	return &institution, nil
}

func (c *Client) Profile(ctx context.Context) (*api.InstitutionProfile, error) {
	var profile api.InstitutionProfile
	if err := c.doJSON(ctx, http.MethodGet, "/api/institutions/me", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) PrepareDeployment(ctx context.Context, req api.PrepareDeploymentRequest) (*interfaces.DeploymentDescriptor, error) {
	var descriptor interfaces.DeploymentDescriptor
	if err := c.doJSON(ctx, http.MethodPost, "/api/documents/deploy/prepare", req, &descriptor); err != nil {
		return nil, err
	}
	return &descriptor, nil
}

func (c *Client) ConfirmDeployment(ctx context.Context, req api.ConfirmDeploymentRequest) (*interfaces.ContractRegistration, error) {
	var registration interfaces.ContractRegistration
	if err := c.doJSON(ctx, http.MethodPost, "/api/documents/deploy/confirm", req, &registration); err != nil {
		return nil, err
	}
	return &registration, nil
}

// PrepareIssuance uploads a document with its certificate fields. fields
// holds the form values keyed by the api.Form* names.
func (c *Client) PrepareIssuance(ctx context.Context, fields map[string]string, filename string, document io.Reader) (*interfaces.IssuanceDescriptor, error) {
	var descriptor interfaces.IssuanceDescriptor
	if err := c.doMultipart(ctx, "/api/documents/issue/prepare", fields, filename, document, &descriptor); err != nil {
		return nil, err
	}
	return &descriptor, nil
}

func (c *Client) ConfirmIssuance(ctx context.Context, req api.ConfirmIssuanceRequest) (string, error) {
	var resp api.TransactionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/documents/issue/confirm", req, &resp); err != nil {
		return "", err
	}
	return resp.TransactionHash, nil
}

func (c *Client) PrepareRevocation(ctx context.Context, req api.PrepareRevocationRequest) (*interfaces.RevocationDescriptor, error) {
	var descriptor interfaces.RevocationDescriptor
	if err := c.doJSON(ctx, http.MethodPost, "/api/documents/revoke/prepare", req, &descriptor); err != nil {
		return nil, err
	}
	return &descriptor, nil
}

func (c *Client) ConfirmRevocation(ctx context.Context, req api.ConfirmRevocationRequest) (string, error) {
	var resp api.TransactionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/documents/revoke/confirm", req, &resp); err != nil {
		return "", err
	}
	return resp.TransactionHash, nil
}

func (c *Client) Certificates(ctx context.Context, network interfaces.NetworkName) (*api.CertificateListResponse, error) {
	var list api.CertificateListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/documents/certificates/"+url.PathEscape(network.String()), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Verify fetches the reconciled verification result of an issuance transaction.
func (c *Client) Verify(ctx context.Context, network interfaces.NetworkName, txHash string) (*interfaces.VerificationResult, error) {
	var result interfaces.VerificationResult
	path := fmt.Sprintf("/api/public/verify/%s/%s", url.PathEscape(network.String()), url.PathEscape(txHash))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Status(ctx context.Context, network interfaces.NetworkName, institutionID interfaces.InstitutionID, studentID string) (*interfaces.RevocationStatus, error) {
	var status interfaces.RevocationStatus
	path := fmt.Sprintf("/api/public/status/%s/%s/%s",
		url.PathEscape(network.String()), url.PathEscape(institutionID.String()), url.PathEscape(studentID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) Hash(ctx context.Context, filename string, document io.Reader) (string, error) {
	var resp api.HashResponse
	if err := c.doMultipart(ctx, "/api/public/hash", nil, filename, document, &resp); err != nil {
		return "", err
	}
	return resp.DocumentHash, nil
}

func (c *Client) VerifyDocument(ctx context.Context, expectedHash, filename string, document io.Reader) (*api.DocumentMatchResponse, error) {
	var resp api.DocumentMatchResponse
	fields := map[string]string{api.FormExpectedHash: expectedHash}
	if err := c.doMultipart(ctx, "/api/public/verify-document", fields, filename, document, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Document downloads an archived certificate document.
func (c *Client) Document(ctx context.Context, documentHash string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/public/documents/"+url.PathEscape(documentHash), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	if c.institutionID != "" {
		req.Header.Set(api.InstitutionIDHeader, c.institutionID.String())
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) doMultipart(ctx context.Context, path string, fields map[string]string, filename string, document io.Reader, out any) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(api.FormFile, filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, document); err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}
	return nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(body, &apiErr.Response) != nil {
		apiErr.Response.Error = strings.TrimSpace(string(body))
	}
	return apiErr
}
