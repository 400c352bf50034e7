package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"entitlement-api/pkg/logging"
)

const (
	appleProductionVerifyURL = "https://buy.itunes.apple.com/verifyReceipt"
	appleSandboxVerifyURL    = "https://sandbox.itunes.apple.com/verifyReceipt"

	// Status 21007 means the receipt came from the sandbox environment and
	// must be re-verified against the sandbox endpoint
	appleStatusSandboxReceipt = 21007
)

// AppleClient verifies receipts against the external receipt-validation
// service. Production is tried first; a sandbox-receipt status triggers
// exactly one retry against the sandbox endpoint, no further recursion.
type AppleClient struct {
	httpClient   *http.Client
	sharedSecret string

	// Overridable for tests
	ProductionURL string
	SandboxURL    string
}

// NewAppleClient creates a new Apple receipt verification client
func NewAppleClient(sharedSecret string) *AppleClient {
	return &AppleClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		sharedSecret:  sharedSecret,
		ProductionURL: appleProductionVerifyURL,
		SandboxURL:    appleSandboxVerifyURL,
	}
}

// AppleReceiptVerification is the verification outcome kept by the processor
type AppleReceiptVerification struct {
	Environment   string
	LatestReceipt string
}

type appleVerifyRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password,omitempty"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions"`
}

type appleVerifyResponse struct {
	Status        int    `json:"status"`
	Environment   string `json:"environment"`
	LatestReceipt string `json:"latest_receipt"`
}

// Verify checks a receipt blob with Apple. A nonzero status other than the
// sandbox marker rejects the receipt.
func (c *AppleClient) Verify(ctx context.Context, receiptData string) (*AppleReceiptVerification, error) {
	resp, err := c.verifyAt(ctx, c.ProductionURL, receiptData)
	if err != nil {
		return nil, err
	}

	if resp.Status == appleStatusSandboxReceipt {
		logging.Infof("Receipt is from sandbox, retrying against sandbox endpoint")
		resp, err = c.verifyAt(ctx, c.SandboxURL, receiptData)
		if err != nil {
			return nil, err
		}
	}

	if resp.Status != 0 {
		return nil, fmt.Errorf("%w: status %d", ErrReceiptInvalid, resp.Status)
	}

	return &AppleReceiptVerification{
		Environment:   resp.Environment,
		LatestReceipt: resp.LatestReceipt,
	}, nil
}

func (c *AppleClient) verifyAt(ctx context.Context, url, receiptData string) (*appleVerifyResponse, error) {
	body, err := json.Marshal(appleVerifyRequest{
		ReceiptData:            receiptData,
		Password:               c.sharedSecret,
		ExcludeOldTransactions: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}

	var resp appleVerifyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrProviderUnavailable, err)
	}

	return &resp, nil
}
