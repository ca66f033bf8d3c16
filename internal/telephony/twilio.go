package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// Trial accounts can only call verified numbers and fail placement with one
// of these error codes. This failure mode is common and user-actionable, so
// it is surfaced distinctly from generic provider errors.
var trialErrorCodes = map[int]bool{
	21219: true, // unverified destination number
	21606: true, // from number not valid for trial
	21608: true, // trial account international restriction
}

// APIError is a non-2xx response from the telephony provider's REST API.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio: %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// IsTrialRestriction reports whether err is a trial/sandbox account
// placement restriction.
func IsTrialRestriction(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return trialErrorCodes[apiErr.Code]
	}
	return false
}

// Client is a minimal Twilio REST client scoped to one account.
type Client struct {
	accountSID string
	authToken  string
	httpClient *http.Client
}

func NewClient(accountSID, authToken string) *Client {
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// PlaceCallParams describes one outbound call placement.
type PlaceCallParams struct {
	To                string // E.164 destination
	From              string // E.164 caller id owned by the account
	CallbackURL       string // call-control URL invoked on answer
	StatusCallbackURL string // async ringing/answered/completed notifications
	Record            bool
}

// PlaceCallResult is the provider's acceptance of a placement.
type PlaceCallResult struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// PlaceCall places an outbound call via the provider's call-placement API.
func (c *Client) PlaceCall(ctx context.Context, p PlaceCallParams) (*PlaceCallResult, error) {
	apiURL := fmt.Sprintf("%s/Accounts/%s/Calls.json", twilioAPIBase, c.accountSID)

	data := url.Values{}
	data.Set("To", p.To)
	data.Set("From", p.From)
	data.Set("Url", p.CallbackURL)
	data.Set("Method", "POST")
	if p.StatusCallbackURL != "" {
		data.Set("StatusCallback", p.StatusCallbackURL)
		data.Set("StatusCallbackMethod", "POST")
		for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
			data.Add("StatusCallbackEvent", ev)
		}
	}
	if p.Record {
		data.Set("Record", "true")
	}

	var result PlaceCallResult
	if err := c.postForm(ctx, apiURL, data, &result); err != nil {
		return nil, err
	}
	if result.SID == "" {
		return nil, fmt.Errorf("twilio: placement response missing call SID")
	}
	return &result, nil
}

// EndCall terminates an in-progress call.
func (c *Client) EndCall(ctx context.Context, callSID string) error {
	apiURL := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", twilioAPIBase, c.accountSID, callSID)

	data := url.Values{}
	data.Set("Status", "completed")

	return c.postForm(ctx, apiURL, data, nil)
}

func (c *Client) postForm(ctx context.Context, apiURL string, data url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
