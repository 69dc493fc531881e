// Package instagram is a thin adapter over the Instagram Graph API messaging endpoints.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ig-automation/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// MaxTextLength is the provider limit applied to every outbound text.
const MaxTextLength = 1000

// APIError is a non-2xx provider response. Message is the provider's
// error.message when present, otherwise the raw body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a client that issues at most rps requests per second.
// rps <= 0 disables throttling.
func NewClient(baseURL string, rps float64) *Client {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// Truncate cuts text to MaxTextLength runes.
func Truncate(text string) string {
	r := []rune(text)
	if len(r) <= MaxTextLength {
		return text
	}
	return string(r[:MaxTextLength])
}

type sendRecipient struct {
	ID string `json:"id"`
}

type sendMessage struct {
	Text string `json:"text"`
}

type sendRequest struct {
	Recipient sendRecipient `json:"recipient"`
	Message   sendMessage   `json:"message"`
}

type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

type replyResponse struct {
	ID string `json:"id"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendDirectMessage sends a DM from the account to the recipient and returns
// the provider message id.
func (c *Client) SendDirectMessage(ctx context.Context, acct *models.InstagramAccount, recipientID, text string) (string, error) {
	payload, err := json.Marshal(sendRequest{
		Recipient: sendRecipient{ID: recipientID},
		Message:   sendMessage{Text: Truncate(text)},
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.BaseURL, acct.ExternalID)
	headers := map[string]string{
		"Authorization": "Bearer " + acct.AccessToken,
		"Content-Type":  "application/json",
	}
	body, err := c.doRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload), headers)
	if err != nil {
		return "", err
	}

	var resp sendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("invalid send response: %w", err)
	}
	return resp.MessageID, nil
}

// ReplyToComment posts a public reply under a comment and returns the new comment id.
func (c *Client) ReplyToComment(ctx context.Context, acct *models.InstagramAccount, commentID, text string) (string, error) {
	form := url.Values{}
	form.Set("message", Truncate(text))
	form.Set("access_token", acct.AccessToken)

	endpoint := fmt.Sprintf("%s/%s/replies", c.BaseURL, commentID)
	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	body, err := c.doRequest(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()), headers)
	if err != nil {
		return "", err
	}

	var resp replyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("invalid reply response: %w", err)
	}
	return resp.ID, nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body io.Reader, headers map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var env errorEnvelope
		if json.Unmarshal(respBody, &env) == nil && env.Error.Message != "" {
			apiErr.Message = env.Error.Message
		}
		log.Debug().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("graph api error")
		return nil, apiErr
	}
	return respBody, nil
}
