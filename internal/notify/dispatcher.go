package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"server/config"
	"server/internal/logger"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// Dispatcher delivers a single message to a single recipient. Outcomes are
// independent per recipient; callers decide how to record them.
type Dispatcher interface {
	Send(ctx context.Context, to, body string) (sid string, err error)
}

type TwilioDispatcher struct {
	client     *retryablehttp.Client
	baseURL    string
	accountSID string
	authToken  string
	fromNumber string
	log        logger.Logger
}

func NewTwilioDispatcher(config config.Config) *TwilioDispatcher {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil

	return &TwilioDispatcher{
		client:     client,
		baseURL:    config.TwilioBaseURL,
		accountSID: config.TwilioAccountSID,
		authToken:  config.TwilioAuthToken,
		fromNumber: config.TwilioFromNumber,
		log:        logger.New("TwilioDispatcher"),
	}
}

type messageResponse struct {
	Sid     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (d *TwilioDispatcher) Send(ctx context.Context, to, body string) (string, error) {
	log := d.log.Function("Send")

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", d.fromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", d.baseURL, d.accountSID)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", log.Err("failed to build message request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(d.accountSID, d.authToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", log.Err("failed to send message", err, "to", to)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", log.Err("failed to read message response", err, "to", to)
	}

	var message messageResponse
	if err := json.Unmarshal(payload, &message); err != nil {
		return "", log.Err("failed to decode message response", err, "to", to)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", log.Error("message provider rejected the send",
			"to", to, "status", resp.StatusCode, "providerMessage", message.Message)
	}

	return message.Sid, nil
}
