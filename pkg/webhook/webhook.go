package webhook

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"github.com/txsociety/tx-retracer/pkg/core"
	"golang.org/x/crypto/ed25519"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	SignatureHeader = "X-Signature"
	attempts        = 3
)

type Client struct {
	client *http.Client
	url    string
	key    ed25519.PrivateKey
}

// NewClient returns a webhook sender. The body of every request is signed with key when it is set.
func NewClient(webhookURL string, key ed25519.PrivateKey) (*Client, error) {
	_, err := url.ParseRequestURI(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %s", webhookURL)
	}
	return &Client{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    webhookURL,
		key:    key,
	}, nil
}

func (s *Client) Send(ctx context.Context, job core.JobPrintable) error {
	jsonData, err := json.Marshal(job)
	if err != nil {
		return err
	}
	var signature string
	if s.key != nil {
		signature = hex.EncodeToString(ed25519.Sign(s.key, jsonData))
	}
	for i := 1; i <= attempts; i++ {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(jsonData))
		if err != nil {
			return err
		}
		request.Header.Set("Content-Type", "application/json; charset=UTF-8")
		if signature != "" {
			request.Header.Set(SignatureHeader, signature)
		}
		err = doRequest(s.client, request)
		if err == nil {
			return nil
		}
		slog.Info("webhook sending", "error", err.Error(), "attempt", i)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second * time.Duration(i)):
		}
	}
	return fmt.Errorf("attempts to send a webhook ended")
}

func doRequest(client *http.Client, request *http.Request) error {
	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("webhook sending error: %v", err)
	}
	defer func() {
		err := response.Body.Close()
		if err != nil {
			slog.Error("response body close", "error", err.Error())
		}
	}()
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	} else {
		return fmt.Errorf("webhook response status: %v", response.Status)
	}
}
