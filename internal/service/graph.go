package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/postpilotapp/postpilot/internal/transfer"
)

// Graph API error code for an invalid or expired access token.
const graphCodeInvalidToken = 190

// postGraph sends a JSON payload to a Graph API endpoint and decodes the
// response into out. Non-200 responses are mapped to the error taxonomy:
// token errors become ErrReauthRequired, everything else keeps the platform's
// message verbatim in a PlatformError.
func postGraph(ctx context.Context, client *http.Client, platform, url string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return graphError(platform, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("error parsing response: %w", err)
		}
	}
	return nil
}

func getGraph(ctx context.Context, client *http.Client, platform, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return graphError(platform, resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	return nil
}

func graphError(platform string, statusCode int, body []byte) error {
	var errResp transfer.GraphErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Code == graphCodeInvalidToken {
			return fmt.Errorf("%w: %s", ErrReauthRequired, errResp.Error.Message)
		}
		return &PlatformError{
			Platform:  platform,
			Message:   errResp.Error.Message,
			Code:      errResp.Error.Code,
			Transient: errResp.Error.IsTransient,
		}
	}
	return &PlatformError{
		Platform: platform,
		Message:  fmt.Sprintf("unexpected status code %d: %s", statusCode, string(body)),
	}
}

// composeMessage joins the caption and hashtags the way they appear in the
// published post. Hashtag order is cosmetic but preserved.
func composeMessage(caption string, hashtags []string) string {
	if len(hashtags) == 0 {
		return caption
	}
	tags := make([]string, 0, len(hashtags))
	for _, tag := range hashtags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return caption
	}
	if caption == "" {
		return strings.Join(tags, " ")
	}
	return caption + "\n\n" + strings.Join(tags, " ")
}
