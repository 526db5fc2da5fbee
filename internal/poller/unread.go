package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aidly/aidly-api/internal/dto"
	"github.com/aidly/aidly-api/internal/middleware"
	"github.com/aidly/aidly-api/internal/models"
)

type unreadEnvelope struct {
	Success bool                    `json:"success"`
	Data    dto.UnreadCountResponse `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// UnreadCount returns a FetchFunc reading the recipient's unread notification count
// from the API at baseURL (including the API prefix).
func UnreadCount(client *http.Client, baseURL string, recipient models.Recipient) FetchFunc {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/notifications/unread-count?" + url.Values{
		"notifiable_id":   {recipient.ID},
		"notifiable_type": {string(recipient.Type)},
	}.Encode()

	return func(ctx context.Context) (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return 0, err
		}
		req.Header.Set(middleware.HeaderUserID, recipient.ID)
		req.Header.Set(middleware.HeaderUserType, string(recipient.Type))
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		var body unreadEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return 0, fmt.Errorf("decode unread count: %w", err)
		}
		if resp.StatusCode != http.StatusOK || !body.Success {
			if body.Error != nil {
				return 0, fmt.Errorf("unread count: %s: %s", body.Error.Code, body.Error.Message)
			}
			return 0, fmt.Errorf("unread count: unexpected status %d", resp.StatusCode)
		}
		return body.Data.Count, nil
	}
}
