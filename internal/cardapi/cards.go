package cardapi

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

// Card operations are thin pass-throughs: card content semantics (naming
// rules, rendering, tag taxonomy) belong to the service, so payloads stay
// opaque JSON and this layer only shapes paths and queries.

const cardsPath = "/cards"

// cardPath builds the escaped resource path for a card name. Card names
// may contain "+" compound separators, which must survive escaping.
func cardPath(name string) string {
	segments := strings.Split(name, "+")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return cardsPath + "/" + strings.Join(segments, "+")
}

// GetCard fetches one card by name.
func (c *Client) GetCard(ctx context.Context, name string) (json.RawMessage, error) {
	if strings.TrimSpace(name) == "" {
		return nil, configError("card name is required")
	}
	return c.Do(ctx, "GET", cardPath(name), nil, nil)
}

// CreateCard creates a card. cardType may be empty for the service default.
func (c *Client) CreateCard(ctx context.Context, name, cardType, content string) (json.RawMessage, error) {
	if strings.TrimSpace(name) == "" {
		return nil, configError("card name is required")
	}
	payload := map[string]any{
		"name":    name,
		"content": content,
	}
	if cardType != "" {
		payload["type"] = cardType
	}
	return c.Do(ctx, "POST", cardsPath, nil, payload)
}

// UpdateCard applies a partial update to a card.
func (c *Client) UpdateCard(ctx context.Context, name string, fields map[string]any) (json.RawMessage, error) {
	if strings.TrimSpace(name) == "" {
		return nil, configError("card name is required")
	}
	if len(fields) == 0 {
		return nil, configError("update requires at least one field")
	}
	return c.Do(ctx, "PATCH", cardPath(name), nil, fields)
}

// DeleteCard removes a card.
func (c *Client) DeleteCard(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return configError("card name is required")
	}
	_, err := c.Do(ctx, "DELETE", cardPath(name), nil, nil)
	return err
}

// ListCards returns all cards matching the optional filters, traversing
// every page. cardType filters by type when non-empty.
func (c *Client) ListCards(ctx context.Context, cardType string, limit int) ([]json.RawMessage, error) {
	query := url.Values{}
	if cardType != "" {
		query.Set("type", cardType)
	}
	return c.FetchAll(ctx, cardsPath, query, limit)
}

// SearchCards runs a full-text search over cards, traversing every page.
func (c *Client) SearchCards(ctx context.Context, q string, limit int) ([]json.RawMessage, error) {
	if strings.TrimSpace(q) == "" {
		return nil, configError("search query is required")
	}
	query := url.Values{}
	query.Set("q", q)
	return c.FetchAll(ctx, cardsPath+"/search", query, limit)
}
