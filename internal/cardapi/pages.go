package cardapi

import (
	"context"
	"encoding/json"
	"iter"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
)

const (
	// defaultMaxPages is the traversal safety ceiling. A misbehaving
	// server could return a valid-looking non-null next_offset forever;
	// the ceiling converts that infinite loop into a bounded, logged stop.
	defaultMaxPages = 100

	// defaultMaxPageLimit is the largest per-page limit the card service
	// documents. Values above it are clamped client-side because the
	// service behaves unpredictably beyond its documented maximum.
	defaultMaxPageLimit = 100
)

// Page is one slice of a paginated collection. NextOffset is nil on the
// terminal page.
type Page struct {
	Items      []json.RawMessage `json:"items"`
	Total      int               `json:"total"`
	Offset     int               `json:"offset"`
	NextOffset *int              `json:"next_offset"`
}

// Pages walks a cursor-paginated endpoint and yields pages lazily, in
// strictly increasing offset order. The sequence is single-pass and not
// restartable — ranging over it again re-walks from offset 0. Each page
// request goes through Do and inherits its retry and error semantics; a
// failed page yields (zero Page, err) and ends the sequence.
func (c *Client) Pages(ctx context.Context, path string, query url.Values, limit int) iter.Seq2[Page, error] {
	limit = c.clampLimit(limit)

	return func(yield func(Page, error) bool) {
		offset := 0
		for count := 0; ; count++ {
			if count >= c.maxPages {
				log.Warn().
					Str("path", path).
					Int("pages", count).
					Msg("[cardapi] pagination stopped at safety ceiling; upstream cursor may be misbehaving")
				return
			}

			q := url.Values{}
			for k, vs := range query {
				q[k] = vs
			}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))

			raw, err := c.Do(ctx, "GET", path, q, nil)
			if err != nil {
				yield(Page{}, err)
				return
			}

			var page Page
			if err := json.Unmarshal(raw, &page); err != nil {
				yield(Page{}, parseError("decode page at offset "+strconv.Itoa(offset), err))
				return
			}

			if !yield(page, nil) {
				return
			}
			if page.NextOffset == nil {
				return
			}
			offset = *page.NextOffset
		}
	}
}

// EachPage invokes fn once per page, synchronously and in page order,
// returning after the terminal page or the first error (from the
// executor, the decoder, or fn itself).
func (c *Client) EachPage(ctx context.Context, path string, query url.Values, limit int, fn func(Page) error) error {
	for page, err := range c.Pages(ctx, path, query, limit) {
		if err != nil {
			return err
		}
		if err := fn(page); err != nil {
			return err
		}
	}
	return nil
}

// FetchAll concatenates every page's items, preserving service order.
// It materializes the whole collection — avoid it when the expected size
// is unbounded relative to memory.
func (c *Client) FetchAll(ctx context.Context, path string, query url.Values, limit int) ([]json.RawMessage, error) {
	var items []json.RawMessage
	err := c.EachPage(ctx, path, query, limit, func(p Page) error {
		items = append(items, p.Items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// clampLimit forces the per-page limit into [1, maxPageLimit].
func (c *Client) clampLimit(limit int) int {
	if limit <= 0 {
		return c.maxPageLimit
	}
	if limit > c.maxPageLimit {
		return c.maxPageLimit
	}
	return limit
}
