package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/tap-loopreturns/pkg/pagination"
)

// NextPageField is the top-level response field holding the continuation URL.
const NextPageField = "nextPageUrl"

// DecodePage decodes a response body into a page. Records are all elements of
// the array found at recordsPath, a dot-separated path of object fields
// ("returns", "data.items"). A missing or null array yields no records.
// Numbers are kept as json.Number so identifiers survive re-encoding.
func DecodePage(body []byte, recordsPath string) (*pagination.Page, error) {
	var doc map[string]json.RawMessage
	if err := unmarshalNumbers(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	page := &pagination.Page{}

	if raw, ok := doc[NextPageField]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &page.NextPageURL); err != nil {
			return nil, fmt.Errorf("%w: %s is not a string: %v", ErrDecode, NextPageField, err)
		}
	}

	raw, err := lookup(doc, recordsPath)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return page, nil
	}

	if err := unmarshalNumbers(raw, &page.Records); err != nil {
		return nil, fmt.Errorf("%w: %s is not an array of objects: %v", ErrDecode, recordsPath, err)
	}

	return page, nil
}

// lookup walks a dotted path of object fields. Returns nil if any segment is
// missing or null.
func lookup(doc map[string]json.RawMessage, path string) (json.RawMessage, error) {
	segments := strings.Split(path, ".")
	current := doc

	for i, segment := range segments {
		raw, ok := current[segment]
		if !ok || isNull(raw) {
			return nil, nil
		}
		if i == len(segments)-1 {
			return raw, nil
		}
		current = nil
		if err := json.Unmarshal(raw, &current); err != nil {
			return nil, fmt.Errorf("%w: %s is not an object: %v", ErrDecode, strings.Join(segments[:i+1], "."), err)
		}
	}

	return nil, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// pageFetcher binds the client to a records path.
type pageFetcher struct {
	client      *Client
	recordsPath string
}

// PageFetcher returns a pagination.PageFetcher that extracts records at
// recordsPath from every response.
func (c *Client) PageFetcher(recordsPath string) pagination.PageFetcher {
	return &pageFetcher{client: c, recordsPath: recordsPath}
}

// FetchPage implements pagination.PageFetcher. Bodies that fail to decode
// are fetched again under the client's retry policy.
func (f *pageFetcher) FetchPage(ctx context.Context, path string, params url.Values) (*pagination.Page, error) {
	var page *pagination.Page
	err := f.client.getDecoded(ctx, path, params, func(body []byte) error {
		var err error
		page, err = DecodePage(body, f.recordsPath)
		return err
	})
	if err != nil {
		f.client.logger.Error().Err(err).Str("endpoint", path).Msg("Failed to fetch page")
		return nil, err
	}

	return page, nil
}
