package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/tap-loopreturns/pkg/window"
)

// Fixed page options sent with the first request of every window.
const (
	PageSize        = 100
	FilterUpdatedAt = "updated_at"
)

// Query parameter names.
const (
	ParamFrom     = "from"
	ParamTo       = "to"
	ParamPaginate = "paginate"
	ParamPageSize = "pageSize"
	ParamFilter   = "filter"
)

// Protocol violations. Each one aborts the run; the window stays uncheckpointed.
var (
	// ErrMalformedContinuation is returned when nextPageUrl cannot be parsed
	// or carries no query parameters.
	ErrMalformedContinuation = errors.New("malformed continuation url")

	// ErrEmptyContinuationPage is returned when a page has a continuation but no records.
	ErrEmptyContinuationPage = errors.New("continuation returned with empty page")

	// ErrContinuationLoop is returned when a continuation repeats the parameters
	// of the request that produced it.
	ErrContinuationLoop = errors.New("continuation repeats previous request")
)

// Page is one decoded API response.
type Page struct {
	// Records are the elements of the record array, in response order.
	Records []map[string]any

	// NextPageURL is the continuation reference. Empty on the last page.
	NextPageURL string
}

// HasNext reports whether the page carries a continuation reference.
func (p *Page) HasNext() bool {
	return p != nil && p.NextPageURL != ""
}

// PageFetcher fetches a single page of an endpoint with the given parameters.
// The API client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, path string, params url.Values) (*Page, error)
}

// Paginator builds request parameters for successive pages of a window.
type Paginator struct {
	pageSize int
	filter   string
}

// New returns a paginator using the fixed Loop Returns page options.
func New() *Paginator {
	return &Paginator{
		pageSize: PageSize,
		filter:   FilterUpdatedAt,
	}
}

// FirstRequest returns the parameters of the first page of w.
func (p *Paginator) FirstRequest(w window.Window) url.Values {
	params := url.Values{}
	params.Set(ParamFrom, w.From.UTC().Format(window.Layout))
	params.Set(ParamTo, w.To.UTC().Format(window.Layout))
	params.Set(ParamPaginate, "true")
	params.Set(ParamPageSize, strconv.Itoa(p.pageSize))
	params.Set(ParamFilter, p.filter)
	return params
}

// NextRequest returns the parameters of the page following page, which was
// fetched with prev. ok is false when page is the last one of the window.
func (p *Paginator) NextRequest(prev url.Values, page *Page) (next url.Values, ok bool, err error) {
	if !page.HasNext() {
		return nil, false, nil
	}

	if len(page.Records) == 0 {
		return nil, false, fmt.Errorf("%w: %s", ErrEmptyContinuationPage, page.NextPageURL)
	}

	next, err = ParseContinuation(page.NextPageURL)
	if err != nil {
		return nil, false, err
	}

	if prev != nil && next.Encode() == prev.Encode() {
		return nil, false, fmt.Errorf("%w: %s", ErrContinuationLoop, page.NextPageURL)
	}

	return next, true, nil
}

// ParseContinuation extracts the parameter set embedded in a continuation
// reference. Absolute and relative URLs are accepted.
func ParseContinuation(ref string) (url.Values, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContinuation, err)
	}

	params, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContinuation, err)
	}

	if len(params) == 0 {
		return nil, fmt.Errorf("%w: no query parameters in %q", ErrMalformedContinuation, ref)
	}

	return params, nil
}
