// Package pagination implements the continuation-URL pagination used by the
// Loop Returns warehouse endpoints.
//
// The first request of a window carries the window bounds and the fixed page
// options. Every response may include a nextPageUrl; when it does, the query
// string of that URL becomes the complete parameter set of the next request.
// Window bounds are never re-appended, they travel inside the continuation.
// A response without nextPageUrl ends the window.
//
// Example usage:
//
//	p := pagination.New()
//	params := p.FirstRequest(w)
//	for {
//		page, err := fetcher.FetchPage(ctx, "/warehouse/return/list", params)
//		if err != nil {
//			return err
//		}
//		// consume page.Records
//		next, ok, err := p.NextRequest(params, page)
//		if err != nil || !ok {
//			return err
//		}
//		params = next
//	}
//
// Pages are fetched strictly one after another. The API only hands out the
// next continuation with the previous page, so there is nothing to parallelise.
package pagination
