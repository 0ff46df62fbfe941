// Package stream extracts one Loop Returns stream incrementally.
//
// A Fetcher turns a single date window into a lazy sequence of records by
// following the API's continuation references page by page. A Driver runs the
// replication loop for a stream:
//
//	PLANNING -> FETCHING -> CHECKPOINTING -> PLANNING | DONE
//
// Windows are planned from the tracker's effective start up to a "now"
// captured once at the beginning of the run. Records are handed to a Sink as
// they arrive. Only after a window has been read completely is the cursor
// advanced and persisted, so an aborted run resumes at the last completed
// window and may deliver records of the aborted window again.
//
// Basic usage:
//
//	c, _ := client.New(client.DefaultConfig(apiKey))
//	fetcher := stream.NewFetcher(stream.Returns, c.PageFetcher(stream.Returns.RecordsPath), logger)
//	tracker, _ := state.NewTracker(ctx, store, stream.Returns.Name, startDate, logger)
//	driver := stream.NewDriver(stream.Returns, planner, fetcher, tracker, sink, logger)
//	result, err := driver.Run(ctx)
package stream
