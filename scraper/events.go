package scraper

import (
	"context"

	"github.com/lukemcguire/imagegrab/result"
)

// DownloadEvent reports one finished item of a download batch.
type DownloadEvent struct {
	Index   int // Position of the URL in the batch, zero-based
	Total   int // Batch size
	Done    int // Items finished so far, this one included
	Outcome result.Outcome
}

// ProgressFunc receives one DownloadEvent per processed URL. Calls are
// serialized; it is never invoked concurrently with itself.
type ProgressFunc func(DownloadEvent)

// ChannelProgress returns a ProgressFunc that forwards events to ch.
// Sends give up once ctx is done so a departed reader cannot stall the batch.
func ChannelProgress(ctx context.Context, ch chan<- DownloadEvent) ProgressFunc {
	return func(evt DownloadEvent) {
		select {
		case ch <- evt:
		case <-ctx.Done():
		}
	}
}
