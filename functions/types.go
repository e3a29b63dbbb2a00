package functions

import (
	"context"
	"net/url"

	"github.com/pollenjp/ipa-shiken-fetcher/models"
)

// PageFetcher downloads a page. *Fetcher is the production implementation.
type PageFetcher interface {
	FetchPage(ctx context.Context, target *url.URL) (models.Page, error)
}

// RecordExtractor pulls the item record out of a page. found is false when
// the page carries no item.
type RecordExtractor interface {
	ExtractPage(page models.Page) (record models.ItemRecord, found bool, err error)
}

// RecordSender delivers a record, e.g. to a Slack webhook.
type RecordSender interface {
	Send(ctx context.Context, record models.ItemRecord) error
}

// DeliveryJournal persists the outcome of each step of a cycle.
type DeliveryJournal interface {
	Record(ctx context.Context, delivery models.Delivery) error
}

// DeliveryHistory is implemented by journals that can answer questions
// about earlier cycles. The runner uses it when its journal provides it.
type DeliveryHistory interface {
	LastSent(ctx context.Context, sourceID string) (*models.Delivery, error)
	CountByStatus(ctx context.Context, runID string) (map[models.DeliveryStatus]int, error)
}

// CycleRunner is what the scheduler drives.
type CycleRunner interface {
	RunCycle(ctx context.Context) models.CycleSummary
}
