package analytics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/pulpfiction/pulpfiction/pkg/authors"
	"github.com/pulpfiction/pulpfiction/pkg/books"
	"github.com/pulpfiction/pulpfiction/pkg/models"
	"github.com/pulpfiction/pulpfiction/pkg/scope"
	"github.com/uptrace/bun"
)

const (
	window      = 30 * 24 * time.Hour
	bucketCount = 6
)

type Bucket struct {
	Label   string `json:"label"`
	Books   int    `json:"books"`
	Authors int    `json:"authors"`
}

type Summary struct {
	TotalBooks       int       `json:"totalBooks"`
	TotalAuthors     int       `json:"totalAuthors"`
	NewBooksLast30   int       `json:"newBooksLast30"`
	NewAuthorsLast30 int       `json:"newAuthorsLast30"`
	BooksGrowthPct   float64   `json:"booksGrowthPct"`
	AuthorsGrowthPct float64   `json:"authorsGrowthPct"`
	Buckets          []*Bucket `json:"buckets"`
}

type Service struct {
	books   *scope.Repository[models.Book]
	authors *scope.Repository[models.Author]
	now     func() time.Time
}

func NewService(db *bun.DB) *Service {
	return &Service{
		books:   books.NewRepository(db),
		authors: authors.NewRepository(db),
		now:     time.Now,
	}
}

// Compute builds the summary for the acting user in ctx. Without a user every
// count is zero.
func (svc *Service) Compute(ctx context.Context) (*Summary, error) {
	now := svc.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	since := ShiftMonth(monthStart, -(bucketCount - 1))
	if w := now.Add(-2 * window); w.Before(since) {
		since = w
	}

	totalBooks, err := svc.books.Scoped(ctx).Count(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	totalAuthors, err := svc.authors.Scoped(ctx).Count(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	bookTimes, err := svc.books.Scoped(ctx).CreatedSince(ctx, since)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	authorTimes, err := svc.authors.Scoped(ctx).CreatedSince(ctx, since)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	summary := summarize(now, bookTimes, authorTimes)
	summary.TotalBooks = totalBooks
	summary.TotalAuthors = totalAuthors
	return summary, nil
}

// summarize fills in the windowed counts and monthly buckets from creation
// times. Totals are left to the caller.
func summarize(now time.Time, bookTimes, authorTimes []time.Time) *Summary {
	booksCur, booksPrev := windowCounts(now, bookTimes)
	authorsCur, authorsPrev := windowCounts(now, authorTimes)

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	buckets := make([]*Bucket, bucketCount)
	index := make(map[time.Time]*Bucket, bucketCount)
	for i := range buckets {
		month := ShiftMonth(monthStart, i-(bucketCount-1))
		buckets[i] = &Bucket{Label: month.Format("Jan")}
		index[month] = buckets[i]
	}
	for _, t := range bookTimes {
		if b, ok := index[truncateMonth(t, now.Location())]; ok {
			b.Books++
		}
	}
	for _, t := range authorTimes {
		if b, ok := index[truncateMonth(t, now.Location())]; ok {
			b.Authors++
		}
	}

	return &Summary{
		NewBooksLast30:   booksCur,
		NewAuthorsLast30: authorsCur,
		BooksGrowthPct:   GrowthPct(booksCur, booksPrev),
		AuthorsGrowthPct: GrowthPct(authorsCur, authorsPrev),
		Buckets:          buckets,
	}
}

// windowCounts counts times in [now-30d, now) and [now-60d, now-30d).
func windowCounts(now time.Time, times []time.Time) (current, previous int) {
	cur := now.Add(-window)
	prev := now.Add(-2 * window)
	for _, t := range times {
		switch {
		case !t.Before(cur) && t.Before(now):
			current++
		case !t.Before(prev) && t.Before(cur):
			previous++
		}
	}
	return current, previous
}

// GrowthPct is the percent change from previous to current. With no previous
// records it is 0 when current is also 0 and 100 otherwise.
func GrowthPct(current, previous int) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return 100
	}
	return float64(current-previous) / float64(previous) * 100
}

// ShiftMonth returns the first day of the month offset months away from t, in
// t's location.
func ShiftMonth(t time.Time, offset int) time.Time {
	return time.Date(t.Year(), t.Month()+time.Month(offset), 1, 0, 0, 0, 0, t.Location())
}

func truncateMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}
