package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketwatch/internal/config"
	"marketwatch/internal/fetcher"
	"marketwatch/internal/logging"
	"marketwatch/internal/storage"
)

func d(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func pointKey(metric storage.Metric, date time.Time) string {
	return string(metric) + "|" + date.Format(time.DateOnly)
}

// fakeStore implements storage.TxRunner and storage.SeriesWriter with
// snapshot-rollback semantics so transactional behavior is observable.
type fakeStore struct {
	upserts   []storage.SeriesPoint
	existing  map[string]bool
	upsertErr error
	txCount   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{existing: make(map[string]bool)}
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(storage.SeriesWriter) error) error {
	f.txCount++
	snapshot := len(f.upserts)
	if err := fn(f); err != nil {
		f.upserts = f.upserts[:snapshot]
		return err
	}
	return nil
}

func (f *fakeStore) UpsertPoint(ctx context.Context, point storage.SeriesPoint) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, point)
	f.existing[pointKey(point.Metric, point.Date)] = true
	return nil
}

func (f *fakeStore) Exists(ctx context.Context, metric storage.Metric, date time.Time) (bool, error) {
	return f.existing[pointKey(metric, date)], nil
}

type fakeIndexFetcher struct {
	latest      fetcher.Point
	hasLatest   bool
	rangePoints []fetcher.Point
	latestCalls int
	rangeCalls  int
}

func (f *fakeIndexFetcher) FetchLatest(ctx context.Context) (fetcher.Point, bool) {
	f.latestCalls++
	return f.latest, f.hasLatest
}

func (f *fakeIndexFetcher) FetchRange(ctx context.Context, from, to time.Time) []fetcher.Point {
	f.rangeCalls++
	return f.rangePoints
}

type fakeRateFetcher struct {
	points map[string]fetcher.Point
	calls  []time.Time
}

func (f *fakeRateFetcher) FetchDate(ctx context.Context, date time.Time) (fetcher.Point, bool) {
	f.calls = append(f.calls, date)
	p, ok := f.points[date.Format(time.DateOnly)]
	return p, ok
}

func indexPoint(date time.Time, value string) fetcher.Point {
	return fetcher.Point{Date: date, Value: decimal.RequireFromString(value), Source: "data.go.kr"}
}

func ratePoint(date time.Time, value string) fetcher.Point {
	return fetcher.Point{Date: date, Value: decimal.RequireFromString(value), Source: "exim"}
}

func newTestSyncer(store *fakeStore, index *fakeIndexFetcher, rate *fakeRateFetcher, indexKey, rateKey string, now time.Time) *Syncer {
	s := New(store, index, rate,
		config.APIConfig{IndexKey: indexKey, RateKey: rateKey},
		config.SyncConfig{SeedDelay: 0},
		logging.Nop(),
	)
	s.now = func() time.Time { return now }
	return s
}

func TestSyncLatestBothSucceed(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndexFetcher{latest: indexPoint(d(2025, 6, 4), "2650.10"), hasLatest: true}
	rate := &fakeRateFetcher{points: map[string]fetcher.Point{
		"2025-06-05": ratePoint(d(2025, 6, 5), "1372.50"),
	}}

	s := newTestSyncer(store, index, rate, "idx-key", "rate-key", d(2025, 6, 5))

	result, err := s.SyncLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Outcome("2025-06-04"), result.Index)
	assert.Equal(t, Outcome("2025-06-05"), result.Rate)
	require.Len(t, store.upserts, 2)
	assert.Equal(t, storage.MetricIndex, store.upserts[0].Metric)
	assert.Equal(t, storage.MetricRate, store.upserts[1].Metric)
	assert.Equal(t, 1, store.txCount)
}

func TestSyncLatestMissingRateKey(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndexFetcher{latest: indexPoint(d(2025, 6, 4), "2650.10"), hasLatest: true}
	rate := &fakeRateFetcher{}

	s := newTestSyncer(store, index, rate, "idx-key", "", d(2025, 6, 5))

	result, err := s.SyncLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Outcome("2025-06-04"), result.Index)
	assert.Equal(t, OutcomeMissingAPIKey, result.Rate)
	assert.Len(t, store.upserts, 1)
	assert.Empty(t, rate.calls, "no network call without a credential")
}

func TestSyncLatestMissingBothKeys(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndexFetcher{}
	rate := &fakeRateFetcher{}

	s := newTestSyncer(store, index, rate, "", "", d(2025, 6, 5))

	result, err := s.SyncLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeMissingAPIKey, result.Index)
	assert.Equal(t, OutcomeMissingAPIKey, result.Rate)
	assert.Empty(t, store.upserts)
	assert.Zero(t, index.latestCalls)
}

func TestSyncLatestNoData(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndexFetcher{hasLatest: false}
	rate := &fakeRateFetcher{points: map[string]fetcher.Point{}}

	s := newTestSyncer(store, index, rate, "idx-key", "rate-key", d(2025, 6, 5))

	result, err := s.SyncLatest(context.Background())
	require.NoError(t, err, "empty upstream data is a reported outcome, not an error")
	assert.Equal(t, OutcomeNoData, result.Index)
	assert.Equal(t, OutcomeNoData, result.Rate)
	assert.Empty(t, store.upserts)
}

func TestSyncLatestWeekendResolvesFriday(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndexFetcher{latest: indexPoint(d(2025, 6, 6), "2650.10"), hasLatest: true}
	rate := &fakeRateFetcher{points: map[string]fetcher.Point{
		"2025-06-06": ratePoint(d(2025, 6, 6), "1372.50"),
	}}

	// 2025-06-07 is a Saturday.
	s := newTestSyncer(store, index, rate, "idx-key", "rate-key", d(2025, 6, 7))

	result, err := s.SyncLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Outcome("2025-06-06"), result.Rate)
	require.Len(t, rate.calls, 1)
	assert.Equal(t, d(2025, 6, 6), rate.calls[0])
}

func TestSyncLatestSecondRunAlreadyPresent(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndexFetcher{latest: indexPoint(d(2025, 6, 4), "2650.10"), hasLatest: true}
	rate := &fakeRateFetcher{points: map[string]fetcher.Point{
		"2025-06-05": ratePoint(d(2025, 6, 5), "1372.50"),
	}}

	s := newTestSyncer(store, index, rate, "idx-key", "rate-key", d(2025, 6, 5))

	_, err := s.SyncLatest(context.Background())
	require.NoError(t, err)
	require.Len(t, rate.calls, 1)

	result, err := s.SyncLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyPresent, result.Rate)
	assert.Len(t, rate.calls, 1, "presence check avoids the second remote call")

	rateWrites := 0
	for _, p := range store.upserts {
		if p.Metric == storage.MetricRate {
			rateWrites++
		}
	}
	assert.Equal(t, 1, rateWrites, "second run performs zero rate writes")
}

func TestSyncLatestUpsertErrorRollsBack(t *testing.T) {
	store := newFakeStore()
	store.upsertErr = errors.New("connection lost")
	index := &fakeIndexFetcher{latest: indexPoint(d(2025, 6, 4), "2650.10"), hasLatest: true}
	rate := &fakeRateFetcher{}

	s := newTestSyncer(store, index, rate, "idx-key", "rate-key", d(2025, 6, 5))

	_, err := s.SyncLatest(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.upserts, "failed transaction leaves no rows")
}

func TestSeedWritesBothMetrics(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndexFetcher{rangePoints: []fetcher.Point{
		indexPoint(d(2025, 6, 2), "2600"),
		indexPoint(d(2025, 6, 3), "2610"),
		indexPoint(d(2025, 6, 4), "2620"),
	}}
	rate := &fakeRateFetcher{points: map[string]fetcher.Point{
		"2025-06-02": ratePoint(d(2025, 6, 2), "1370"),
		"2025-06-03": ratePoint(d(2025, 6, 3), "1371"),
		"2025-06-04": ratePoint(d(2025, 6, 4), "1372"),
		"2025-06-05": ratePoint(d(2025, 6, 5), "1373"),
		"2025-06-06": ratePoint(d(2025, 6, 6), "1374"),
	}}

	s := newTestSyncer(store, index, rate, "idx-key", "rate-key", d(2025, 6, 10))

	// 2025-06-02 Monday through 2025-06-08 Sunday.
	result, err := s.Seed(context.Background(), d(2025, 6, 2), d(2025, 6, 8))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Index)
	assert.Equal(t, 5, result.Rate)
	assert.Equal(t, 1, index.rangeCalls, "index seeds with a single ranged call")

	require.Len(t, rate.calls, 5, "weekends are skipped without a remote call")
	assert.Equal(t, d(2025, 6, 6), rate.calls[0], "rate seed iterates newest first")
	assert.Equal(t, d(2025, 6, 2), rate.calls[4])
	assert.Equal(t, 1, store.txCount, "all seed writes share one transaction")
}

func TestSeedMissingIndexKeyDoesNotBlockRate(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndexFetcher{rangePoints: []fetcher.Point{indexPoint(d(2025, 6, 2), "2600")}}
	rate := &fakeRateFetcher{points: map[string]fetcher.Point{
		"2025-06-02": ratePoint(d(2025, 6, 2), "1370"),
	}}

	s := newTestSyncer(store, index, rate, "", "rate-key", d(2025, 6, 10))

	result, err := s.Seed(context.Background(), d(2025, 6, 2), d(2025, 6, 2))
	require.NoError(t, err)
	assert.Zero(t, result.Index)
	assert.Equal(t, 1, result.Rate)
	assert.Zero(t, index.rangeCalls)
}

func TestSeedToleratesPerDateGaps(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndexFetcher{}
	// Only one of three weekdays has a rate upstream.
	rate := &fakeRateFetcher{points: map[string]fetcher.Point{
		"2025-06-03": ratePoint(d(2025, 6, 3), "1371"),
	}}

	s := newTestSyncer(store, index, rate, "idx-key", "rate-key", d(2025, 6, 10))

	result, err := s.Seed(context.Background(), d(2025, 6, 2), d(2025, 6, 4))
	require.NoError(t, err, "individual date gaps do not fail the seed")
	assert.Equal(t, 1, result.Rate)
	assert.Len(t, rate.calls, 3)
}

func TestSeedRejectsEmptyRange(t *testing.T) {
	store := newFakeStore()
	s := newTestSyncer(store, &fakeIndexFetcher{}, &fakeRateFetcher{}, "idx-key", "rate-key", d(2025, 6, 10))

	_, err := s.Seed(context.Background(), d(2025, 6, 10), d(2025, 6, 1))
	require.Error(t, err)
	assert.Zero(t, store.txCount)
}
