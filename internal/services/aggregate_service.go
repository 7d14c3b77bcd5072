package services

import (
	"sync"

	"github.com/quentel/formulaire/internal/models"
)

// AggregateStore is the optional persistence collaborator for aggregate
// buckets. A nil store keeps buckets in memory only.
type AggregateStore interface {
	LoadAggregateBucket(questionID string) (*models.AggregateStats, error)
	SaveAggregateBucket(questionID string, stats *models.AggregateStats) error
}

const defaultSampleLimit = 20

// Aggregator maintains running per-question statistics, updated
// incrementally per accepted answer and queryable without recomputation.
// Updates to the same question serialize on a per-bucket mutex; different
// questions never contend beyond the brief bucket lookup.
type Aggregator struct {
	mu          sync.Mutex
	buckets     map[string]*statsBucket
	store       AggregateStore
	sampleLimit int
}

type statsBucket struct {
	mu    sync.Mutex
	stats models.AggregateStats
}

func NewAggregator(store AggregateStore) *Aggregator {
	return &Aggregator{
		buckets:     map[string]*statsBucket{},
		store:       store,
		sampleLimit: defaultSampleLimit,
	}
}

// InitQuestion creates the zero-state bucket for a freshly created
// question. Choice buckets are seeded with every configured option at zero.
func (a *Aggregator) InitQuestion(q *models.Question) error {
	b, err := a.bucket(q)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return a.persist(q.ID, &b.stats)
}

// Record folds one normalized answer value into the question's bucket.
// Empty values (unanswered optional questions) are skipped.
func (a *Aggregator) Record(q *models.Question, v models.Value) error {
	if v.IsEmpty() {
		return nil
	}
	b, err := a.bucket(q)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	a.apply(&b.stats, v)
	return a.persist(q.ID, &b.stats)
}

// Snapshot returns a point-in-time deep copy of the question's stats.
// Readers never observe a bucket mid-update.
func (a *Aggregator) Snapshot(q *models.Question) (models.AggregateStats, error) {
	b, err := a.bucket(q)
	if err != nil {
		return models.AggregateStats{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyStats(b.stats), nil
}

// bucket returns the question's bucket, lazily initializing it at most
// once: from the store when a persisted bucket exists, from zero state
// otherwise.
func (a *Aggregator) bucket(q *models.Question) (*statsBucket, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.buckets[q.ID]; ok {
		return b, nil
	}
	b := &statsBucket{}
	if a.store != nil {
		stored, err := a.store.LoadAggregateBucket(q.ID)
		if err != nil {
			return nil, NewAnswerError(ErrorAggregationFailure, q.ID, "load aggregate bucket: "+err.Error())
		}
		if stored != nil {
			b.stats = copyStats(*stored)
		}
	}
	if b.stats.QuestionID == "" {
		b.stats = zeroStats(q)
	}
	a.buckets[q.ID] = b
	return b, nil
}

func (a *Aggregator) persist(questionID string, stats *models.AggregateStats) error {
	if a.store == nil {
		return nil
	}
	snapshot := copyStats(*stats)
	if err := a.store.SaveAggregateBucket(questionID, &snapshot); err != nil {
		return NewAnswerError(ErrorAggregationFailure, questionID, "save aggregate bucket: "+err.Error())
	}
	return nil
}

func (a *Aggregator) apply(stats *models.AggregateStats, v models.Value) {
	switch v.Kind {
	case models.ValueOption:
		if stats.OptionCounts == nil {
			stats.OptionCounts = map[string]int{}
		}
		stats.OptionCounts[v.Text]++
		stats.Count++
	case models.ValueOptionSet:
		if stats.OptionCounts == nil {
			stats.OptionCounts = map[string]int{}
		}
		for _, opt := range v.Options {
			stats.OptionCounts[opt]++
		}
		stats.Count++
	case models.ValueNumber:
		if stats.Count == 0 || v.Number < stats.Min {
			stats.Min = v.Number
		}
		if stats.Count == 0 || v.Number > stats.Max {
			stats.Max = v.Number
		}
		stats.Sum += v.Number
		stats.Count++
	case models.ValueDate:
		if stats.MinDate.IsZero() || v.Date.Before(stats.MinDate) {
			stats.MinDate = v.Date
		}
		if stats.MaxDate.IsZero() || v.Date.After(stats.MaxDate) {
			stats.MaxDate = v.Date
		}
		stats.Count++
	case models.ValueText:
		stats.Samples = append(stats.Samples, v.Text)
		if len(stats.Samples) > a.sampleLimit {
			stats.Samples = stats.Samples[len(stats.Samples)-a.sampleLimit:]
		}
		stats.Count++
	}
}

func zeroStats(q *models.Question) models.AggregateStats {
	stats := models.AggregateStats{QuestionID: q.ID, Kind: q.Kind}
	switch q.Kind {
	case models.KindSingleChoice, models.KindMultipleChoice, models.KindDropdown:
		stats.OptionCounts = make(map[string]int, len(q.Config.Options))
		for _, opt := range q.Config.Options {
			stats.OptionCounts[opt] = 0
		}
	}
	return stats
}

func copyStats(stats models.AggregateStats) models.AggregateStats {
	out := stats
	if stats.OptionCounts != nil {
		out.OptionCounts = make(map[string]int, len(stats.OptionCounts))
		for k, v := range stats.OptionCounts {
			out.OptionCounts[k] = v
		}
	}
	if stats.Samples != nil {
		out.Samples = append([]string(nil), stats.Samples...)
	}
	return out
}
