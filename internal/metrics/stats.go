package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/thunderindex/internal/poststore"
)

// Stage labels for post-statistics observations: "retrieved" is straight out
// of the store, before scoring/truncation; "scored" is after.
const (
	StageRetrieved = "retrieved"
	StageScored    = "scored"
)

const (
	MetricPostFreshnessSeconds = "thunderindex_posts_found_freshness_seconds"
	MetricPostAgeSpreadSeconds = "thunderindex_posts_found_age_spread_seconds"
	MetricPostReplyRatio       = "thunderindex_posts_found_reply_ratio"
	MetricPostUniqueAuthors    = "thunderindex_posts_found_unique_authors"
)

type postStats struct {
	freshness    *prometheus.HistogramVec
	ageSpread    *prometheus.HistogramVec
	replyRatio   *prometheus.GaugeVec
	uniqueAuthor *prometheus.GaugeVec
}

func newPostStats() postStats {
	return postStats{
		freshness: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricPostFreshnessSeconds,
			Help:    "Age of the most recent post in a result set, by stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		ageSpread: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricPostAgeSpreadSeconds,
			Help:    "Gap between the newest and oldest post in a result set, by stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		replyRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricPostReplyRatio,
			Help: "Fraction of posts in a result set that are replies, by stage.",
		}, []string{"stage"}),
		uniqueAuthor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricPostUniqueAuthors,
			Help: "Number of distinct authors in a result set, by stage.",
		}, []string{"stage"}),
	}
}

func (s postStats) collectors() []prometheus.Collector {
	return []prometheus.Collector{s.freshness, s.ageSpread, s.replyRatio, s.uniqueAuthor}
}

// ObservePostStageStats records freshness, age spread, reply ratio and
// unique-author count for a result set at a named pipeline stage
// ("retrieved" or "scored"). A label it adds alongside the raw counts the
// distilled spec names but drops the two-stage breakdown for.
func (m *Metrics) ObservePostStageStats(stage string, posts []poststore.Post, now int64) {
	if len(posts) == 0 {
		return
	}

	newest, oldest := posts[0].CreatedAt, posts[0].CreatedAt
	replyCount := 0
	authors := make(map[int64]struct{}, len(posts))
	for _, p := range posts {
		if p.CreatedAt > newest {
			newest = p.CreatedAt
		}
		if p.CreatedAt < oldest {
			oldest = p.CreatedAt
		}
		if p.IsReply {
			replyCount++
		}
		authors[p.AuthorID] = struct{}{}
	}

	m.postStats.freshness.WithLabelValues(stage).Observe(float64(now - newest))
	m.postStats.ageSpread.WithLabelValues(stage).Observe(float64(newest - oldest))
	m.postStats.replyRatio.WithLabelValues(stage).Set(float64(replyCount) / float64(len(posts)))
	m.postStats.uniqueAuthor.WithLabelValues(stage).Set(float64(len(authors)))
}
