package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/thunderindex/internal/poststore"
)

func TestRegisterAndIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	m.IncDecodeFailure("legacy")
	m.IncEventApplied("create")
	m.IncPollError()
	m.IncBatchProcessed()
	m.SetPartitionLag("0", 1.5)
	m.AddTrimmedEntries("original", 3)
	m.IncAdmissionRejected()
	m.SetAdmissionInFlight(2)
	m.IncQueryTimeout()
	m.ObserveQueryDuration(0.01)
	m.IncReemitFailure()
	m.IncDirectoryFailure()
	m.SetIndexSize("posts", 10)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(mfs) == 0 {
		t.Fatal("expected gathered metric families")
	}
}

func TestObservePostStageStatsSkipsEmptySet(t *testing.T) {
	m := New()
	m.ObservePostStageStats(StageRetrieved, nil, 1000)
}

func TestObservePostStageStatsRecordsSpread(t *testing.T) {
	m := New()
	posts := []poststore.Post{
		{PostID: 1, AuthorID: 10, CreatedAt: 900, IsReply: false},
		{PostID: 2, AuthorID: 11, CreatedAt: 950, IsReply: true},
	}
	m.ObservePostStageStats(StageScored, posts, 1000)
}

func TestDoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	m2 := New()
	if err := m2.Register(reg); err == nil {
		t.Fatal("expected error registering duplicate collectors")
	}
}
