package ingest

import (
	"reflect"
	"testing"
)

func TestPartitionRangesEvenSplit(t *testing.T) {
	got := partitionRanges(6, 3)
	want := [][]int{{0, 1}, {2, 3}, {4, 5}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("partitionRanges(6,3) = %v, want %v", got, want)
	}
}

func TestPartitionRangesCeilDivision(t *testing.T) {
	got := partitionRanges(5, 3)
	want := [][]int{{0, 1}, {2, 3}, {4}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("partitionRanges(5,3) = %v, want %v", got, want)
	}
}

func TestPartitionRangesMoreWorkersThanPartitions(t *testing.T) {
	got := partitionRanges(2, 5)
	total := 0
	for _, r := range got {
		total += len(r)
	}
	if total != 2 {
		t.Errorf("expected all 2 partitions assigned, got ranges %v", got)
	}
}

func TestPartitionRangesZeroInputs(t *testing.T) {
	if got := partitionRanges(0, 3); got != nil {
		t.Errorf("partitionRanges(0,3) = %v, want nil", got)
	}
	if got := partitionRanges(5, 0); got != nil {
		t.Errorf("partitionRanges(5,0) = %v, want nil", got)
	}
}
