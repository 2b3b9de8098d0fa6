package services

import (
	"errors"

	"aaronromeo.com/mailtally/pkg/base"
)

// BatchResult is the outcome of one header fetch for one key.
type BatchResult struct {
	Key         string
	FirstSeqNum uint32
	Size        int
	Fetched     int
	Observed    int
	WithoutDate int
	Unparsed    int
	Err         error
}

// KeyResult is the outcome of one tracked key. Err is set when the key was
// skipped before any batch ran.
type KeyResult struct {
	Key       string
	Found     int
	Processed int
	Batches   []BatchResult
	Err       error
}

// Failed reports whether the key or any of its batches failed.
func (k KeyResult) Failed() bool {
	if k.Err != nil {
		return true
	}
	for _, b := range k.Batches {
		if b.Err != nil {
			return true
		}
	}
	return false
}

// RunSummary collects the per-key results of a run in processing order.
type RunSummary struct {
	Mode base.Mode
	Keys []KeyResult
}

func (s *RunSummary) addKey(k KeyResult) {
	s.Keys = append(s.Keys, k)
}

// Observed is the number of messages folded into the aggregator.
func (s *RunSummary) Observed() int {
	n := 0
	for _, k := range s.Keys {
		n += k.Processed
	}
	return n
}

func (s *RunSummary) FailedBatches() int {
	n := 0
	for _, k := range s.Keys {
		for _, b := range k.Batches {
			if b.Err != nil {
				n++
			}
		}
	}
	return n
}

// FailedKeys lists keys that were skipped or lost at least one batch.
func (s *RunSummary) FailedKeys() []string {
	var keys []string
	for _, k := range s.Keys {
		if k.Failed() {
			keys = append(keys, k.Key)
		}
	}
	return keys
}

// Err joins every key and batch failure, or returns nil.
func (s *RunSummary) Err() error {
	var errs []error
	for _, k := range s.Keys {
		if k.Err != nil {
			errs = append(errs, k.Err)
		}
		for _, b := range k.Batches {
			if b.Err != nil {
				errs = append(errs, b.Err)
			}
		}
	}
	return errors.Join(errs...)
}
