// Package report turns aggregated statistics into the sorted summary that is
// printed, exported and served.
package report

import (
	"sort"
	"time"

	"aaronromeo.com/mailtally/pkg/base"
	"aaronromeo.com/mailtally/pkg/models/stats"
	"github.com/pkg/errors"
)

const DateLayout = "2006-01-02"

// Person is one address inside a domain entry. Sent is the number of times the
// address appeared in a To header and Received the number of From appearances.
type Person struct {
	Address  string `json:"address"`
	Sent     int    `json:"sent"`
	Received int    `json:"received"`
	Total    int    `json:"total"`
}

type Entry struct {
	Key       string     `json:"key"`
	Sent      int        `json:"sent"`
	Received  int        `json:"received"`
	Total     int        `json:"total"`
	FirstSeen *time.Time `json:"first_seen,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	People    []Person   `json:"people,omitempty"`
}

// FirstEmail is FirstSeen as YYYY-MM-DD, or empty.
func (e Entry) FirstEmail() string {
	return FormatDate(e.FirstSeen)
}

// LastEmail is LastSeen as YYYY-MM-DD, or empty.
func (e Entry) LastEmail() string {
	return FormatDate(e.LastSeen)
}

// Report holds entries ordered by total volume, highest first.
type Report struct {
	Mode    base.Mode `json:"mode"`
	Entries []Entry   `json:"entries"`
}

// Len is the number of tracked keys in the report.
func (r Report) Len() int {
	return len(r.Entries)
}

// Build dispatches on the concrete aggregator.
func Build(agg stats.Aggregator) (Report, error) {
	switch a := agg.(type) {
	case *stats.AddressAggregator:
		return FromAddresses(a), nil
	case *stats.DomainAggregator:
		return FromDomains(a), nil
	default:
		return Report{}, errors.Errorf("unsupported aggregator %T", agg)
	}
}

// FromAddresses builds an address-mode report. Keys with equal totals keep the
// order in which they were first observed.
func FromAddresses(agg *stats.AddressAggregator) Report {
	entries := make([]Entry, 0, agg.Len())
	for _, key := range agg.Keys() {
		s, ok := agg.Lookup(key)
		if !ok {
			continue
		}
		entries = append(entries, entryFromStats(key, *s))
	}
	sortEntries(entries)
	return Report{Mode: base.ModeAddress, Entries: entries}
}

// FromDomains builds a domain-mode report. People inside each domain are
// sorted the same way as the domains themselves.
func FromDomains(agg *stats.DomainAggregator) Report {
	entries := make([]Entry, 0, agg.Len())
	for _, key := range agg.Keys() {
		s, ok := agg.Lookup(key)
		if !ok {
			continue
		}
		entry := entryFromStats(key, s.Stats)
		for _, addr := range s.People() {
			p, _ := s.LookupPerson(addr)
			entry.People = append(entry.People, Person{
				Address:  addr,
				Sent:     p.To,
				Received: p.From,
				Total:    p.Total,
			})
		}
		sort.SliceStable(entry.People, func(i, j int) bool {
			return entry.People[i].Total > entry.People[j].Total
		})
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return Report{Mode: base.ModeDomain, Entries: entries}
}

func entryFromStats(key string, s stats.Stats) Entry {
	return Entry{
		Key:       key,
		Sent:      s.Sent,
		Received:  s.Received,
		Total:     s.Total,
		FirstSeen: copyTime(s.FirstSeen),
		LastSeen:  copyTime(s.LastSeen),
	}
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Total > entries[j].Total
	})
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// FormatDate renders t as YYYY-MM-DD in its own zone. A nil time is empty.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}
