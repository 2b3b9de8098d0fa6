package stats

import (
	"time"
)

// Message is one parsed header record as seen by the aggregator.
// Date is nil when the Date header was missing or unparsable.
type Message struct {
	Date *time.Time
	From []string
	To   []string
}

// Stats holds the running totals for a tracked key.
// Total always equals Sent + Received.
type Stats struct {
	Sent      int
	Received  int
	Total     int
	FirstSeen *time.Time
	LastSeen  *time.Time
}

func (s *Stats) addSent() {
	s.Sent++
	s.Total++
}

func (s *Stats) addReceived() {
	s.Received++
	s.Total++
}

// observeDate widens the [FirstSeen, LastSeen] window. Equal instants keep the
// value seen first.
func (s *Stats) observeDate(date *time.Time) {
	if date == nil {
		return
	}
	d := *date
	if s.FirstSeen == nil || d.Before(*s.FirstSeen) {
		first := d
		s.FirstSeen = &first
	}
	if s.LastSeen == nil || d.After(*s.LastSeen) {
		last := d
		s.LastSeen = &last
	}
}

// PersonStats counts one address inside a tracked domain. To counts appearances
// in a To header, From counts appearances in a From header.
type PersonStats struct {
	To    int
	From  int
	Total int
}

// DomainStats is the domain-mode aggregate: domain totals plus per-person counts.
type DomainStats struct {
	Stats

	people map[string]*PersonStats
	order  []string
}

func newDomainStats() *DomainStats {
	return &DomainStats{people: map[string]*PersonStats{}}
}

// Person returns the stats for addr, creating them on first access.
func (d *DomainStats) Person(addr string) *PersonStats {
	if p, ok := d.people[addr]; ok {
		return p
	}
	p := &PersonStats{}
	d.people[addr] = p
	d.order = append(d.order, addr)
	return p
}

// LookupPerson returns the stats for addr without creating them.
func (d *DomainStats) LookupPerson(addr string) (*PersonStats, bool) {
	p, ok := d.people[addr]
	return p, ok
}

// People returns person addresses in first-observed order.
func (d *DomainStats) People() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}
