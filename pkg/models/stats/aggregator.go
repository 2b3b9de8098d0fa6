package stats

import (
	"slices"
	"strings"

	"aaronromeo.com/mailtally/pkg/base"
)

// Aggregator folds parsed messages into per-key statistics. Implementations are
// not safe for concurrent use; a run touches them from a single goroutine.
type Aggregator interface {
	Observe(key string, msg Message)
	Mode() base.Mode
	Keys() []string
	Len() int
}

// keyIndex keeps first-observed order for tracked keys.
type keyIndex struct {
	order []string
}

func (k *keyIndex) add(key string) {
	k.order = append(k.order, key)
}

func (k *keyIndex) Keys() []string {
	out := make([]string, len(k.order))
	copy(out, k.order)
	return out
}

func (k *keyIndex) Len() int {
	return len(k.order)
}

// AddressAggregator tracks full email addresses.
type AddressAggregator struct {
	keyIndex
	stats map[string]*Stats
}

func NewAddressAggregator() *AddressAggregator {
	return &AddressAggregator{stats: map[string]*Stats{}}
}

func (a *AddressAggregator) Mode() base.Mode {
	return base.ModeAddress
}

// Stats returns the stats for key, creating them on first access.
func (a *AddressAggregator) Stats(key string) *Stats {
	if s, ok := a.stats[key]; ok {
		return s
	}
	s := &Stats{}
	a.stats[key] = s
	a.add(key)
	return s
}

// Lookup returns the stats for key without creating them.
func (a *AddressAggregator) Lookup(key string) (*Stats, bool) {
	s, ok := a.stats[key]
	return s, ok
}

// Observe counts key at most once per header: present in From is a sent
// message, present in To is a received one. Both may apply.
func (a *AddressAggregator) Observe(key string, msg Message) {
	s := a.Stats(key)
	s.observeDate(msg.Date)

	if slices.Contains(msg.From, key) {
		s.addSent()
	}
	if slices.Contains(msg.To, key) {
		s.addReceived()
	}
}

// DomainAggregator tracks domains with per-person breakdowns.
type DomainAggregator struct {
	keyIndex
	stats map[string]*DomainStats
}

func NewDomainAggregator() *DomainAggregator {
	return &DomainAggregator{stats: map[string]*DomainStats{}}
}

func (d *DomainAggregator) Mode() base.Mode {
	return base.ModeDomain
}

// Stats returns the stats for domain, creating them on first access.
func (d *DomainAggregator) Stats(domain string) *DomainStats {
	if s, ok := d.stats[domain]; ok {
		return s
	}
	s := newDomainStats()
	d.stats[domain] = s
	d.add(domain)
	return s
}

// Lookup returns the stats for domain without creating them.
func (d *DomainAggregator) Lookup(domain string) (*DomainStats, bool) {
	s, ok := d.stats[domain]
	return s, ok
}

// Observe counts every address that contains domain as a substring. A From
// match is credited to the domain as received, a To match as sent. Matching
// is deliberately loose: "x.com" also matches "user@notx.com".
func (d *DomainAggregator) Observe(domain string, msg Message) {
	s := d.Stats(domain)
	s.observeDate(msg.Date)

	for _, addr := range msg.From {
		if !strings.Contains(addr, domain) {
			continue
		}
		p := s.Person(addr)
		p.From++
		p.Total++
		s.addReceived()
	}

	for _, addr := range msg.To {
		if !strings.Contains(addr, domain) {
			continue
		}
		p := s.Person(addr)
		p.To++
		p.Total++
		s.addSent()
	}
}
