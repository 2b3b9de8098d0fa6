package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"aaronromeo.com/mailtally/pkg/base"
	"aaronromeo.com/mailtally/pkg/models/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) *time.Time {
	t := time.Date(2024, time.March, d, 12, 0, 0, 0, time.UTC)
	return &t
}

func domainFixture() *stats.DomainAggregator {
	agg := stats.NewDomainAggregator()
	agg.Observe("small.com", stats.Message{Date: day(2), From: []string{"a@small.com"}})
	agg.Observe("big.com", stats.Message{Date: day(5), From: []string{"p@big.com"}, To: []string{"me@home.org"}})
	agg.Observe("big.com", stats.Message{Date: day(1), From: []string{"me@home.org"}, To: []string{"q@big.com", "q@big.com"}})
	agg.Observe("tie.com", stats.Message{From: []string{"t@tie.com"}})
	agg.Observe("empty.com", stats.Message{From: []string{"me@home.org"}})
	return agg
}

func TestFromAddressesSortsByTotalWithStableTies(t *testing.T) {
	agg := stats.NewAddressAggregator()
	agg.Observe("first@x.com", stats.Message{From: []string{"first@x.com"}})
	agg.Observe("busy@x.com", stats.Message{From: []string{"busy@x.com"}, To: []string{"busy@x.com"}})
	agg.Observe("second@x.com", stats.Message{To: []string{"second@x.com"}})
	agg.Observe("quiet@x.com", stats.Message{From: []string{"nobody@x.com"}})

	rep := FromAddresses(agg)
	assert.Equal(t, base.ModeAddress, rep.Mode)

	var keys []string
	for _, e := range rep.Entries {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"busy@x.com", "first@x.com", "second@x.com", "quiet@x.com"}, keys)

	for i := 1; i < len(rep.Entries); i++ {
		assert.GreaterOrEqual(t, rep.Entries[i-1].Total, rep.Entries[i].Total)
	}
}

func TestFromDomainsSortsPeople(t *testing.T) {
	rep := FromDomains(domainFixture())
	require.Equal(t, 4, rep.Len())

	big := rep.Entries[0]
	assert.Equal(t, "big.com", big.Key)
	assert.Equal(t, 2, big.Sent)
	assert.Equal(t, 1, big.Received)
	assert.Equal(t, 3, big.Total)
	assert.Equal(t, []Person{
		{Address: "q@big.com", Sent: 2, Received: 0, Total: 2},
		{Address: "p@big.com", Sent: 0, Received: 1, Total: 1},
	}, big.People)
	assert.Equal(t, "2024-03-01", big.FirstEmail())
	assert.Equal(t, "2024-03-05", big.LastEmail())

	assert.Equal(t, "small.com", rep.Entries[1].Key)
	assert.Equal(t, "tie.com", rep.Entries[2].Key)
	assert.Equal(t, "empty.com", rep.Entries[3].Key)
	assert.Empty(t, rep.Entries[3].People)
}

func TestBuild(t *testing.T) {
	rep, err := Build(stats.NewAddressAggregator())
	require.NoError(t, err)
	assert.Equal(t, base.ModeAddress, rep.Mode)

	rep, err = Build(domainFixture())
	require.NoError(t, err)
	assert.Equal(t, base.ModeDomain, rep.Mode)

	_, err = Build(nil)
	assert.Error(t, err)
}

func TestReportDoesNotShareDates(t *testing.T) {
	agg := stats.NewAddressAggregator()
	agg.Observe("a@x.com", stats.Message{Date: day(3), From: []string{"a@x.com"}})

	rep := FromAddresses(agg)
	*rep.Entries[0].FirstSeen = rep.Entries[0].FirstSeen.AddDate(1, 0, 0)

	s, _ := agg.Lookup("a@x.com")
	assert.Equal(t, *day(3), *s.FirstSeen)
}

func TestRenderAddresses(t *testing.T) {
	agg := stats.NewAddressAggregator()
	agg.Observe("a@x.com", stats.Message{Date: day(2), From: []string{"a@x.com"}})
	agg.Observe("a@x.com", stats.Message{Date: day(9), To: []string{"a@x.com"}})
	agg.Observe("b@x.com", stats.Message{To: []string{"b@x.com"}})

	var buf bytes.Buffer
	require.NoError(t, FromAddresses(agg).Render(&buf))

	want := "\nSummary for email: a@x.com\n" +
		"  Total emails sent: 1\n" +
		"  Total emails received: 1\n" +
		"  Total emails exchanged: 2\n" +
		"  First email: 2024-03-02\n" +
		"  Last email: 2024-03-09\n" +
		"\nSummary for email: b@x.com\n" +
		"  Total emails sent: 0\n" +
		"  Total emails received: 1\n" +
		"  Total emails exchanged: 1\n" +
		"  First email: N/A\n" +
		"  Last email: N/A\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderDomainsListsPeople(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FromDomains(domainFixture()).Render(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\nSummary for domain: big.com\n"))
	assert.Contains(t, out, "  q@big.com - sent: 2, received: 0, total: 2\n")
	assert.Contains(t, out, "  p@big.com - sent: 0, received: 1, total: 1\n")
	assert.Less(t, strings.Index(out, "q@big.com"), strings.Index(out, "p@big.com"))
	assert.Contains(t, out, "Summary for domain: tie.com\n  Total emails sent: 0\n  Total emails received: 1\n  Total emails exchanged: 1\n  First email: N/A\n")
}
