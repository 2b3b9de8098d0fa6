package mock

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"testing"

	imap "github.com/emersion/go-imap"
	gomock "go.uber.org/mock/gomock"
)

// SetupLogger sets up a logger that only outputs if the test fails
func SetupLogger(t *testing.T) *slog.Logger {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	t.Cleanup(func() {
		if t.Failed() {
			os.Stdout.Write(buf.Bytes()) //nolint:errcheck
		}
	})

	return logger
}

// StringLiteral is a simple imap.Literal implementation that wraps a string.
type StringLiteral struct {
	s   string
	pos int
}

// NewStringLiteral creates a new StringLiteral based on a string.
func NewStringLiteral(s string) *StringLiteral {
	return &StringLiteral{s: s}
}

func (l *StringLiteral) Read(p []byte) (n int, err error) {
	if l.pos >= len(l.s) {
		return 0, io.EOF
	}
	n = copy(p, l.s[l.pos:])
	l.pos += n
	return n, nil
}

// Len returns the length of the underlying string.
func (l *StringLiteral) Len() int {
	return len(l.s)
}

// HeaderMessage builds a fetch response carrying one header block.
func HeaderMessage(seqNum uint32, block string) *imap.Message {
	msg := imap.NewMessage(seqNum, nil)
	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{
			Specifier: imap.HeaderSpecifier,
			Fields:    []string{"FROM", "TO", "DATE"},
		},
	}
	msg.Body[section] = NewStringLiteral(block)
	return msg
}

// Deliver returns a gomock Do/DoAndReturn func for Client.Fetch that pushes
// msgs to the channel, closes it like the real client does and returns err.
func Deliver(err error, msgs ...*imap.Message) func(*imap.SeqSet, []imap.FetchItem, chan *imap.Message) error {
	return func(_ *imap.SeqSet, _ []imap.FetchItem, ch chan *imap.Message) error {
		for _, msg := range msgs {
			ch <- msg
		}
		close(ch)
		return err
	}
}

// searchFragmentMatcher checks that a search is OR (TO fragment) (FROM fragment).
type searchFragmentMatcher struct {
	fragment string
}

func (m searchFragmentMatcher) Matches(x interface{}) bool {
	c, ok := x.(*imap.SearchCriteria)
	if !ok || len(c.Or) != 1 {
		return false
	}
	to, from := c.Or[0][0], c.Or[0][1]
	return to.Header.Get("To") == m.fragment && from.Header.Get("From") == m.fragment
}

func (m searchFragmentMatcher) String() string {
	return "searches To or From for " + m.fragment
}

// NewSearchFragmentMatcher returns a matcher for the tally search criteria.
func NewSearchFragmentMatcher(fragment string) gomock.Matcher {
	return searchFragmentMatcher{fragment: fragment}
}
