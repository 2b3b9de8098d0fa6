// Package testutil provides fakes and fixtures shared across test files.
package testutil

import (
	"fmt"

	"aaronromeo.com/mailtally/pkg/base"
)

// MockSession provides a fake imapmanager.Session. Behaviour is injected
// through the func fields and every call is recorded.
type MockSession struct {
	SelectMailboxFunc func(name string) error
	SearchFunc        func(mode base.Mode, key string) ([]uint32, error)
	FetchHeadersFunc  func(seqNums []uint32) ([]base.RawHeader, error)

	Selected []string
	Searched []string
	Fetched  [][]uint32
}

// NewMockSession returns a session where every search finds nothing.
func NewMockSession() *MockSession {
	return &MockSession{}
}

func (m *MockSession) SelectMailbox(name string) error {
	m.Selected = append(m.Selected, name)
	if m.SelectMailboxFunc != nil {
		return m.SelectMailboxFunc(name)
	}
	return nil
}

func (m *MockSession) Search(mode base.Mode, key string) ([]uint32, error) {
	m.Searched = append(m.Searched, key)
	if m.SearchFunc != nil {
		return m.SearchFunc(mode, key)
	}
	return nil, nil
}

func (m *MockSession) FetchHeaders(seqNums []uint32) ([]base.RawHeader, error) {
	batch := make([]uint32, len(seqNums))
	copy(batch, seqNums)
	m.Fetched = append(m.Fetched, batch)
	if m.FetchHeadersFunc != nil {
		return m.FetchHeadersFunc(seqNums)
	}
	return []base.RawHeader{}, nil
}

// Mailbox is an in-memory mailbox keyed by sequence number. It can back the
// Search and FetchHeaders funcs of a MockSession.
type Mailbox map[uint32]string

// FetchHeaders returns the stored blocks for seqNums, skipping unknown ones.
func (mb Mailbox) FetchHeaders(seqNums []uint32) ([]base.RawHeader, error) {
	out := make([]base.RawHeader, 0, len(seqNums))
	for _, n := range seqNums {
		if block, ok := mb[n]; ok {
			out = append(out, base.RawHeader{SeqNum: n, Block: []byte(block)})
		}
	}
	return out, nil
}

// HeaderBlock formats a FROM/TO/DATE block the way a server returns it.
// Empty values leave the header out.
func HeaderBlock(from, to, date string) string {
	block := ""
	if from != "" {
		block += fmt.Sprintf("From: %s\r\n", from)
	}
	if to != "" {
		block += fmt.Sprintf("To: %s\r\n", to)
	}
	if date != "" {
		block += fmt.Sprintf("Date: %s\r\n", date)
	}
	return block + "\r\n"
}
