package base

import (
	"github.com/emersion/go-imap"
	"github.com/emersion/go-sasl"
)

//go:generate mockgen -destination=../mock/mockclient.go -package=mock aaronromeo.com/mailtally/pkg/base Client

// Client is an interface to abstract the client.Client methods used
type Client interface {
	Authenticate(auth sasl.Client) error
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Login(username string, password string) error
	Logout() error
	Search(criteria *imap.SearchCriteria) (seqNums []uint32, err error)
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	State() imap.ConnState
}

// RawHeader is the header-only block returned for one message of a batch.
type RawHeader struct {
	SeqNum uint32
	Block  []byte
}

// Mode selects how tracked keys are matched against message addresses.
type Mode string

const (
	ModeDomain  Mode = "domain"
	ModeAddress Mode = "address"
)

func (m Mode) Valid() bool {
	return m == ModeDomain || m == ModeAddress
}
