package imapmanager

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"aaronromeo.com/mailtally/pkg/base"
	"aaronromeo.com/mailtally/pkg/utils"
	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/pkg/errors"
)

// AuthMechanism picks how credentials are presented to the server.
type AuthMechanism string

const (
	AuthLogin AuthMechanism = "login"
	AuthPlain AuthMechanism = "plain"
)

// Session is the subset of the manager the tally pipeline depends on.
type Session interface {
	SelectMailbox(name string) error
	Search(mode base.Mode, key string) ([]uint32, error)
	FetchHeaders(seqNums []uint32) ([]base.RawHeader, error)
}

type ImapManagerImpl struct {
	client    base.Client
	dialTLS   func(address string, tlsConfig *tls.Config) (base.Client, error)
	username  string
	password  string
	address   string
	mechanism AuthMechanism
	logger    *slog.Logger
	tlsConfig *tls.Config
	ctx       context.Context
}

type ImapManagerOption func(*ImapManagerImpl) error

func NewImapManager(opts ...ImapManagerOption) (*ImapManagerImpl, error) {
	imapMgr := ImapManagerImpl{mechanism: AuthLogin}
	for _, opt := range opts {
		err := opt(&imapMgr)
		if err != nil {
			return nil, err
		}
	}

	if imapMgr.dialTLS == nil {
		imapMgr.dialTLS = func(address string, tlsConfig *tls.Config) (base.Client, error) {
			c, err := imapclient.DialTLS(address, tlsConfig)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}

	if imapMgr.username == "" {
		return nil, errors.New("requires username")
	}

	if imapMgr.password == "" {
		return nil, errors.New("requires password")
	}

	if imapMgr.client == nil && imapMgr.address == "" {
		return nil, errors.New("requires client or address")
	}

	if imapMgr.logger == nil {
		return nil, errors.New("requires slogger")
	}

	if imapMgr.ctx == nil {
		imapMgr.ctx = context.Background()
	}

	return &imapMgr, nil
}

func WithTLSConfig(addr string, tlsConfig *tls.Config) ImapManagerOption {
	return func(imapMgr *ImapManagerImpl) error {
		imapMgr.address = addr
		imapMgr.tlsConfig = tlsConfig
		return nil
	}
}

func WithAuth(username string, password string) ImapManagerOption {
	return func(imapMgr *ImapManagerImpl) error {
		imapMgr.username = username
		imapMgr.password = password
		return nil
	}
}

func WithAuthMechanism(mechanism AuthMechanism) ImapManagerOption {
	return func(imapMgr *ImapManagerImpl) error {
		switch mechanism {
		case "":
			imapMgr.mechanism = AuthLogin
		case AuthLogin, AuthPlain:
			imapMgr.mechanism = mechanism
		default:
			return errors.Errorf("unsupported auth mechanism %q", mechanism)
		}
		return nil
	}
}

func WithClient(c base.Client) ImapManagerOption {
	return func(imapMgr *ImapManagerImpl) error {
		imapMgr.client = c
		return nil
	}
}

func WithDialTLS(d func(address string, tlsConfig *tls.Config) (base.Client, error)) ImapManagerOption {
	return func(imapMgr *ImapManagerImpl) error {
		imapMgr.dialTLS = d
		return nil
	}
}

func WithLogger(logger *slog.Logger) ImapManagerOption {
	return func(isi *ImapManagerImpl) error {
		isi.logger = logger
		return nil
	}
}

func WithCtx(ctx context.Context) ImapManagerOption {
	return func(isi *ImapManagerImpl) error {
		isi.ctx = ctx
		return nil
	}
}

// Login connects if needed and authenticates. Any failure is an *base.AuthError.
func (srv *ImapManagerImpl) Login() (base.Client, error) {
	if srv.client == nil {
		if err := srv.dial(); err != nil {
			return nil, err
		}
	}

	switch srv.client.State() {
	case imap.NotAuthenticatedState:
		if err := srv.authenticate(); err != nil {
			return srv.client, err
		}
	case imap.AuthenticatedState:
		srv.logger.InfoContext(srv.ctx, "Already authenticated")
	case imap.SelectedState:
		srv.logger.InfoContext(srv.ctx, "Already selected mailbox")
	default: // imap.LogoutState and imap.ConnectedState
		if err := srv.dial(); err != nil {
			return srv.client, err
		}
		if err := srv.authenticate(); err != nil {
			return srv.client, err
		}
	}

	return srv.client, nil
}

func (srv *ImapManagerImpl) dial() error {
	c, err := srv.dialTLS(srv.address, srv.tlsConfig)
	if err != nil {
		srv.logger.ErrorContext(srv.ctx, fmt.Sprintf("Failed to create a client: %v", err), slog.Any("error", utils.WrapError(err)))
		return &base.AuthError{Account: srv.username, Err: errors.Wrapf(err, "dialing %s", srv.address)}
	}
	srv.client = c
	return nil
}

func (srv *ImapManagerImpl) authenticate() error {
	var err error
	switch srv.mechanism {
	case AuthPlain:
		err = srv.client.Authenticate(sasl.NewPlainClient("", srv.username, srv.password))
	default:
		err = srv.client.Login(srv.username, srv.password)
	}
	if err != nil {
		srv.logger.ErrorContext(srv.ctx, fmt.Sprintf("Failed to login: %v", err), slog.Any("error", utils.WrapError(err)))
		return &base.AuthError{Account: srv.username, Err: err}
	}
	srv.logger.InfoContext(srv.ctx, "Login success", slog.String("mechanism", string(srv.mechanism)))
	return nil
}

// Close logs out of the server.
func (srv *ImapManagerImpl) Close() error {
	if srv.client == nil {
		return nil
	}
	if err := srv.client.Logout(); err != nil {
		srv.logger.ErrorContext(srv.ctx, fmt.Sprintf("Failed to logout: %v", err), slog.Any("error", utils.WrapError(err)))
		return err
	}
	return nil
}

// SelectMailbox opens name read-only. A mailbox that is already selected is
// left alone.
func (srv *ImapManagerImpl) SelectMailbox(name string) error {
	if srv.client == nil {
		return &base.SelectError{Mailbox: name, Err: errors.New("IMAP client is not connected")}
	}
	if strings.TrimSpace(name) == "" {
		return &base.SelectError{Mailbox: name, Err: errors.New("mailbox is required")}
	}
	if srv.client.State() == imap.SelectedState {
		return nil
	}

	mbox, err := srv.client.Select(name, true)
	if err != nil {
		srv.logger.ErrorContext(srv.ctx, "Failed to select mailbox", slog.String("mailbox", name), slog.Any("error", utils.WrapError(err)))
		return &base.SelectError{Mailbox: name, Err: err}
	}
	srv.logger.InfoContext(srv.ctx, "Selected mailbox", slog.String("mailbox", name), slog.Any("messages", mbox.Messages))
	return nil
}

// Search returns sequence numbers of messages whose To or From header contains
// the fragment for key.
func (srv *ImapManagerImpl) Search(mode base.Mode, key string) ([]uint32, error) {
	if srv.client == nil {
		return nil, &base.SearchError{Key: key, Err: errors.New("IMAP client is not connected")}
	}

	criteria, err := BuildSearchCriteria(mode, key)
	if err != nil {
		return nil, &base.SearchError{Key: key, Err: err}
	}

	seqNums, err := srv.client.Search(criteria)
	if err != nil {
		srv.logger.ErrorContext(srv.ctx, "Failed to search", slog.String("key", key), slog.Any("error", utils.WrapError(err)))
		return nil, &base.SearchError{Key: key, Err: err}
	}
	return seqNums, nil
}

// FetchHeaders requests only the FROM, TO and DATE header fields for seqNums.
func (srv *ImapManagerImpl) FetchHeaders(seqNums []uint32) ([]base.RawHeader, error) {
	if len(seqNums) == 0 {
		return []base.RawHeader{}, nil
	}
	if srv.client == nil {
		return nil, &base.FetchError{FirstSeqNum: seqNums[0], Size: len(seqNums), Err: errors.New("IMAP client is not connected")}
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	section := HeaderSection()
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- srv.client.Fetch(seqSet, items, messages)
	}()

	headers := make([]base.RawHeader, 0, len(seqNums))
	for msg := range messages {
		for _, literal := range msg.Body {
			if literal == nil {
				continue
			}
			block, err := io.ReadAll(literal)
			if err != nil {
				srv.logger.ErrorContext(srv.ctx, "Failed to read header literal", slog.Any("seqNum", msg.SeqNum), slog.Any("error", utils.WrapError(err)))
				continue
			}
			headers = append(headers, base.RawHeader{SeqNum: msg.SeqNum, Block: block})
		}
	}

	if err := <-done; err != nil {
		srv.logger.ErrorContext(srv.ctx, "Failed to fetch headers", slog.Any("first", seqNums[0]), slog.Int("size", len(seqNums)), slog.Any("error", utils.WrapError(err)))
		return nil, &base.FetchError{FirstSeqNum: seqNums[0], Size: len(seqNums), Err: err}
	}

	return headers, nil
}

// HeaderSection is BODY.PEEK[HEADER.FIELDS (FROM TO DATE)].
func HeaderSection() *imap.BodySectionName {
	return &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{
			Specifier: imap.HeaderSpecifier,
			Fields:    base.HeaderFields,
		},
		Peek: true,
	}
}

// BuildSearchCriteria builds OR (TO "<fragment>") (FROM "<fragment>") where
// the fragment is "@domain" in domain mode or the full address otherwise.
func BuildSearchCriteria(mode base.Mode, key string) (*imap.SearchCriteria, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("tracked key is required")
	}

	var fragment string
	switch mode {
	case base.ModeDomain:
		fragment = "@" + strings.TrimPrefix(key, "@")
	case base.ModeAddress:
		fragment = key
	default:
		return nil, errors.Errorf("unknown mode %q", mode)
	}

	to := imap.NewSearchCriteria()
	to.Header.Add("To", fragment)
	from := imap.NewSearchCriteria()
	from.Header.Add("From", fragment)

	criteria := imap.NewSearchCriteria()
	criteria.Or = [][2]*imap.SearchCriteria{{to, from}}
	return criteria, nil
}

// MostRecent keeps the last max ids. Sequence numbers grow with arrival, so
// these are the newest messages.
func MostRecent(ids []uint32, max int) []uint32 {
	if max <= 0 || len(ids) <= max {
		return ids
	}
	return ids[len(ids)-max:]
}

// Batches splits ids into consecutive chunks of at most size.
func Batches(ids []uint32, size int) [][]uint32 {
	if size <= 0 {
		size = base.DefaultBatchSize
	}
	batches := make([][]uint32, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}
