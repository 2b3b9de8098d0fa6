package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"aaronromeo.com/mailtally/internal/config"
	"aaronromeo.com/mailtally/pkg/base"
	"aaronromeo.com/mailtally/pkg/mock"
	"aaronromeo.com/mailtally/pkg/storage"
	"aaronromeo.com/mailtally/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// fakeSession adds Login and Close to the shared mock session.
type fakeSession struct {
	*testutil.MockSession
	LoginErr error
	closed   bool
}

func (f *fakeSession) Login() (base.Client, error) {
	return nil, f.LoginErr
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

type harness struct {
	stdout  *bytes.Buffer
	fileMgr *mock.MockFileManager
	session *fakeSession
	imapCfg config.IMAPConfig
	app     *cli.App
}

func newHarness(t *testing.T, session *fakeSession) *harness {
	t.Helper()
	t.Setenv("MAILTALLY_ACCOUNT", "me@example.com")
	t.Setenv("MAILTALLY_SECRET", "app-password")
	t.Setenv(base.UPTRACE_DSN_ENV_VAR, "")

	h := &harness{
		stdout:  &bytes.Buffer{},
		fileMgr: mock.NewMockFileManager(),
		session: session,
	}
	h.app = newApp(deps{
		stdout:  h.stdout,
		stderr:  &bytes.Buffer{},
		fileMgr: h.fileMgr,
		newSession: func(_ context.Context, cfg config.IMAPConfig, _ *slog.Logger) (tallySession, error) {
			h.imapCfg = cfg
			return h.session, nil
		},
		newUploader: func(config.S3, *slog.Logger) (storage.Uploader, error) {
			return nil, errors.New("no uploads in tests")
		},
	})
	h.app.ExitErrHandler = func(*cli.Context, error) {}
	return h
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	require.True(t, errors.As(err, &ec), "expected exit coder, got %v", err)
	return ec.ExitCode()
}

func exampleMailbox() testutil.Mailbox {
	return testutil.Mailbox{
		1: testutil.HeaderBlock("Alice <alice@example.com>", "me@home.org", "Fri, 01 Mar 2024 10:00:00 +0000"),
		2: testutil.HeaderBlock("me@home.org", "bob@example.com", "Tue, 05 Mar 2024 09:30:00 +0000"),
	}
}

func sessionFor(mb testutil.Mailbox) *fakeSession {
	s := testutil.NewMockSession()
	s.SearchFunc = func(base.Mode, string) ([]uint32, error) {
		return []uint32{1, 2}, nil
	}
	s.FetchHeadersFunc = mb.FetchHeaders
	return &fakeSession{MockSession: s}
}

func TestDomainsCommand(t *testing.T) {
	h := newHarness(t, sessionFor(exampleMailbox()))

	err := h.app.Run([]string{"mailtally", "domains", "--mailbox", "Archive", "example.com"})
	require.NoError(t, err)

	assert.Equal(t, "me@example.com", h.imapCfg.Account)
	assert.Equal(t, "Archive", h.imapCfg.Mailbox)
	assert.Equal(t, []string{"example.com"}, h.session.Searched)
	assert.True(t, h.session.closed)

	assert.Contains(t, h.stdout.String(), "Summary for domain: example.com")
	assert.Contains(t, h.stdout.String(), "First email: 2024-03-01")

	written, ok := h.fileMgr.Writers[base.DefaultReportFile]
	require.True(t, ok)
	csv := written.Buffer.String()
	assert.Contains(t, csv, "Domain,Person,Sent,Received,Total")
	assert.Contains(t, csv, "alice@example.com")
	assert.Contains(t, csv, "bob@example.com")
}

func TestAddressesCommandWritesOutputPath(t *testing.T) {
	h := newHarness(t, sessionFor(exampleMailbox()))

	err := h.app.Run([]string{"mailtally", "addresses", "-o", "stats.csv", "alice@example.com"})
	require.NoError(t, err)

	written, ok := h.fileMgr.Writers["stats.csv"]
	require.True(t, ok)
	assert.Contains(t, written.Buffer.String(), "Email Address,Sent,Received,Total,First Email,Last Email")
	assert.Contains(t, written.Buffer.String(), "alice@example.com,1,0,1,2024-03-01,2024-03-05")
}

func TestTallyExitCodes(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		session      func() *fakeSession
		expectedCode int
		expectReport bool
	}{
		{
			name: "no keys",
			args: []string{"mailtally", "domains"},
			session: func() *fakeSession {
				return sessionFor(exampleMailbox())
			},
			expectedCode: exitUsage,
		},
		{
			name: "invalid batch size",
			args: []string{"mailtally", "domains", "--batch-size", "0", "example.com"},
			session: func() *fakeSession {
				return sessionFor(exampleMailbox())
			},
			expectedCode: exitUsage,
		},
		{
			name: "rejected credentials",
			args: []string{"mailtally", "domains", "example.com"},
			session: func() *fakeSession {
				s := sessionFor(exampleMailbox())
				s.LoginErr = &base.AuthError{Account: "me@example.com", Err: errors.New("bad password")}
				return s
			},
			expectedCode: exitAuthFail,
		},
		{
			name: "failed batch still writes the report",
			args: []string{"mailtally", "domains", "--batch-size", "1", "example.com"},
			session: func() *fakeSession {
				mb := exampleMailbox()
				s := sessionFor(mb)
				s.FetchHeadersFunc = func(seqNums []uint32) ([]base.RawHeader, error) {
					if seqNums[0] == 2 {
						return nil, &base.FetchError{Err: errors.New("connection reset")}
					}
					return mb.FetchHeaders(seqNums)
				}
				return s
			},
			expectedCode: exitFailure,
			expectReport: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.session())

			err := h.app.Run(tt.args)
			assert.Equal(t, tt.expectedCode, exitCode(t, err))

			_, ok := h.fileMgr.Writers[base.DefaultReportFile]
			assert.Equal(t, tt.expectReport, ok)
		})
	}
}

func TestCheckCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailtally.yaml")
	require.NoError(t, os.WriteFile(path, []byte("domains:\n  - example.com\n"), 0o600))

	t.Run("valid", func(t *testing.T) {
		h := newHarness(t, sessionFor(nil))

		err := h.app.Run([]string{"mailtally", "--config", path, "check"})
		require.NoError(t, err)
		assert.Contains(t, h.stdout.String(), "Config OK")
	})

	t.Run("missing credentials", func(t *testing.T) {
		h := newHarness(t, sessionFor(nil))
		for _, name := range []string{"MAILTALLY_ACCOUNT", "MAILTALLY_SECRET", "GMAIL_ADDRESS", "GMAIL_APP_PASSWORD"} {
			t.Setenv(name, "")
		}

		err := h.app.Run([]string{"mailtally", "--config", path, "check"})
		assert.Equal(t, exitUsage, exitCode(t, err))
		assert.NotContains(t, h.stdout.String(), "Config OK")
	})
}
