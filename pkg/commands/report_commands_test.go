package commands

import (
	"bytes"
	"context"
	"io"
	"testing"

	"aaronromeo.com/mailtally/pkg/base"
	"aaronromeo.com/mailtally/pkg/mock"
	"aaronromeo.com/mailtally/pkg/report"
	"aaronromeo.com/mailtally/pkg/repositories"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	name string
	body string
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, name string, body io.Reader) (string, error) {
	data, _ := io.ReadAll(body)
	f.name, f.body = name, string(data)
	if f.err != nil {
		return "", f.err
	}
	return "s3://reports/" + name, nil
}

type announcement struct {
	mode     base.Mode
	keys     int
	messages int
	location string
}

type fakeAnnouncer struct {
	calls []announcement
	err   error
}

func (f *fakeAnnouncer) Do(_ context.Context, mode base.Mode, keys, messages int, location string) error {
	f.calls = append(f.calls, announcement{mode, keys, messages, location})
	return f.err
}

type fakeCommand struct {
	name   string
	err    error
	called bool
}

func (f *fakeCommand) Execute(context.Context, report.Report) error {
	f.called = true
	return f.err
}

func (f *fakeCommand) GetName() string        { return f.name }
func (f *fakeCommand) GetDescription() string { return "fake " + f.name }

func sampleReport() report.Report {
	return report.Report{
		Mode: base.ModeAddress,
		Entries: []report.Entry{
			{Key: "a@x.com", Sent: 1, Received: 1, Total: 2},
		},
	}
}

func TestSummaryCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := NewSummaryCommand(mock.SetupLogger(t), &out)

	require.NoError(t, cmd.Execute(context.Background(), sampleReport()))
	assert.Contains(t, out.String(), "Summary for email: a@x.com")
	assert.Equal(t, "summary", cmd.GetName())
	assert.Equal(t, "Prints the per-key summary", cmd.GetDescription())
}

func TestExportAndUploadCommands(t *testing.T) {
	logger := mock.SetupLogger(t)
	fm := mock.NewMockFileManager()
	repo, err := repositories.NewFileReportRepository(fm, base.DefaultReportFile, logger)
	require.NoError(t, err)

	export := NewExportCommand(logger, repo)
	uploader := &fakeUploader{}
	upload := NewUploadCommand(logger, uploader, fm, base.DefaultReportFile)

	ctx := context.Background()
	require.NoError(t, export.Execute(ctx, sampleReport()))
	assert.Equal(t, base.DefaultReportFile, export.Location())
	assert.Empty(t, upload.Location())

	require.NoError(t, upload.Execute(ctx, sampleReport()))
	assert.Equal(t, "email_stats.csv", uploader.name)
	assert.Contains(t, uploader.body, "a@x.com,1,1,2,,")
	assert.Equal(t, "s3://reports/email_stats.csv", upload.Location())
}

func TestUploadCommandMissingExport(t *testing.T) {
	upload := NewUploadCommand(mock.SetupLogger(t), &fakeUploader{}, mock.NewMockFileManager(), "missing.csv")

	err := upload.Execute(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.csv")
}

func TestAnnounceCommandUsesLastLocation(t *testing.T) {
	logger := mock.SetupLogger(t)
	fm := mock.NewMockFileManager()
	repo, err := repositories.NewFileReportRepository(fm, base.DefaultReportFile, logger)
	require.NoError(t, err)

	export := NewExportCommand(logger, repo)
	upload := NewUploadCommand(logger, &fakeUploader{}, fm, base.DefaultReportFile)
	ann := &fakeAnnouncer{}
	announce := NewAnnounceCommand(logger, ann, func() int { return 42 }, export, upload)

	ctx := context.Background()
	require.NoError(t, announce.Execute(ctx, sampleReport()))
	require.NoError(t, export.Execute(ctx, sampleReport()))
	require.NoError(t, upload.Execute(ctx, sampleReport()))
	require.NoError(t, announce.Execute(ctx, sampleReport()))

	assert.Equal(t, []announcement{
		{mode: base.ModeAddress, keys: 1, messages: 42, location: base.DefaultReportFile},
		{mode: base.ModeAddress, keys: 1, messages: 42, location: "s3://reports/email_stats.csv"},
	}, ann.calls)
}

func TestAnnounceCommandWithoutLocators(t *testing.T) {
	ann := &fakeAnnouncer{}
	announce := NewAnnounceCommand(mock.SetupLogger(t), ann, nil)

	require.NoError(t, announce.Execute(context.Background(), sampleReport()))
	assert.Equal(t, "(not saved)", ann.calls[0].location)
	assert.Equal(t, 0, ann.calls[0].messages)
}

func TestCommandExecutor(t *testing.T) {
	tests := []struct {
		name          string
		commands      []*fakeCommand
		expectedError string
		expectedCalls []bool
	}{
		{
			name:          "all succeed",
			commands:      []*fakeCommand{{name: "one"}, {name: "two"}},
			expectedCalls: []bool{true, true},
		},
		{
			name:          "stops at first failure",
			commands:      []*fakeCommand{{name: "one", err: errors.New("disk full")}, {name: "two"}},
			expectedError: "one: disk full",
			expectedCalls: []bool{true, false},
		},
		{
			name:          "no commands",
			commands:      nil,
			expectedCalls: []bool{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := NewCommandExecutor(mock.SetupLogger(t))

			cmds := make([]ReportCommand, len(tt.commands))
			for i, c := range tt.commands {
				cmds[i] = c
			}

			err := executor.ExecuteCommands(context.Background(), cmds, sampleReport())
			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Equal(t, tt.expectedError, err.Error())
			} else {
				assert.NoError(t, err)
			}

			calls := make([]bool, len(tt.commands))
			for i, c := range tt.commands {
				calls[i] = c.called
			}
			assert.Equal(t, tt.expectedCalls, calls)
		})
	}
}
