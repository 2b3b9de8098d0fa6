package repositories

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"aaronromeo.com/mailtally/pkg/base"
	"aaronromeo.com/mailtally/pkg/mock"
	"aaronromeo.com/mailtally/pkg/report"
	"aaronromeo.com/mailtally/pkg/utils"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() report.Report {
	first := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	return report.Report{
		Mode: base.ModeAddress,
		Entries: []report.Entry{
			{Key: "a@x.com", Sent: 3, Received: 2, Total: 5, FirstSeen: &first, LastSeen: &last},
			{Key: "b@x.com", Sent: 0, Received: 1, Total: 1},
		},
	}
}

func TestNewFileReportRepository(t *testing.T) {
	logger := mock.SetupLogger(t)

	_, err := NewFileReportRepository(nil, "out.csv", logger)
	assert.Error(t, err)
	_, err = NewFileReportRepository(mock.NewMockFileManager(), "", logger)
	assert.Error(t, err)
	_, err = NewFileReportRepository(mock.NewMockFileManager(), "out.csv", nil)
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	fm := mock.NewMockFileManager()
	repo, err := NewFileReportRepository(fm, "reports/email_stats.csv", mock.SetupLogger(t))
	require.NoError(t, err)

	require.NoError(t, repo.Save(sampleReport()))
	assert.Equal(t, os.FileMode(0o755), fm.Mkdirs["reports"])
	assert.Equal(t, 1, fm.Closed)
	assert.Equal(t,
		"Email Address,Sent,Received,Total,First Email,Last Email\n"+
			"a@x.com,3,2,5,2024-03-02,2024-03-09\n"+
			"b@x.com,0,1,1,,\n",
		fm.Writers["reports/email_stats.csv"].Buffer.String())

	loaded, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleReport(), loaded)
}

func TestSaveErrors(t *testing.T) {
	fm := mock.NewMockFileManager()
	fm.Err = errors.New("disk full")
	repo, err := NewFileReportRepository(fm, base.DefaultReportFile, mock.SetupLogger(t))
	require.NoError(t, err)

	err = repo.Save(sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, fm.Mkdirs)
}

func TestLoadMissingFile(t *testing.T) {
	repo, err := NewFileReportRepository(mock.NewMockFileManager(), base.DefaultReportFile, mock.SetupLogger(t))
	require.NoError(t, err)

	_, err = repo.Load()
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSaveToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "email_stats.csv")
	repo, err := NewFileReportRepository(&utils.OSFileManager{}, path, mock.SetupLogger(t))
	require.NoError(t, err)

	require.NoError(t, repo.Save(sampleReport()))

	loaded, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleReport(), loaded)
}
