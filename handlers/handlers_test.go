package handlers

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"aaronromeo.com/mailtally/pkg/base"
	"aaronromeo.com/mailtally/pkg/mock"
	"aaronromeo.com/mailtally/pkg/report"
	"aaronromeo.com/mailtally/pkg/repositories"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupApp(t *testing.T, rep *report.Report) *fiber.App {
	t.Helper()
	logger := mock.SetupLogger(t)
	repo, err := repositories.NewFileReportRepository(mock.NewMockFileManager(), base.DefaultReportFile, logger)
	require.NoError(t, err)
	if rep != nil {
		require.NoError(t, repo.Save(*rep))
	}
	return NewApp(repo, logger)
}

func domainReport() *report.Report {
	first := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	return &report.Report{
		Mode: base.ModeDomain,
		Entries: []report.Entry{
			{
				Key: "big.com", Sent: 2, Received: 1, Total: 3, FirstSeen: &first, LastSeen: &last,
				People: []report.Person{
					{Address: "q@big.com", Sent: 2, Total: 2},
					{Address: "p@big.com", Received: 1, Total: 1},
				},
			},
		},
	}
}

func body(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestHome(t *testing.T) {
	app := setupApp(t, domainReport())

	status, html := body(t, app, "/")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, html, "<th>Domain</th>")
	assert.Contains(t, html, "big.com")
	assert.Contains(t, html, "q@big.com")
	assert.Contains(t, html, "2024-03-01")
}

func TestHomeWithoutReport(t *testing.T) {
	app := setupApp(t, nil)

	status, html := body(t, app, "/")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Contains(t, html, "No report at email_stats.csv yet")
}

func TestReportJSON(t *testing.T) {
	app := setupApp(t, domainReport())

	status, raw := body(t, app, "/api/report")
	require.Equal(t, fiber.StatusOK, status)

	var got report.Report
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, base.ModeDomain, got.Mode)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, 3, got.Entries[0].Total)
	assert.Len(t, got.Entries[0].People, 2)
}

func TestReportJSONWithoutReport(t *testing.T) {
	status, raw := body(t, setupApp(t, nil), "/api/report")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Contains(t, raw, "error")
}

func TestNotFound(t *testing.T) {
	status, html := body(t, setupApp(t, nil), "/nope")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Contains(t, html, "Page not found")
}
