package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"aaronromeo.com/mailtally/pkg/base"
	"aaronromeo.com/mailtally/pkg/repositories"
	"aaronromeo.com/mailtally/views"
	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
)

const reportRepoKey = "reportRepo"

// NewApp wires the report views. Every request reads the latest export
// through repo.
func NewApp(repo repositories.ReportRepository, logger *slog.Logger) *fiber.App {
	engine := html.NewFileSystem(http.FS(views.FS), ".html")

	app := fiber.New(fiber.Config{
		Views:                 engine,
		DisableStartupMessage: true,
	})

	app.Use(otelfiber.Middleware())
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(reportRepoKey, repo)
		return c.Next()
	})
	app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		logger.InfoContext(c.UserContext(), "Handled request",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()))
		return err
	})

	app.Get("/", Home)
	app.Get("/api/report", ReportJSON)
	app.Use(NotFound)

	return app
}

// Home renders the report table
func Home(c *fiber.Ctx) error {
	repo, ok := c.Locals(reportRepoKey).(repositories.ReportRepository)
	if !ok {
		return c.Status(fiber.StatusInternalServerError).SendString("Could not retrieve report repository")
	}

	rep, err := repo.Load()
	if err != nil {
		return c.Status(fiber.StatusNotFound).Render("404", fiber.Map{
			"Message": fmt.Sprintf("No report at %s yet", repo.Path()),
		})
	}

	return c.Render("index", fiber.Map{
		"Title":  base.SERVICE_NAME,
		"Mode":   rep.Mode,
		"Domain": rep.Mode == base.ModeDomain,
		"Report": rep,
	})
}

// ReportJSON returns the report as JSON
func ReportJSON(c *fiber.Ctx) error {
	repo, ok := c.Locals(reportRepoKey).(repositories.ReportRepository)
	if !ok {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not retrieve report repository"})
	}

	rep, err := repo.Load()
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(rep)
}

// NotFound renders the 404 view
func NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).Render("404", fiber.Map{})
}
