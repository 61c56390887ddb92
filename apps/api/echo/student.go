package echoapi

import (
	"fmt"
	"net/http"
	"strconv"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/apps/container"
	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/notification"
	"github.com/trezcool/registrar/core/student"
	"github.com/trezcool/registrar/core/user"
	"github.com/trezcool/registrar/services/metrics"
)

type studentApi struct {
	svc        *student.Service
	notifier   *notification.Service
	users      *user.Service
	metrics    *metrics.Metrics
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator
}

func registerStudentAPI(g *echo.Group, app *container.Container, m *metrics.Metrics, logger core.Logger) {
	api := studentApi{
		svc:        app.Students,
		notifier:   app.Notifications,
		users:      app.Users,
		metrics:    m,
		logger:     logger,
		validate:   app.Validate,
		translator: app.Translator,
	}
	registrar := adminMiddleware(registrarRoles...)

	sg := g.Group("/students")
	sg.GET("", api.query)
	sg.POST("", api.enroll, registrar)
	sg.POST("/import", api.importFile, registrar)

	dg := sg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, registrar)
	dg.DELETE("", api.destroy, registrar)
	dg.POST("/switch", api.switchSection, registrar)
}

func (api *studentApi) query(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)
	filter := student.QueryFilter{
		Search:         ctx.QueryParam("search"),
		GradeLevel:     ctx.QueryParam("gradeLevel"),
		SectionID:      ctx.QueryParam("sectionId"),
		Status:         enrollment.Status(ctx.QueryParam("status")),
		AcademicYearID: ctx.QueryParam("academicYearId"),
		Page:           queryPage(ctx),
		Orderings:      ordering.Orderings,
	}
	page, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *studentApi) enroll(ctx echo.Context) error {
	var data student.Form
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	res, err := api.svc.Enroll(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	api.metrics.Enrolled(res.IsReenrollment)
	return ctx.JSON(http.StatusCreated, res)
}

func (api *studentApi) importFile(ctx echo.Context) error {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewFieldError("file", "a CSV or XLSX file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	rows, err := student.ParseImportFile(f, fh.Filename)
	if err != nil {
		return err
	}
	res := api.svc.Import(ctx.Request().Context(), rows, api.validate, api.translator)
	api.metrics.Imported(res.Success)
	if len(res.Errors) > 0 {
		if err := api.mailImportReport(ctx, fh.Filename, res); err != nil {
			api.logger.Error("mailing import report", err)
		}
	}
	return ctx.JSON(http.StatusOK, res)
}

// mailImportReport sends the rejected rows to the admin who ran the import.
func (api *studentApi) mailImportReport(ctx echo.Context, filename string, res student.ImportResult) error {
	usr, err := api.users.GetByID(ctx.Request().Context(), actorID(ctx))
	if err != nil {
		return errors.Wrap(err, "finding importer")
	}
	report, err := res.ErrorReport()
	if err != nil {
		return err
	}
	return api.notifier.MailReport(ctx.Request().Context(), usr, notification.Report{
		Subject:  "Student import: " + strconv.Itoa(len(res.Errors)) + " row(s) rejected",
		Body:     fmt.Sprintf("%d student(s) imported from %s, %d skipped. The rejected rows are attached.", res.Success, filename, res.Skipped),
		Filename: "import-errors.csv",
		Content:  report,
	})
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	detail, err := api.svc.Detail(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *studentApi) update(ctx echo.Context) error {
	var data student.Form
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	stud, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stud)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), actorID(ctx)); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) switchSection(ctx echo.Context) error {
	var data student.SwitchForm
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	stud, err := api.svc.Switch(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stud)
}
