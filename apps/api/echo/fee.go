package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/apps/container"
	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/academicyear"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/ledger"
	"github.com/trezcool/registrar/core/student"
)

type feeApi struct {
	svc      *fee.Service
	students *student.Service
	years    *academicyear.Service
	ledger   *ledger.Reconciler
	validate *validator.Validate
}

func registerFeeAPI(g *echo.Group, app *container.Container) {
	api := feeApi{
		svc:      app.Fees,
		students: app.Students,
		years:    app.Years,
		ledger:   app.Ledger,
		validate: app.Validate,
	}
	cashier := adminMiddleware(cashierRoles...)

	fg := g.Group("/fees")
	fg.GET("/summary", api.summary)

	fg.GET("/templates", api.listTemplates)
	fg.POST("/templates", api.createTemplate, cashier)
	fg.GET("/templates/:id", api.retrieveTemplate)
	fg.PUT("/templates/:id", api.updateTemplate, cashier)
	fg.DELETE("/templates/:id", api.destroyTemplate, cashier)

	fg.GET("/optional", api.listOptionalFees)
	fg.POST("/optional", api.createOptionalFee, cashier)
	fg.PATCH("/optional/:id", api.updateOptionalFee, cashier)
	fg.DELETE("/optional/:id", api.destroyOptionalFee, cashier)

	g.GET("/students/:id/optional-fees", api.listStudentOptionalFees)
	g.POST("/students/:id/optional-fees", api.assignOrPay, cashier)
	g.DELETE("/students/:id/optional-fees", api.unassign, cashier)
}

func (api *feeApi) summary(ctx echo.Context) error {
	year, err := api.years.Resolve(ctx.Request().Context(), ctx.QueryParam("academicYearId"))
	if err != nil {
		return err
	}
	sum, err := api.ledger.Summary(ctx.Request().Context(), year.ID)
	if err != nil {
		return errors.Wrap(err, "summarizing fee statuses")
	}
	return ctx.JSON(http.StatusOK, sum)
}

// Templates

func (api *feeApi) listTemplates(ctx echo.Context) error {
	tmpls, err := api.svc.ListTemplates(ctx.Request().Context(), fee.TemplateFilter{
		AcademicYearID: core.CleanString(ctx.QueryParam("academicYearId")),
		GradeLevel:     core.CleanString(ctx.QueryParam("gradeLevel")),
	})
	if err != nil {
		return errors.Wrap(err, "listing fee templates")
	}
	if tmpls == nil {
		tmpls = []fee.Template{}
	}
	return ctx.JSON(http.StatusOK, tmpls)
}

func (api *feeApi) createTemplate(ctx echo.Context) error {
	var data fee.TemplateForm
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	tmpl, err := api.svc.CreateTemplate(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, tmpl)
}

func (api *feeApi) retrieveTemplate(ctx echo.Context) error {
	tmpl, err := api.svc.GetTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *feeApi) updateTemplate(ctx echo.Context) error {
	var data fee.TemplateForm
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	tmpl, err := api.svc.UpdateTemplate(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *feeApi) destroyTemplate(ctx echo.Context) error {
	if err := api.svc.DeleteTemplate(ctx.Request().Context(), ctx.Param("id"), actorID(ctx)); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Optional fees

func (api *feeApi) listOptionalFees(ctx echo.Context) error {
	activeOnly := false
	if active := queryBool(ctx, "isActive"); active != nil {
		activeOnly = *active
	}
	ofs, err := api.svc.ListOptionalFees(ctx.Request().Context(), activeOnly)
	if err != nil {
		return errors.Wrap(err, "listing optional fees")
	}
	if ofs == nil {
		ofs = []fee.OptionalFee{}
	}
	return ctx.JSON(http.StatusOK, ofs)
}

func (api *feeApi) createOptionalFee(ctx echo.Context) error {
	var data fee.OptionalFeeForm
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	of, err := api.svc.CreateOptionalFee(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, of)
}

func (api *feeApi) updateOptionalFee(ctx echo.Context) error {
	var data fee.OptionalFeePatch
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	of, err := api.svc.UpdateOptionalFee(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, of)
}

func (api *feeApi) destroyOptionalFee(ctx echo.Context) error {
	if err := api.svc.DeleteOptionalFee(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Student optional fees

func (api *feeApi) listStudentOptionalFees(ctx echo.Context) error {
	stud, err := api.students.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	sofs, err := api.svc.ListStudentOptionalFees(ctx.Request().Context(), stud.ID, ctx.QueryParam("academicYearId"))
	if err != nil {
		return err
	}
	if sofs == nil {
		sofs = []fee.StudentOptionalFee{}
	}
	return ctx.JSON(http.StatusOK, sofs)
}

func (api *feeApi) assignOrPay(ctx echo.Context) error {
	stud, err := api.students.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	var data fee.AssignForm
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	sof, err := api.svc.AssignOrPay(ctx.Request().Context(), stud.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sof)
}

func (api *feeApi) unassign(ctx echo.Context) error {
	ofID := core.CleanString(ctx.QueryParam("optionalFeeId"))
	if ofID == "" {
		return core.NewFieldError("optionalFeeId", "this field is required")
	}
	err := api.svc.Unassign(ctx.Request().Context(), ctx.Param("id"), ofID, ctx.QueryParam("academicYearId"))
	if err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
