package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/apps/container"
	"github.com/trezcool/registrar/core/academicyear"
)

type academicYearApi struct {
	svc      *academicyear.Service
	validate *validator.Validate
}

func registerAcademicYearAPI(g *echo.Group, app *container.Container) {
	api := academicYearApi{svc: app.Years, validate: app.Validate}
	registrar := adminMiddleware(registrarRoles...)

	yg := g.Group("/academic-years")
	yg.GET("", api.list)
	yg.POST("", api.create, registrar)
	yg.GET("/active", api.active)
	yg.GET("/:id", api.retrieve)
	yg.PATCH("/:id", api.update, registrar)
	yg.POST("/:id", api.apply, registrar)
	yg.DELETE("/:id", api.destroy, adminMiddleware(ownerRoles...))
}

func (api *academicYearApi) list(ctx echo.Context) error {
	years, err := api.svc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing academic years")
	}
	if years == nil {
		years = []academicyear.AcademicYear{}
	}
	return ctx.JSON(http.StatusOK, years)
}

func (api *academicYearApi) create(ctx echo.Context) error {
	var data academicyear.NewAcademicYear
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	year, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, year)
}

func (api *academicYearApi) active(ctx echo.Context) error {
	year, err := api.svc.GetActive(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *academicYearApi) retrieve(ctx echo.Context) error {
	year, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *academicYearApi) update(ctx echo.Context) error {
	var data academicyear.UpdateAcademicYear
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	year, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *academicYearApi) apply(ctx echo.Context) error {
	var data academicyear.ActionRequest
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	year, err := api.svc.Apply(ctx.Request().Context(), ctx.Param("id"), data.Action)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, year)
}

func (api *academicYearApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), actorID(ctx)); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
