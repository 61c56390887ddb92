package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/apps/container"
	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/remark"
	"github.com/trezcool/registrar/core/section"
)

type sectionApi struct {
	svc      *section.Service
	validate *validator.Validate
}

func registerSectionAPI(g *echo.Group, app *container.Container) {
	api := sectionApi{svc: app.Sections, validate: app.Validate}
	registrar := adminMiddleware(registrarRoles...)

	sg := g.Group("/sections")
	sg.GET("", api.list)
	sg.POST("", api.create, registrar)
	sg.GET("/:id", api.retrieve)
	sg.PATCH("/:id", api.update, registrar)
	sg.DELETE("/:id", api.destroy, registrar)
}

func (api *sectionApi) list(ctx echo.Context) error {
	sections, err := api.svc.List(ctx.Request().Context(), section.QueryFilter{
		GradeLevel: ctx.QueryParam("gradeLevel"),
		IsActive:   queryBool(ctx, "isActive"),
	})
	if err != nil {
		return errors.Wrap(err, "listing sections")
	}
	if sections == nil {
		sections = []section.Section{}
	}
	return ctx.JSON(http.StatusOK, sections)
}

func (api *sectionApi) create(ctx echo.Context) error {
	var data section.NewSection
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sec, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sec)
}

func (api *sectionApi) retrieve(ctx echo.Context) error {
	sec, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sec)
}

func (api *sectionApi) update(ctx echo.Context) error {
	var data section.UpdateSection
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sec, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sec)
}

func (api *sectionApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), actorID(ctx)); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

type remarkApi struct {
	svc      *remark.Service
	validate *validator.Validate
}

func registerRemarkAPI(g *echo.Group, app *container.Container) {
	api := remarkApi{svc: app.Remarks, validate: app.Validate}
	registrar := adminMiddleware(registrarRoles...)

	rg := g.Group("/remarks")
	rg.GET("", api.list)
	rg.POST("", api.create, registrar)
	rg.DELETE("/:id", api.destroy, registrar)
}

func (api *remarkApi) list(ctx echo.Context) error {
	activeOnly := true
	if all := queryBool(ctx, "all"); all != nil {
		activeOnly = !*all
	}
	remarks, err := api.svc.List(ctx.Request().Context(), activeOnly)
	if err != nil {
		return errors.Wrap(err, "listing remarks")
	}
	if remarks == nil {
		remarks = []remark.Remark{}
	}
	return ctx.JSON(http.StatusOK, remarks)
}

func (api *remarkApi) create(ctx echo.Context) error {
	var data remark.NewRemark
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	rmk, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, rmk)
}

func (api *remarkApi) destroy(ctx echo.Context) error {
	id := core.CleanString(ctx.Param("id"))
	if err := api.svc.Delete(ctx.Request().Context(), id, actorID(ctx)); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
