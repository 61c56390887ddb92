package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/apps/container"
	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/recyclebin"
	"github.com/trezcool/registrar/services/metrics"
)

// TrashRequest is the body of POST /recycle-bin.
type TrashRequest struct {
	EntityType recyclebin.EntityType `json:"entityType" validate:"required"`
	EntityID   string                `json:"entityId" validate:"required"`
}

type PurgeResponse struct {
	Deleted int `json:"deleted"`
}

type recycleBinApi struct {
	svc      *recyclebin.Service
	metrics  *metrics.Metrics
	validate *validator.Validate
}

func registerRecycleBinAPI(g *echo.Group, app *container.Container, m *metrics.Metrics) {
	api := recycleBinApi{svc: app.RecycleBin, metrics: m, validate: app.Validate}
	registrar := adminMiddleware(registrarRoles...)
	owner := adminMiddleware(ownerRoles...)

	bg := g.Group("/recycle-bin")
	bg.GET("", api.list)
	bg.POST("", api.trash, registrar)
	bg.DELETE("", api.purgeExpired, owner)
	bg.GET("/:id", api.retrieve)
	bg.PATCH("/:id", api.restore, registrar)
	bg.DELETE("/:id", api.purge, owner)
}

// registerCronAPI exposes the scheduler hook; it authenticates with the cron secret, not a JWT.
func registerCronAPI(g *echo.Group, secret string, svc *recyclebin.Service, m *metrics.Metrics) {
	api := recycleBinApi{svc: svc, metrics: m}
	g.GET("/cron/cleanup-recycle-bin", api.cronCleanup, cronMiddleware(secret))
}

func (api *recycleBinApi) list(ctx echo.Context) error {
	filter := recyclebin.ListFilter{
		EntityType: recyclebin.EntityType(ctx.QueryParam("entityType")),
		Search:     ctx.QueryParam("search"),
	}
	filter.Clean()
	items, err := api.svc.List(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing recycle bin")
	}
	if items == nil {
		items = []recyclebin.Item{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *recycleBinApi) trash(ctx echo.Context) error {
	var data TrashRequest
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	data.EntityID = core.CleanString(data.EntityID)
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	if err := api.svc.Trash(ctx.Request().Context(), data.EntityType, data.EntityID, actorID(ctx)); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *recycleBinApi) retrieve(ctx echo.Context) error {
	it, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, it)
}

func (api *recycleBinApi) restore(ctx echo.Context) error {
	it, err := api.svc.Restore(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, it)
}

func (api *recycleBinApi) purge(ctx echo.Context) error {
	if err := api.svc.Purge(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	api.metrics.Purged("manual", 1)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *recycleBinApi) purgeExpired(ctx echo.Context) error {
	return api.doPurgeExpired(ctx, "manual")
}

func (api *recycleBinApi) cronCleanup(ctx echo.Context) error {
	return api.doPurgeExpired(ctx, "expired")
}

func (api *recycleBinApi) doPurgeExpired(ctx echo.Context, trigger string) error {
	n, err := api.svc.PurgeExpired(ctx.Request().Context(), core.NowFunc())
	if err != nil {
		return err
	}
	api.metrics.Purged(trigger, n)
	return ctx.JSON(http.StatusOK, PurgeResponse{Deleted: n})
}
