package echoapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/registrar/apps/container"
	"github.com/trezcool/registrar/core/notification"
)

type MarkAllReadResponse struct {
	Updated int `json:"updated"`
}

type notificationApi struct {
	svc      *notification.Service
	validate *validator.Validate
}

// registerNotificationAPI serves the inbox of the authenticated admin.
func registerNotificationAPI(g *echo.Group, app *container.Container) {
	api := notificationApi{svc: app.Notifications, validate: app.Validate}

	ng := g.Group("/notifications")
	ng.GET("", api.list)
	ng.POST("", api.create)
	ng.POST("/mark-all-read", api.markAllRead)
	ng.PATCH("/:id", api.update)
	ng.DELETE("/:id", api.destroy)
}

func (api *notificationApi) list(ctx echo.Context) error {
	inbox, err := api.svc.List(ctx.Request().Context(), notification.QueryFilter{
		UserID: actorID(ctx),
		Type:   notification.Type(strings.ToUpper(ctx.QueryParam("type"))),
		IsRead: queryBool(ctx, "isRead"),
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inbox)
}

func (api *notificationApi) create(ctx echo.Context) error {
	var data notification.NewNotification
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	n, err := api.svc.Create(ctx.Request().Context(), actorID(ctx), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api *notificationApi) update(ctx echo.Context) error {
	var data notification.UpdateNotification
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	n, err := api.svc.SetRead(ctx.Request().Context(), actorID(ctx), ctx.Param("id"), *data.IsRead)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), actorID(ctx), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	n, err := api.svc.MarkAllRead(ctx.Request().Context(), actorID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, MarkAllReadResponse{Updated: n})
}
