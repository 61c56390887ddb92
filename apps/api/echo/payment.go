package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/apps/container"
	"github.com/trezcool/registrar/core/academicyear"
	"github.com/trezcool/registrar/core/ledger"
	"github.com/trezcool/registrar/core/payment"
	"github.com/trezcool/registrar/core/student"
	"github.com/trezcool/registrar/services/metrics"
)

// FeeStatusPatch is the body of PATCH /students/:id/fee-status.
type FeeStatusPatch struct {
	AcademicYearID string `json:"academicYearId"`
	IsLatePayment  *bool  `json:"isLatePayment" validate:"required"`
}

type paymentApi struct {
	svc      *payment.Service
	students *student.Service
	years    *academicyear.Service
	ledger   *ledger.Reconciler
	metrics  *metrics.Metrics
	validate *validator.Validate
}

func registerPaymentAPI(g *echo.Group, app *container.Container, m *metrics.Metrics) {
	api := paymentApi{
		svc:      app.Payments,
		students: app.Students,
		years:    app.Years,
		ledger:   app.Ledger,
		metrics:  m,
		validate: app.Validate,
	}
	cashier := adminMiddleware(cashierRoles...)

	// routes hang off the students group; a new "/students/:id" group would shadow its detail routes
	g.GET("/students/:id/payments", api.list)
	g.POST("/students/:id/payments", api.record, cashier)
	g.PATCH("/students/:id/payments", api.refund, cashier)
	g.GET("/students/:id/adjustments", api.listAdjustments)
	g.POST("/students/:id/adjustments", api.createAdjustment, cashier)
	g.GET("/students/:id/fee-status", api.feeStatus)
	g.PATCH("/students/:id/fee-status", api.updateFeeStatus, cashier)
}

func (api *paymentApi) list(ctx echo.Context) error {
	payments, err := api.svc.List(ctx.Request().Context(), ctx.Param("id"), ctx.QueryParam("academicYearId"))
	if err != nil {
		return err
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *paymentApi) record(ctx echo.Context) error {
	var data payment.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	pmt, err := api.svc.Record(ctx.Request().Context(), ctx.Param("id"), actorID(ctx), data)
	if err != nil {
		return err
	}
	api.metrics.PaymentRecorded()
	return ctx.JSON(http.StatusCreated, pmt)
}

func (api *paymentApi) refund(ctx echo.Context) error {
	var data payment.RefundRequest
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	pmt, err := api.svc.Refund(ctx.Request().Context(), ctx.Param("id"), actorID(ctx), data)
	if err != nil {
		return err
	}
	api.metrics.RefundIssued()
	return ctx.JSON(http.StatusOK, pmt)
}

func (api *paymentApi) listAdjustments(ctx echo.Context) error {
	adjs, err := api.svc.ListAdjustments(ctx.Request().Context(), ctx.Param("id"), ctx.QueryParam("academicYearId"))
	if err != nil {
		return err
	}
	if adjs == nil {
		adjs = []payment.Adjustment{}
	}
	return ctx.JSON(http.StatusOK, adjs)
}

func (api *paymentApi) createAdjustment(ctx echo.Context) error {
	var data payment.NewAdjustment
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	adj, err := api.svc.CreateAdjustment(ctx.Request().Context(), ctx.Param("id"), actorID(ctx), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, adj)
}

// feeStatus recomputes the status on read, so it never lags behind its sources.
func (api *paymentApi) feeStatus(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	stud, err := api.students.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	year, err := api.years.Resolve(reqCtx, ctx.QueryParam("academicYearId"))
	if err != nil {
		return err
	}
	fs, err := api.ledger.Recalculate(reqCtx, stud.ID, year.ID)
	if err != nil {
		return errors.Wrap(err, "recalculating fee status")
	}
	return ctx.JSON(http.StatusOK, fs)
}

func (api *paymentApi) updateFeeStatus(ctx echo.Context) error {
	var data FeeStatusPatch
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	stud, err := api.students.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	year, err := api.years.Resolve(reqCtx, data.AcademicYearID)
	if err != nil {
		return err
	}
	fs, err := api.ledger.SetLatePayment(reqCtx, stud.ID, year.ID, *data.IsLatePayment)
	if err != nil {
		return errors.Wrap(err, "updating fee status")
	}
	return ctx.JSON(http.StatusOK, fs)
}
