package api

import (
	"errors"
	"net/http"

	models "FinHybrid/internal/domain/models"
	domrepo "FinHybrid/internal/domain/repository"
	"FinHybrid/internal/service/ratelimit"
	"FinHybrid/internal/services/hybrid"
	"FinHybrid/internal/usecase"
	xhttp "FinHybrid/pkg/http"
	xlogger "FinHybrid/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ModelInfo exposes the read-only state of the hybrid model.
type ModelInfo interface {
	Config() hybrid.Config
	Mode() hybrid.Mode
	Templates() []hybrid.PatternTemplate
}

// HybridEchoHandler serves the prediction and training API.
type HybridEchoHandler struct {
	logger  *xlogger.Logger
	predict *usecase.PredictUseCase
	train   *usecase.TrainUseCase
	model   ModelInfo
	limiter *ratelimit.Limiter
}

func NewHybridEchoHandler(
	logger *xlogger.Logger,
	predict *usecase.PredictUseCase,
	train *usecase.TrainUseCase,
	model ModelInfo,
	limiter *ratelimit.Limiter,
) *HybridEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &HybridEchoHandler{logger: logger, predict: predict, train: train, model: model, limiter: limiter}
}

func (h *HybridEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/hybrid")
	if h.limiter != nil {
		g.Use(ratelimit.Middleware(h.limiter))
	}
	g.POST("/predict", h.Predict)
	g.POST("/train", h.Train)
	g.GET("/train/status", h.TrainStatus)
	g.GET("/history", h.History)
	g.GET("/config", h.Config)
	g.GET("/patterns", h.Patterns)
}

func (h *HybridEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	pred, err := h.predict.Execute(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("predict usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err, xhttp.BadGatewayError("prediction failed")))
	}
	return xhttp.SuccessResponse(c, pred)
}

func (h *HybridEchoHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	status, err := h.train.Start(c.Request().Context(), *req)
	if err != nil {
		h.logger.Warn("train usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err, xhttp.InternalError("training could not start")))
	}
	return xhttp.AcceptedResponse(c, status)
}

func (h *HybridEchoHandler) TrainStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.train.Status())
}

func (h *HybridEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.train.History(req.Last))
}

func (h *HybridEchoHandler) Config(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"mode":   h.model.Mode(),
		"config": h.model.Config(),
	})
}

func (h *HybridEchoHandler) Patterns(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, h.model.Templates())
}

// toAppError maps use case errors to HTTP errors, falling back to fallback.
func toAppError(err error, fallback *xhttp.AppError) *xhttp.AppError {
	switch {
	case errors.Is(err, hybrid.ErrEmptyInput),
		errors.Is(err, hybrid.ErrLabelMismatch),
		errors.Is(err, usecase.ErrInvalidLabel):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, hybrid.ErrTrainingInProgress):
		return xhttp.ConflictError(err.Error())
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.NotFoundError(err.Error())
	case errors.Is(err, usecase.ErrNoFeatureStore):
		return xhttp.NewAppError("ERR_UNAVAILABLE", "symbol", err.Error(), http.StatusServiceUnavailable)
	}
	return fallback.WithError(err)
}

var _ xhttp.Handler = (*HybridEchoHandler)(nil)
