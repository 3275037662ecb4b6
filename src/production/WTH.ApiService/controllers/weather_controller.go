package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.ApiService/middleware"
	engine "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Engine"
	logger "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Logger"
	metrics "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Metrics"
	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
	api_models "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models/api"
)

// ReadingSubmitter stores validated readings
type ReadingSubmitter interface {
	Submit(ctx context.Context, sensor string, temperature *decimal.Decimal, humidity *int) (*wthmodels.Reading, error)
}

// SensorQuerier answers sensor queries
type SensorQuerier interface {
	ListSensors(ctx context.Context) ([]string, error)
	Resolve(ctx context.Context, q wthmodels.Query) ([]wthmodels.SensorResult, error)
}

// WeatherController handles reading submission and sensor queries
type WeatherController struct {
	submitter    ReadingSubmitter
	querier      SensorQuerier
	logger       *logger.Logger
	queryTimeout time.Duration
}

// NewWeatherController creates a new weather controller
func NewWeatherController(submitter ReadingSubmitter, querier SensorQuerier, logger *logger.Logger, queryTimeout time.Duration) *WeatherController {
	return &WeatherController{
		submitter:    submitter,
		querier:      querier,
		logger:       logger.WithComponent("weather_controller"),
		queryTimeout: queryTimeout,
	}
}

// RegisterRoutes registers the weather routes with Gin
func (c *WeatherController) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/add", c.AddReading)
		v1.GET("/all-sensors", c.AllSensors)
		v1.GET("/sensors", c.GetSensorsData)
	}
}

// AddReading validates and stores a reading; the server assigns its timestamp
func (c *WeatherController) AddReading(ctx *gin.Context) {
	log := middleware.LoggerFromGinContext(ctx, c.logger)

	var req api_models.AddReadingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		log.Logger.Warn().Err(err).Msg("Rejected undecodable reading")
		metrics.ReadingsSubmitted.WithLabelValues(metrics.SourceHTTP, metrics.ResultInvalid).Inc()
		ctx.String(http.StatusBadRequest, api_models.MsgInvalidBody)
		return
	}

	rd, err := c.submitter.Submit(ctx.Request.Context(), req.SensorValue(), req.Temperature, req.Humidity)
	metrics.ReadingsSubmitted.WithLabelValues(metrics.SourceHTTP, metrics.Result(err)).Inc()

	switch {
	case err == nil:
		log.Logger.Debug().Str("sensor", rd.Sensor).Str("reading_id", rd.ID).Msg("Reading stored")
		ctx.String(http.StatusOK, api_models.MsgProcessed)
	case engine.IsValidation(err):
		log.Logger.Warn().Err(err).Str("sensor", req.SensorValue()).Msg("Rejected invalid reading")
		ctx.String(http.StatusBadRequest, engine.SubmitMessage(err))
	default:
		log.ErrorWithError(err, "Failed to store reading")
		ctx.String(http.StatusInternalServerError, engine.SubmitMessage(err))
	}
}

// AllSensors lists every known sensor id in first-seen order
func (c *WeatherController) AllSensors(ctx *gin.Context) {
	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), c.queryTimeout)
	defer cancel()

	sensors, err := c.querier.ListSensors(reqCtx)
	if err != nil {
		middleware.LoggerFromGinContext(ctx, c.logger).ErrorWithError(err, "Failed to list sensors")
		ctx.String(http.StatusInternalServerError, api_models.MsgReadFailed)
		return
	}
	ctx.JSON(http.StatusOK, sensors)
}

// GetSensorsData answers a latest-value or ranged query.
//
// sensors and metric accept repeated parameters and comma-separated values.
func (c *WeatherController) GetSensorsData(ctx *gin.Context) {
	log := middleware.LoggerFromGinContext(ctx, c.logger)

	q := wthmodels.Query{
		Sensors:   listParam(ctx, "sensors"),
		Metrics:   listParam(ctx, "metric"),
		Statistic: ctx.Query("statistic"),
		StartDate: ctx.Query("startDate"),
		EndDate:   ctx.Query("endDate"),
	}
	mode := metrics.ModeLatest
	if q.Ranged() {
		mode = metrics.ModeRanged
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), c.queryTimeout)
	defer cancel()

	start := time.Now()
	results, err := c.querier.Resolve(reqCtx, q)
	metrics.QueryDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	metrics.Queries.WithLabelValues(mode, metrics.Result(err)).Inc()

	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, results)
	case engine.IsValidation(err):
		log.Logger.Warn().Err(err).Strs("sensors", q.Sensors).Strs("metrics", q.Metrics).Msg("Rejected invalid query")
		ctx.String(http.StatusBadRequest, engine.QueryMessage(err))
	default:
		log.ErrorWithError(err, "Failed to resolve sensor query")
		ctx.String(http.StatusInternalServerError, engine.QueryMessage(err))
	}
}

// listParam collects a repeatable query parameter, splitting comma-separated values
func listParam(ctx *gin.Context, key string) []string {
	var out []string
	for _, raw := range ctx.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
