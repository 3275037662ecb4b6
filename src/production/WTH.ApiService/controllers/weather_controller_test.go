package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.ApiService/health"
	"gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.ApiService/middleware"
	engine "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Engine"
	logger "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Logger"
	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
	implementation "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Repository/Implementation"
)

var queryNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type minuteClock struct {
	mu   sync.Mutex
	next time.Time
}

func (c *minuteClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(time.Minute)
	return now
}

type testServer struct {
	router *gin.Engine
	repo   *implementation.MemoryReadingRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := implementation.NewMemoryReadingRepository()
	clock := &minuteClock{next: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}
	sub := engine.NewSubmitter(repo, engine.WithSubmitterClock(clock.Now), engine.WithSubmitterLogger(logger.Nop()))
	res := engine.NewResolver(repo,
		engine.WithResolverClock(func() time.Time { return queryNow }),
		engine.WithResolverLogger(logger.Nop()),
	)

	router := gin.New()
	router.Use(middleware.RequestID(logger.Nop()))
	NewWeatherController(sub, res, logger.Nop(), 5*time.Second).RegisterRoutes(router)
	NewHealthController(health.NewHealthChecker(repo, "memory")).RegisterRoutes(router)

	return &testServer{router: router, repo: repo}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) add(t *testing.T, body string) {
	t.Helper()
	w := s.do(http.MethodPost, "/api/v1/add", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Request processed successfully", w.Body.String())
}

func TestAddReadingValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"missing sensor", `{"temperature": 20, "humidity": 50}`, http.StatusBadRequest, "Invalid request sensor"},
		{"partially numeric sensor", `{"sensor": "1a", "temperature": 20, "humidity": 50}`, http.StatusBadRequest, "Invalid request sensor"},
		{"zero sensor", `{"sensor": "0", "temperature": 20, "humidity": 50}`, http.StatusBadRequest, "Invalid request sensor"},
		{"missing temperature", `{"sensor": "1", "humidity": 50}`, http.StatusBadRequest, "Invalid request temperature"},
		{"temperature too high", `{"sensor": "1", "temperature": 300.5, "humidity": 50}`, http.StatusBadRequest, "Invalid request temperature"},
		{"temperature too low", `{"sensor": "1", "temperature": -101, "humidity": 50}`, http.StatusBadRequest, "Invalid request temperature"},
		{"missing humidity", `{"sensor": "1", "temperature": 20}`, http.StatusBadRequest, "Invalid request humidity"},
		{"humidity too high", `{"sensor": "1", "temperature": 20, "humidity": 101}`, http.StatusBadRequest, "Invalid request humidity"},
		{"malformed body", `{"sensor": `, http.StatusBadRequest, "Invalid request body"},
		{"boundaries accepted", `{"sensor": "1", "temperature": -100, "humidity": 100}`, http.StatusOK, "Request processed successfully"},
		{"numeric sensor accepted", `{"sensor": 1, "temperature": 20, "humidity": 50}`, http.StatusOK, "Request processed successfully"},
		{"fractional numeric sensor", `{"sensor": 1.5, "temperature": 20, "humidity": 50}`, http.StatusBadRequest, "Invalid request sensor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/v1/add", tt.body)
			require.Equal(t, tt.code, w.Code)
			require.Equal(t, tt.msg, w.Body.String())
		})
	}

	sensors, err := s.repo.ListSensors(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"1"}, sensors)
}

func TestEmptyStore(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/all-sensors", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/sensors?metric=temperature", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())
}

func TestLatestValueScenario(t *testing.T) {
	s := newTestServer(t)
	s.add(t, `{"sensor": "1", "temperature": 25.5, "humidity": 50}`)

	w := s.do(http.MethodGet, "/api/v1/all-sensors", "")
	require.JSONEq(t, `["1"]`, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/sensors?sensors=1&metric=temperature", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[{
		"sensor": "1",
		"temperature": 25.5,
		"startDate": "2024-03-10T10:00:00Z",
		"endDate": "2024-03-10T10:00:00Z"
	}]`, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/sensors?metric=temperature,humidity", "")
	require.JSONEq(t, `[{
		"sensor": "1",
		"temperature": 25.5,
		"humidity": 50,
		"startDate": "2024-03-10T10:00:00Z",
		"endDate": "2024-03-10T10:00:00Z"
	}]`, w.Body.String())
}

func TestRangedAggregationScenario(t *testing.T) {
	s := newTestServer(t)
	s.add(t, `{"sensor": "1", "temperature": 10, "humidity": 40}`)
	s.add(t, `{"sensor": "1", "temperature": 20, "humidity": 50}`)
	s.add(t, `{"sensor": "1", "temperature": 30, "humidity": 60}`)
	s.add(t, `{"sensor": "2", "temperature": 99, "humidity": 99}`)

	window := "&startDate=2024-03-01T00:00:00&endDate=2024-03-15T00:00:00"
	tests := []struct {
		statistic string
		want      string
	}{
		{"", `[{"sensor":"1","temperature":20,"humidity":50,"statistic":"average","startDate":"2024-03-01T00:00","endDate":"2024-03-15T00:00"}]`},
		{"sum", `[{"sensor":"1","temperature":60,"humidity":150,"statistic":"sum","startDate":"2024-03-01T00:00","endDate":"2024-03-15T00:00"}]`},
		{"min", `[{"sensor":"1","temperature":10,"humidity":40,"statistic":"min","startDate":"2024-03-01T00:00","endDate":"2024-03-15T00:00"}]`},
		{"max", `[{"sensor":"1","temperature":30,"humidity":60,"statistic":"max","startDate":"2024-03-01T00:00","endDate":"2024-03-15T00:00"}]`},
	}
	for _, tt := range tests {
		t.Run("statistic="+tt.statistic, func(t *testing.T) {
			target := "/api/v1/sensors?sensors=1&metric=temperature&metric=humidity" + window
			if tt.statistic != "" {
				target += "&statistic=" + tt.statistic
			}
			w := s.do(http.MethodGet, target, "")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			require.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestQueryValidationMessages(t *testing.T) {
	s := newTestServer(t)
	s.add(t, `{"sensor": "1", "temperature": 10, "humidity": 40}`)

	tests := []struct {
		name  string
		query string
		msg   string
	}{
		{"unknown sensor", "sensors=1,2&metric=temperature", "Invalid request, sensor does not exist"},
		{"only start date", "metric=temperature&startDate=2024-03-01T00:00:00", "Invalid date values provided"},
		{"future end date", "metric=temperature&startDate=2024-03-14T00:00:00&endDate=2024-03-16T00:00:00", "Invalid date values provided"},
		{"window too long", "metric=temperature&startDate=2024-01-01T00:00:00&endDate=2024-03-01T00:00:00", "Invalid date values provided"},
		{"bad date", "metric=temperature&startDate=nope&endDate=2024-03-01T00:00:00", "Invalid date values provided"},
		{"no metric", "sensors=1", "Invalid request, metric must be temperature or humidity or both"},
		{"bad metric", "metric=pressure", "Invalid request, metric must be temperature or humidity or both"},
		{"bad statistic", "metric=humidity&statistic=median", "Invalid request, statistic must be min, max, sum or average. If not provided, the default value is average"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodGet, "/api/v1/sensors?"+tt.query, "")
			require.Equal(t, http.StatusBadRequest, w.Code)
			require.Equal(t, tt.msg, w.Body.String())
		})
	}
}

type failingSubmitter struct{}

func (failingSubmitter) Submit(context.Context, string, *decimal.Decimal, *int) (*wthmodels.Reading, error) {
	return nil, errors.Join(engine.ErrStoreFailure, errors.New("disk full"))
}

type failingQuerier struct{}

func (failingQuerier) ListSensors(context.Context) ([]string, error) {
	return nil, errors.Join(engine.ErrStoreFailure, errors.New("timeout"))
}

func (failingQuerier) Resolve(context.Context, wthmodels.Query) ([]wthmodels.SensorResult, error) {
	return nil, errors.Join(engine.ErrStoreFailure, errors.New("timeout"))
}

func TestStoreFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewWeatherController(failingSubmitter{}, failingQuerier{}, logger.Nop(), time.Second).RegisterRoutes(router)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/add", strings.NewReader(`{"sensor":"1","temperature":1,"humidity":1}`))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "Error while saving to database", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sensors?metric=temperature", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "Error while reading from database", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/all-sensors", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.add(t, `{"sensor": "7", "temperature": 1, "humidity": 1}`)

	w := s.do(http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"backend":"memory"`)

	w = s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "wth_readings_submitted_total")
}
