package transport

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/shotcoach"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	coach  *shotcoach.Coach
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger, _ := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	coach := shotcoach.New(shotcoach.WithLogger(logger), shotcoach.WithRegisterer(reg))
	h := NewHandler(coach, Config{PreviewSize: 64, Version: shotcoach.Version}, logger)
	return &testServer{
		router: InitRoutes(h, reg, RouterConfig{Timeout: 10 * time.Second, MaxUpload: 10 << 20}),
		coach:  coach,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func subjectPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 160, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 160; x++ {
			c := color.NRGBA{R: 60, G: 60, B: 60, A: 255}
			if x >= 50 && x < 100 && y >= 30 && y < 90 {
				c = color.NRGBA{R: 250, G: 250, B: 250, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, target string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if data != nil {
		part, err := w.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"shotcoach","version":"`+shotcoach.Version+`"}`, rec.Body.String())
}

func TestEvaluateJSON(t *testing.T) {
	s := newTestServer(t)
	body := `{"composition":"centerFraming","observation":{"x":0.7,"y":0.45,"w":0.1,"h":0.1},"frame":{"width":1920,"height":1080}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/composition/evaluate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "centerFraming", got["composition"])
	assert.Equal(t, "Move subject left to center", got["suggestion"])
}

func TestEvaluateBadRequest(t *testing.T) {
	s := newTestServer(t)
	for _, body := range []string{`{"composition":"spiral"}`, `{}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/v1/composition/evaluate", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		assert.Equal(t, http.StatusBadRequest, s.do(req).Code, body)
	}
}

func TestEvaluateUpload(t *testing.T) {
	s := newTestServer(t)
	req := multipartRequest(t, "/v1/composition/evaluate", subjectPNG(t), map[string]string{"composition": "symmetry"})

	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"composition":"symmetry"`)
}

func TestBlur(t *testing.T) {
	s := newTestServer(t)
	data := subjectPNG(t)

	rec := s.do(multipartRequest(t, "/v1/blur", data, map[string]string{"intensity": "8", "format": "png"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	fingerprint := rec.Header().Get("X-Image-Fingerprint")
	require.NotEmpty(t, fingerprint)

	out, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 160, 120), out.Bounds())

	rec = s.do(multipartRequest(t, "/v1/blur/preview", data, map[string]string{"intensity": "8", "format": "png"}))
	require.Equal(t, http.StatusOK, rec.Code)
	preview, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), preview.Bounds())

	rec = s.do(httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		TrackedImages int `json:"tracked_images"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, s.coach.CacheStats().TrackedImages, stats.TrackedImages)
	assert.Equal(t, 1, stats.TrackedImages)

	rec = s.do(httptest.NewRequest(http.MethodDelete, "/v1/cache/"+fingerprint, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"fingerprint":"`+fingerprint+`","removed":3}`, rec.Body.String())
}

func TestBlurValidation(t *testing.T) {
	s := newTestServer(t)
	data := subjectPNG(t)

	assert.Equal(t, http.StatusBadRequest, s.do(multipartRequest(t, "/v1/blur", data, map[string]string{"intensity": "25"})).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(multipartRequest(t, "/v1/blur", data, map[string]string{"intensity": "NaN"})).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(multipartRequest(t, "/v1/blur", data, map[string]string{"intensity": "+Inf"})).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(multipartRequest(t, "/v1/blur/preview", data, map[string]string{"intensity": "nan"})).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(multipartRequest(t, "/v1/blur", data, map[string]string{"cache": "maybe"})).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(multipartRequest(t, "/v1/blur", nil, nil)).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(multipartRequest(t, "/v1/blur", []byte("not an image"), nil)).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(multipartRequest(t, "/v1/blur/preview", data, map[string]string{"size": "0"})).Code)
}

func TestSessionRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/v1/session", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(multipartRequest(t, "/v1/session", subjectPNG(t), nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	var started struct {
		ID    string `json:"id"`
		Image string `json:"image"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.NotEmpty(t, started.ID)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/v1/session", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), started.ID)

	assert.Equal(t, http.StatusBadRequest, s.do(httptest.NewRequest(http.MethodDelete, "/v1/session?mode=later", nil)).Code)
	assert.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodDelete, "/v1/session?mode=keep", nil)).Code)

	_, ok := s.coach.ActiveSession()
	assert.False(t, ok)
}

func TestCacheAndMemoryPressure(t *testing.T) {
	s := newTestServer(t)
	s.do(multipartRequest(t, "/v1/blur", subjectPNG(t), map[string]string{"intensity": "5"}))
	require.NotZero(t, s.coach.CacheStats().TotalBytes)

	rec := s.do(httptest.NewRequest(http.MethodPost, "/v1/memory-pressure", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, s.coach.CacheStats().TotalBytes)

	rec = s.do(httptest.NewRequest(http.MethodDelete, "/v1/cache", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t)
	s.do(multipartRequest(t, "/v1/blur", subjectPNG(t), map[string]string{"intensity": "5"}))

	rec := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shotcoach_cache_misses_total")
}
