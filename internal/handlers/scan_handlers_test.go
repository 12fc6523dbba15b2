package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vigil/internal/models"
	"vigil/internal/services"
	vigilerrors "vigil/pkg/errors"
	"vigil/pkg/hub"
	"vigil/pkg/logger"
)

type MockScanService struct {
	mock.Mock
}

func (m *MockScanService) StartScan(ctx context.Context, req services.ScanRequest) (*models.Scan, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Scan), args.Error(1)
}

func (m *MockScanService) GetScanStatus(ctx context.Context, scanID string) (*models.Scan, error) {
	args := m.Called(scanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Scan), args.Error(1)
}

func (m *MockScanService) ListScans(ctx context.Context, limit int) ([]models.Scan, error) {
	args := m.Called(limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Scan), args.Error(1)
}

type staticResolver map[string][]string

func (r staticResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := r[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

func testValidator() *TargetValidator {
	return &TargetValidator{Resolver: staticResolver{
		"example.com":  {"93.184.216.34"},
		"intranet.lan": {"10.0.0.12"},
	}}
}

var startedAt = time.Date(2026, 5, 1, 9, 55, 0, 0, time.UTC)

func runningScan(id, target string) *models.Scan {
	return &models.Scan{
		ScanID:    id,
		Target:    target,
		Status:    models.StatusRunning,
		Timeout:   300,
		StartedAt: startedAt,
		Results:   []models.ScanResult{},
	}
}

func TestStartScan(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		requestBody    string
		setupMock      func(*MockScanService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:        "Valid Request - Accepted",
			requestBody: `{"target":"https://example.com","modules":["nuclei","nikto"],"timeout":60}`,
			setupMock: func(m *MockScanService) {
				m.On("StartScan", services.ScanRequest{
					Target:  "https://example.com",
					Modules: []string{"nuclei", "nikto"},
					Timeout: 60,
				}).Return(runningScan("20260501-095500-abcd1234", "https://example.com"), nil)
			},
			expectedStatus: 202,
			expectedBody:   `{"scan_id":"20260501-095500-abcd1234","target":"https://example.com","status":"running","timeout":300,"started_at":"2026-05-01T09:55:00Z","results":[]}`,
		},
		{
			name:           "Invalid JSON - Malformed",
			requestBody:    `{"target":}`,
			setupMock:      func(m *MockScanService) {},
			expectedStatus: 400,
			expectedBody:   `{"error":"Invalid request payload"}`,
		},
		{
			name:           "Missing Required Field - target",
			requestBody:    `{"modules":["zap"]}`,
			setupMock:      func(m *MockScanService) {},
			expectedStatus: 400,
			expectedBody:   `{"error":"Invalid request payload"}`,
		},
		{
			name:           "Unsupported Scheme",
			requestBody:    `{"target":"ftp://example.com"}`,
			setupMock:      func(m *MockScanService) {},
			expectedStatus: 400,
			expectedBody:   `{"error":"invalid target: must use http or https"}`,
		},
		{
			name:           "Private Target",
			requestBody:    `{"target":"http://intranet.lan"}`,
			setupMock:      func(m *MockScanService) {},
			expectedStatus: 400,
			expectedBody:   `{"error":"invalid target: resolves to a private or reserved address"}`,
		},
		{
			name:        "Service Validation Error",
			requestBody: `{"target":"https://example.com","timeout":9000}`,
			setupMock: func(m *MockScanService) {
				m.On("StartScan", mock.AnythingOfType("services.ScanRequest")).
					Return(nil, vigilerrors.NewValidationError("timeout", "must be between 1 and 3600 seconds"))
			},
			expectedStatus: 400,
			expectedBody:   `{"error":"invalid timeout: must be between 1 and 3600 seconds"}`,
		},
		{
			name:        "Service Error - Internal Error",
			requestBody: `{"target":"https://example.com"}`,
			setupMock: func(m *MockScanService) {
				m.On("StartScan", mock.AnythingOfType("services.ScanRequest")).
					Return(nil, errors.New("database connection failed"))
			},
			expectedStatus: 500,
			expectedBody:   `{"error":"Failed to start scan"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockScanService)
			tt.setupMock(mockService)

			handler := NewScanHandler(mockService, testValidator(), hub.New(hub.Options{}), logger.Discard())

			router := gin.New()
			router.POST("/api/scans", handler.StartScan)

			req, err := http.NewRequest("POST", "/api/scans", strings.NewReader(tt.requestBody))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code,
				"Expected status %d, got %d. Response: %s",
				tt.expectedStatus, w.Code, w.Body.String())
			assert.JSONEq(t, tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}

func TestGetScanStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		scanID         string
		setupMock      func(*MockScanService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "Scan Found",
			scanID: "20260501-095500-abcd1234",
			setupMock: func(m *MockScanService) {
				m.On("GetScanStatus", "20260501-095500-abcd1234").
					Return(runningScan("20260501-095500-abcd1234", "https://example.com"), nil)
			},
			expectedStatus: 200,
		},
		{
			name:   "Scan Not Found",
			scanID: "non-existent-id",
			setupMock: func(m *MockScanService) {
				m.On("GetScanStatus", "non-existent-id").Return(nil, vigilerrors.ErrScanNotFound)
			},
			expectedStatus: 404,
			expectedBody:   `{"error":"Scan not found"}`,
		},
		{
			name:   "Store Failure",
			scanID: "some-id",
			setupMock: func(m *MockScanService) {
				m.On("GetScanStatus", "some-id").Return(nil, errors.New("connection reset"))
			},
			expectedStatus: 500,
			expectedBody:   `{"error":"Failed to get scan"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockScanService)
			tt.setupMock(mockService)

			handler := NewScanHandler(mockService, testValidator(), hub.New(hub.Options{}), logger.Discard())
			router := gin.New()
			router.GET("/api/scans/:id", handler.GetScanStatus)

			req, _ := http.NewRequest("GET", fmt.Sprintf("/api/scans/%s", tt.scanID), nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			} else {
				var scan models.Scan
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &scan))
				assert.Equal(t, tt.scanID, scan.ScanID)
			}

			mockService.AssertExpectations(t)
		})
	}
}

func TestListScans(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		query          string
		setupMock      func(*MockScanService)
		expectedStatus int
		expectedCount  int
	}{
		{
			name:  "Default Limit",
			query: "",
			setupMock: func(m *MockScanService) {
				m.On("ListScans", 0).Return([]models.Scan{
					*runningScan("b", "https://b.example.com"),
					*runningScan("a", "https://a.example.com"),
				}, nil)
			},
			expectedStatus: 200,
			expectedCount:  2,
		},
		{
			name:  "Explicit Limit",
			query: "?limit=1",
			setupMock: func(m *MockScanService) {
				m.On("ListScans", 1).Return([]models.Scan{*runningScan("b", "https://b.example.com")}, nil)
			},
			expectedStatus: 200,
			expectedCount:  1,
		},
		{
			name:           "Invalid Limit",
			query:          "?limit=abc",
			setupMock:      func(m *MockScanService) {},
			expectedStatus: 400,
		},
		{
			name:  "Store Failure",
			query: "",
			setupMock: func(m *MockScanService) {
				m.On("ListScans", 0).Return(nil, errors.New("timeout"))
			},
			expectedStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockScanService)
			tt.setupMock(mockService)

			handler := NewScanHandler(mockService, testValidator(), hub.New(hub.Options{}), logger.Discard())
			router := gin.New()
			router.GET("/api/scans", handler.ListScans)

			req, _ := http.NewRequest("GET", "/api/scans"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == 200 {
				var scans []models.Scan
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &scans))
				assert.Len(t, scans, tt.expectedCount)
			}

			mockService.AssertExpectations(t)
		})
	}
}

func TestStreamScanLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	const scanID = "20260501-095500-abcd1234"
	h := hub.New(hub.Options{Keepalive: time.Hour, Logger: logger.Discard()})

	mockService := new(MockScanService)
	mockService.On("GetScanStatus", scanID).Return(runningScan(scanID, "https://example.com"), nil)

	handler := NewScanHandler(mockService, testValidator(), h, logger.Discard())
	router := gin.New()
	router.GET("/api/scans/:id/logs", handler.StreamScanLogs)

	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for h.Subscribers(scanID) == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		h.Publish(scanID, hub.Docker("nuclei", "Running module nuclei", ""))
		h.Publish(scanID, hub.Success("nuclei", "Module nuclei completed with 1 finding(s)", 1, "success"))
		h.MarkComplete(scanID)
	}()

	req, _ := http.NewRequest("GET", "/api/scans/"+scanID+"/logs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := strings.Split(strings.TrimSuffix(w.Body.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 4)

	var types []string
	for _, f := range frames {
		require.True(t, strings.HasPrefix(f, "data: "), f)
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(f, "data: ")), &ev))
		types = append(types, ev["type"].(string))
	}
	assert.Equal(t, []string{"connected", "docker", "success", "complete"}, types)
}

func TestStreamScanLogs_UnknownScan(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockService := new(MockScanService)
	mockService.On("GetScanStatus", "missing").Return(nil, vigilerrors.ErrScanNotFound)

	handler := NewScanHandler(mockService, testValidator(), hub.New(hub.Options{}), logger.Discard())
	router := gin.New()
	router.GET("/api/scans/:id/logs", handler.StreamScanLogs)

	req, _ := http.NewRequest("GET", "/api/scans/missing/logs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 404, w.Code)
	assert.JSONEq(t, `{"error":"Scan not found"}`, w.Body.String())
}
