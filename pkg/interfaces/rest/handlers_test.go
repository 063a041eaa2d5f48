package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/vsinha/forgetrace/pkg/application/services/engine"
	"github.com/vsinha/forgetrace/pkg/infrastructure/events"
	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
	testhelpers "github.com/vsinha/forgetrace/pkg/infrastructure/testing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, cfg RouterConfig) (*gin.Engine, *testhelpers.ShopFixture) {
	t.Helper()
	store, fixture := testhelpers.NewForgeShop(1)
	e := engine.NewEngine(store, events.NewInMemoryEventStore(), logger.Discard(), nil).
		WithClock(func() time.Time { return testhelpers.ShopReceivedAt })
	return NewRouter(NewHandler(e, NewValidator()), logger.Discard(), cfg), fixture
}

func hour(h int) string {
	return testhelpers.ShopReceivedAt.Add(time.Duration(h) * time.Hour).Format(time.RFC3339)
}

func do(t *testing.T, r *gin.Engine, tenant, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set(HeaderTenantID, tenant)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("Failed to decode %q: %v", w.Body.String(), err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("Expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
}

// forgeThroughAPI creates, starts and ends a forge batch that draws 60 kg for
// 100 pieces and reports 90 completed, 5 rejected and 5 for rework
func forgeThroughAPI(t *testing.T, r *gin.Engine, f *testhelpers.ShopFixture) allocationView {
	t.Helper()
	w := do(t, r, "1", http.MethodPost, "/api/v1/batches", gin.H{
		"stage":       "Forge",
		"resource_id": f.ForgeLines[0],
		"item_id":     11,
		"number":      "F-001",
		"pieces":      100,
		"heats":       []gin.H{{"heat_id": f.WeightHeat, "quantity": "60"}},
		"payload":     gin.H{"forging_temperature_c": 1180, "equipment": "3T hammer"},
	})
	expectStatus(t, w, http.StatusCreated)
	var batch batchView
	decode(t, w, &batch)
	if batch.Status != "Applied" || batch.Stage != "Forge" {
		t.Fatalf("Expected an applied forge batch, got %s %s", batch.Stage, batch.Status)
	}

	path := "/api/v1/batches/" + strconv.FormatInt(batch.ID, 10)
	w = do(t, r, "1", http.MethodPost, path+"/start", gin.H{"start_at": hour(1)})
	expectStatus(t, w, http.StatusOK)

	w = do(t, r, "1", http.MethodPost, path+"/end", gin.H{
		"end_at":    hour(2),
		"completed": 90,
		"rejected":  5,
		"rework":    5,
	})
	expectStatus(t, w, http.StatusCreated)
	var allocation allocationView
	decode(t, w, &allocation)
	return allocation
}

func TestRouter_ForgeLifecycle(t *testing.T) {
	r, f := newTestRouter(t, RouterConfig{})
	allocation := forgeThroughAPI(t, r, f)

	if allocation.AvailablePiecesCount != 90 {
		t.Errorf("Expected 90 available pieces, got %d", allocation.AvailablePiecesCount)
	}
	if allocation.ReworkAvailableForRework != 5 {
		t.Errorf("Expected 5 pieces in the rework pool, got %d", allocation.ReworkAvailableForRework)
	}

	w := do(t, r, "1", http.MethodGet, fmt.Sprintf("/api/v1/heats/%d", f.WeightHeat), nil)
	expectStatus(t, w, http.StatusOK)
	var heat heatView
	decode(t, w, &heat)
	if !heat.AvailableQuantity.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected 40 kg left on the heat, got %s", heat.AvailableQuantity)
	}

	w = do(t, r, "1", http.MethodGet, fmt.Sprintf("/api/v1/allocations/%d/trace", allocation.ID), nil)
	expectStatus(t, w, http.StatusOK)
	var trace traceView
	decode(t, w, &trace)
	if len(trace.Links) != 1 || len(trace.Heats) != 1 {
		t.Fatalf("Expected one link and one heat, got %d and %d", len(trace.Links), len(trace.Heats))
	}
	if trace.Heats[0].HeatID != int64(f.WeightHeat) || trace.Heats[0].Stage != "Forge" {
		t.Errorf("Expected forge use of heat %d, got %+v", f.WeightHeat, trace.Heats[0])
	}

	w = do(t, r, "1", http.MethodGet, "/api/v1/allocations?stage=Forge", nil)
	expectStatus(t, w, http.StatusOK)
	var listed struct {
		Allocations []allocationView `json:"allocations"`
	}
	decode(t, w, &listed)
	if len(listed.Allocations) != 1 || listed.Allocations[0].ID != allocation.ID {
		t.Errorf("Expected allocation %d listed, got %+v", allocation.ID, listed.Allocations)
	}
}

func TestRouter_DownstreamAndRework(t *testing.T) {
	r, f := newTestRouter(t, RouterConfig{})
	allocation := forgeThroughAPI(t, r, f)

	w := do(t, r, "1", http.MethodPost, "/api/v1/batches", gin.H{
		"stage":                  "HeatTreatment",
		"resource_id":            f.Furnace,
		"item_id":                11,
		"upstream_allocation_id": allocation.ID,
		"pieces":                 60,
		"payload":                gin.H{"furnace_temperature_c": 850, "charge_weight": "42.5"},
	})
	expectStatus(t, w, http.StatusCreated)
	var batch batchView
	decode(t, w, &batch)
	if batch.UpstreamAllocationID != allocation.ID || batch.InitialPieces != 60 {
		t.Errorf("Expected 60 pieces from allocation %d, got %d from %d", allocation.ID, batch.InitialPieces, batch.UpstreamAllocationID)
	}

	w = do(t, r, "1", http.MethodGet, fmt.Sprintf("/api/v1/allocations/%d/batches", allocation.ID), nil)
	expectStatus(t, w, http.StatusOK)
	var fed struct {
		Batches []batchView `json:"batches"`
	}
	decode(t, w, &fed)
	if len(fed.Batches) != 1 || fed.Batches[0].ID != batch.ID {
		t.Errorf("Expected batch %d fed by the allocation, got %+v", batch.ID, fed.Batches)
	}

	w = do(t, r, "1", http.MethodPost, fmt.Sprintf("/api/v1/allocations/%d/rework", allocation.ID), gin.H{
		"pieces":      5,
		"resource_id": f.ForgeLines[1],
	})
	expectStatus(t, w, http.StatusCreated)
	var rework batchView
	decode(t, w, &rework)
	if rework.Type != "Rework" || rework.Stage != "Forge" {
		t.Errorf("Expected a forge rework batch, got %s %s", rework.Stage, rework.Type)
	}

	w = do(t, r, "1", http.MethodGet, fmt.Sprintf("/api/v1/allocations/%d", allocation.ID), nil)
	expectStatus(t, w, http.StatusOK)
	var after allocationView
	decode(t, w, &after)
	if after.AvailablePiecesCount != 30 || after.ReworkAvailableForRework != 0 {
		t.Errorf("Expected 30 available and an empty rework pool, got %d and %d", after.AvailablePiecesCount, after.ReworkAvailableForRework)
	}
}

func TestRouter_ErrorMapping(t *testing.T) {
	r, f := newTestRouter(t, RouterConfig{})
	allocation := forgeThroughAPI(t, r, f)

	testCases := []struct {
		name   string
		tenant string
		method string
		path   string
		body   interface{}
		status int
		kind   string
	}{
		{"missing tenant", "", http.MethodGet, "/api/v1/heats/1", nil, http.StatusBadRequest, ""},
		{"bad id", "1", http.MethodGet, "/api/v1/heats/abc", nil, http.StatusBadRequest, "Validation"},
		{"unknown heat", "1", http.MethodGet, "/api/v1/heats/999", nil, http.StatusNotFound, "NotFound"},
		{"other tenant", "2", http.MethodGet, fmt.Sprintf("/api/v1/allocations/%d", allocation.ID), nil, http.StatusNotFound, "NotFound"},
		{"unknown stage", "1", http.MethodPost, "/api/v1/batches", gin.H{"stage": "Smelting", "resource_id": 1, "pieces": 1}, http.StatusBadRequest, "Validation"},
		{"list without stage", "1", http.MethodGet, "/api/v1/allocations", nil, http.StatusBadRequest, "Validation"},
		{
			"overdraw", "1", http.MethodPost, fmt.Sprintf("/api/v1/allocations/%d/consume", allocation.ID),
			gin.H{"pieces": 91}, http.StatusUnprocessableEntity, "InsufficientAvailability",
		},
		{
			"heat overdraw", "1", http.MethodPost, "/api/v1/batches",
			gin.H{"stage": "Forge", "resource_id": f.ForgeLines[1], "pieces": 10, "heats": []gin.H{{"heat_id": f.WeightHeat, "quantity": "41"}}},
			http.StatusUnprocessableEntity, "InsufficientInventory",
		},
		{
			"skipped stage", "1", http.MethodPost, "/api/v1/batches",
			gin.H{"stage": "Machining", "resource_id": f.MachineSet, "pieces": 10, "upstream_allocation_id": allocation.ID},
			http.StatusUnprocessableEntity, "InvalidOperation",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, r, tc.tenant, tc.method, tc.path, tc.body)
			expectStatus(t, w, tc.status)
			if tc.kind == "" {
				return
			}
			var resp ErrorResponse
			decode(t, w, &resp)
			if resp.Kind != tc.kind {
				t.Errorf("Expected kind %s, got %s (%s)", tc.kind, resp.Kind, resp.Error)
			}
		})
	}
}

func TestRouter_StartTwiceConflicts(t *testing.T) {
	r, f := newTestRouter(t, RouterConfig{})

	w := do(t, r, "1", http.MethodPost, "/api/v1/batches", gin.H{
		"stage":       "Forge",
		"resource_id": f.ForgeLines[0],
		"pieces":      10,
		"heats":       []gin.H{{"heat_id": f.WeightHeat, "quantity": "6"}},
	})
	expectStatus(t, w, http.StatusCreated)
	var batch batchView
	decode(t, w, &batch)

	path := fmt.Sprintf("/api/v1/batches/%d/start", batch.ID)
	expectStatus(t, do(t, r, "1", http.MethodPost, path, gin.H{"start_at": hour(1)}), http.StatusOK)

	w = do(t, r, "1", http.MethodPost, path, gin.H{"start_at": hour(2)})
	expectStatus(t, w, http.StatusConflict)
	var resp ErrorResponse
	decode(t, w, &resp)
	if resp.Kind != "InvalidTransition" {
		t.Errorf("Expected InvalidTransition, got %s", resp.Kind)
	}
}

func TestRouter_DeleteAppliedBatch(t *testing.T) {
	r, f := newTestRouter(t, RouterConfig{})

	w := do(t, r, "1", http.MethodPost, "/api/v1/batches", gin.H{
		"stage":       "Forge",
		"resource_id": f.ForgeLines[0],
		"item_id":     11,
		"pieces":      10,
		"heats":       []gin.H{{"heat_id": f.WeightHeat, "quantity": "6"}},
	})
	expectStatus(t, w, http.StatusCreated)
	var batch batchView
	decode(t, w, &batch)
	path := fmt.Sprintf("/api/v1/batches/%d", batch.ID)

	expectStatus(t, do(t, r, "2", http.MethodDelete, path, nil), http.StatusNotFound)
	expectStatus(t, do(t, r, "1", http.MethodDelete, path, nil), http.StatusOK)
	expectStatus(t, do(t, r, "1", http.MethodGet, path, nil), http.StatusNotFound)
	expectStatus(t, do(t, r, "1", http.MethodDelete, path, nil), http.StatusNotFound)

	w = do(t, r, "1", http.MethodGet, fmt.Sprintf("/api/v1/heats/%d", f.WeightHeat), nil)
	expectStatus(t, w, http.StatusOK)
	var heat heatView
	decode(t, w, &heat)
	if !heat.AvailableQuantity.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected the heat back at 100 kg, got %s", heat.AvailableQuantity)
	}

	allocation := forgeThroughAPI(t, r, f)
	w = do(t, r, "1", http.MethodDelete, fmt.Sprintf("/api/v1/batches/%d", allocation.BatchID), nil)
	expectStatus(t, w, http.StatusConflict)
}

func TestRouter_HeatsAndResources(t *testing.T) {
	r, _ := newTestRouter(t, RouterConfig{})

	w := do(t, r, "1", http.MethodPost, "/api/v1/heats", gin.H{
		"number":   "H-4340-007",
		"mode":     "ByWeight",
		"quantity": "250.5",
	})
	expectStatus(t, w, http.StatusCreated)
	var heat heatView
	decode(t, w, &heat)
	if !heat.AvailableQuantity.Equal(decimal.RequireFromString("250.5")) || heat.Mode != "ByWeight" {
		t.Errorf("Expected 250.5 kg by weight, got %s %s", heat.AvailableQuantity, heat.Mode)
	}

	w = do(t, r, "1", http.MethodPost, "/api/v1/heats", gin.H{"number": "H-1", "mode": "ByVolume"})
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, r, "1", http.MethodPost, "/api/v1/resources", gin.H{"name": "Press 2", "kind": "ForgeLine"})
	expectStatus(t, w, http.StatusCreated)
	var resource resourceView
	decode(t, w, &resource)
	if resource.Kind != "ForgeLine" || resource.Status != "Idle" {
		t.Errorf("Expected an idle forge line, got %s %s", resource.Kind, resource.Status)
	}

	w = do(t, r, "1", http.MethodGet, fmt.Sprintf("/api/v1/resources/%d", resource.ID), nil)
	expectStatus(t, w, http.StatusOK)
}

func TestRouter_RequestIDAndRateLimit(t *testing.T) {
	r, _ := newTestRouter(t, RouterConfig{Limiter: NewIPRateLimiter(rate.Limit(1), 1)})

	w := do(t, r, "", http.MethodGet, "/healthz", nil)
	expectStatus(t, w, http.StatusOK)
	if w.Header().Get(HeaderRequestID) == "" {
		t.Errorf("Expected a generated %s header", HeaderRequestID)
	}

	w = do(t, r, "", http.MethodGet, "/healthz", nil)
	expectStatus(t, w, http.StatusTooManyRequests)
}

func TestRouter_CORS(t *testing.T) {
	r, _ := newTestRouter(t, RouterConfig{CORSOrigins: []string{"https://shop.example.com"}})

	tests := []struct {
		name   string
		origin string
		want   string
	}{
		{"allowed origin", "https://shop.example.com", "https://shop.example.com"},
		{"other origin", "https://evil.example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Expected allow origin %q, got %q", tt.want, got)
			}
		})
	}
}
