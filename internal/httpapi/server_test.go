package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"modyn/internal/manager"
	"modyn/pkg/types"
)

type mockService struct {
	models    []types.Model
	status    types.StatusResponse
	ready     bool
	inferErr  error
	switchErr error
	unloadErr error
	lastReq   types.InferRequest
	switched  string
	unloaded  string

	priorityErr error
	priorities  map[string]int
}

func (m *mockService) ListModels() []types.Model    { return append([]types.Model(nil), m.models...) }
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }
func (m *mockService) Infer(ctx context.Context, req types.InferRequest) (types.InferResponse, error) {
	m.lastReq = req
	if m.inferErr != nil {
		return types.InferResponse{}, m.inferErr
	}
	return types.InferResponse{Model: req.Model, Backend: "dummy", Outputs: req.Inputs}, nil
}
func (m *mockService) Switch(ctx context.Context, id string) (string, error) {
	if m.switchErr != nil {
		return "", m.switchErr
	}
	m.switched = id
	return "op-1", nil
}
func (m *mockService) Unload(id string) error {
	if m.unloadErr != nil {
		return m.unloadErr
	}
	m.unloaded = id
	return nil
}
func (m *mockService) SetInstancePriority(model, instance string, priority int) error {
	if m.priorityErr != nil {
		return m.priorityErr
	}
	if m.priorities == nil {
		m.priorities = map[string]int{}
	}
	m.priorities[model+"/"+instance] = priority
	return nil
}
func (m *mockService) Backends() types.BackendsResponse {
	return types.BackendsResponse{Backends: []types.Backend{{ID: "dummy", Registered: true}}}
}
func (m *mockService) Plugins() types.PluginsResponse { return types.PluginsResponse{} }

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

const inferBody = `{"model":"m1","inputs":[{"name":"x","dtype":"uint8","shape":[2],"data":"AQI="}]}`

func postInfer(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/infer", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestModelsHandler(t *testing.T) {
	svc := &mockService{models: []types.Model{{ID: "m1"}, {ID: "m2"}}}
	r := NewMux(svc)
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Models) != 2 {
		t.Fatalf("models len=%d", len(body.Models))
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", LoadsTotal: 3}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.State != "ready" || body.LoadsTotal != 3 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestBackendsHandler(t *testing.T) {
	r := NewMux(&mockService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/backends", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.BackendsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Backends) != 1 || body.Backends[0].ID != "dummy" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestPluginsHandler(t *testing.T) {
	r := NewMux(&mockService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plugins", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestLoadReturnsAccepted(t *testing.T) {
	svc := &mockService{}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/models/m1/load", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.OpResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Op != "op-1" || body.Model != "m1" || svc.switched != "m1" {
		t.Fatalf("unexpected body=%+v switched=%q", body, svc.switched)
	}
}

func TestLoadUnknownModel404(t *testing.T) {
	r := NewMux(&mockService{switchErr: manager.ErrModelNotFound("nope")})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/models/nope/load", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestUnload(t *testing.T) {
	svc := &mockService{}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/models/m2/unload", nil))
	if w.Code != http.StatusOK || svc.unloaded != "m2" {
		t.Fatalf("status=%d unloaded=%q", w.Code, svc.unloaded)
	}

	svc.unloadErr = manager.ErrModelNotFound("m3")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/models/m3/unload", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestSetInstancePriority(t *testing.T) {
	svc := &mockService{}
	r := NewMux(svc)
	put := func(path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, path, strings.NewReader(body)))
		return w
	}

	w := put("/models/m1/instances/i-1/priority", `{"priority":7}`)
	if w.Code != http.StatusOK || svc.priorities["m1/i-1"] != 7 {
		t.Fatalf("status=%d priorities=%v", w.Code, svc.priorities)
	}
	var resp types.PriorityResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp != (types.PriorityResponse{Model: "m1", Instance: "i-1", Priority: 7}) {
		t.Fatalf("resp=%+v", resp)
	}

	if w := put("/models/m1/instances/i-1/priority", `{"priority":`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad body status=%d", w.Code)
	}

	svc.priorityErr = manager.ErrModelNotFound("m9")
	if w := put("/models/m9/instances/i-1/priority", `{"priority":1}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown model status=%d", w.Code)
	}
}

func TestReadyz(t *testing.T) {
	r := NewMux(&mockService{ready: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	r := NewMux(&mockService{ready: false})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "loading") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestInferReturnsOutputs(t *testing.T) {
	svc := &mockService{}
	w := postInfer(NewMux(svc), inferBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp types.InferResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Model != "m1" || len(resp.Outputs) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !bytes.Equal(resp.Outputs[0].Data, []byte{1, 2}) {
		t.Fatalf("data=%v", resp.Outputs[0].Data)
	}
	if svc.lastReq.Inputs[0].Shape[0] != 2 {
		t.Fatalf("shape not decoded: %+v", svc.lastReq.Inputs[0])
	}
}

func TestInferBadJSON(t *testing.T) {
	w := postInfer(NewMux(&mockService{}), "not-json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestInferInputsRequired(t *testing.T) {
	w := postInfer(NewMux(&mockService{}), `{"model":"m1","inputs":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing inputs, got %d", w.Code)
	}
}

func TestInferErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", manager.ErrModelNotFound("m-missing"), http.StatusNotFound},
		{"dependency", manager.ErrDependencyUnavailable("insufficient memory"), http.StatusServiceUnavailable},
		{"closed", manager.ErrManagerClosed, http.StatusServiceUnavailable},
		{"http error", mockHTTPError{msg: "too busy", code: http.StatusTooManyRequests}, http.StatusTooManyRequests},
		{"generic", io.EOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postInfer(NewMux(&mockService{inferErr: tc.err}), inferBody)
			if w.Code != tc.want {
				t.Fatalf("status=%d want %d", w.Code, tc.want)
			}
			var body types.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("json: %v", err)
			}
			if body.Code != tc.want || body.Error == "" {
				t.Fatalf("unexpected error body: %+v", body)
			}
		})
	}
}

func TestInferUnsupportedMediaType(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/infer", bytes.NewBufferString(inferBody))
	req.Header.Set("Content-Type", "text/plain")
	NewMux(&mockService{}).ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestInferBodyTooLarge(t *testing.T) {
	big := make([]byte, (1<<20)+10)
	for i := range big {
		big[i] = 'a'
	}
	w := postInfer(NewMux(&mockService{}), string(big))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too-large body, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}
