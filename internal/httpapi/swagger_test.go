package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSwaggerDocServed(t *testing.T) {
	h := NewMux(&mockService{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("doc json: %v", err)
	}
	for _, p := range []string{"/infer", "/models/{id}/load", "/models/{id}/instances/{instance}/priority", "/status"} {
		if _, ok := doc.Paths[p]; !ok {
			t.Fatalf("doc missing %s", p)
		}
	}
}

func TestSwaggerDocIsValidJSON(t *testing.T) {
	if !json.Valid([]byte(openAPIDoc)) {
		t.Fatal("embedded API document is not valid JSON")
	}
}
