package httpapi

import (
	"testing"
	"time"
)

func TestSetMaxBodyBytes(t *testing.T) {
	defer SetMaxBodyBytes(0)
	SetMaxBodyBytes(-1)
	if maxBodyBytes != defaultMaxBodyBytes {
		t.Fatalf("expected default, got %d", maxBodyBytes)
	}
	SetMaxBodyBytes(1234)
	if maxBodyBytes != 1234 {
		t.Fatalf("expected 1234, got %d", maxBodyBytes)
	}
}

func TestSetInferTimeout_NegativeDisables(t *testing.T) {
	defer SetInferTimeout(0)
	SetInferTimeout(-time.Second)
	if inferTimeout != 0 {
		t.Fatalf("expected 0, got %s", inferTimeout)
	}
	SetInferTimeout(3 * time.Second)
	if inferTimeout != 3*time.Second {
		t.Fatalf("expected 3s, got %s", inferTimeout)
	}
}

func TestConfigure(t *testing.T) {
	defer Configure(Options{})
	Configure(Options{MaxBodyBytes: 10, InferTimeout: time.Second, CORSOrigins: []string{"http://a"}})
	if maxBodyBytes != 10 || inferTimeout != time.Second {
		t.Fatalf("body=%d timeout=%s", maxBodyBytes, inferTimeout)
	}
	if !corsEnabled || len(corsAllowedMethods) != 4 || corsAllowedHeaders[0] != "Content-Type" {
		t.Fatalf("cors enabled=%v methods=%v headers=%v", corsEnabled, corsAllowedMethods, corsAllowedHeaders)
	}
	Configure(Options{})
	if corsEnabled || maxBodyBytes != defaultMaxBodyBytes {
		t.Fatalf("zero options should restore defaults")
	}
}
