package services_test

import (
	"context"
	"testing"

	"capturepair/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "sess-1")
	ctx = services.WithDeviceID(ctx, "AAAA")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "sess-1" {
		t.Fatalf("unexpected session id: %v %v", id, ok)
	}
	if id, ok := services.DeviceIDFromContext(ctx); !ok || id != "AAAA" {
		t.Fatalf("unexpected device id: %v %v", id, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := services.WithDeviceID(context.Background(), "")
	if _, ok := services.DeviceIDFromContext(ctx); ok {
		t.Fatal("expected no device value")
	}
}
