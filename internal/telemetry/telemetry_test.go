package telemetry

import (
	"context"
	"fmt"
	"testing"
)

// mockStore implements SettingsStore for testing.
type mockStore struct {
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("not found")
	}
	return v, nil
}

func (m *mockStore) SetSetting(_ context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func TestResolveInstanceID_GeneratesAndPersists(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()

	id := resolveInstanceID(ctx, store)
	if id == "" {
		t.Fatal("expected non-empty instance ID")
	}

	stored, err := store.GetSetting(ctx, "instance_id")
	if err != nil {
		t.Fatalf("expected instance_id in store: %v", err)
	}
	if stored != id {
		t.Errorf("stored ID %q != returned ID %q", stored, id)
	}

	// Second call returns the same ID.
	if id2 := resolveInstanceID(ctx, store); id2 != id {
		t.Errorf("expected same ID on second call, got %q vs %q", id2, id)
	}
}

func TestResolveInstanceID_NilStore(t *testing.T) {
	if id := resolveInstanceID(context.Background(), nil); id == "" {
		t.Fatal("expected non-empty instance ID even with nil store")
	}
}

func TestNew_DisabledByEnv(t *testing.T) {
	for _, val := range []string{"0", "false", "off"} {
		t.Setenv("WARDEN_TELEMETRY", val)
		if tracker := New(context.Background(), newMockStore(), func() Properties { return Properties{} }); tracker != nil {
			t.Errorf("WARDEN_TELEMETRY=%s: expected nil tracker", val)
		}
	}
}

func TestNew_DisabledBySetting(t *testing.T) {
	store := newMockStore()
	if err := store.SetSetting(context.Background(), "telemetry.enabled", "false"); err != nil {
		t.Fatal(err)
	}
	if tracker := New(context.Background(), store, func() Properties { return Properties{} }); tracker != nil {
		t.Fatal("expected nil tracker when telemetry.enabled=false")
	}
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tracker *Tracker
	tracker.Start()
	tracker.Shutdown()
}
