package stores

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfacade/openfacade/pkg/resolver"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "history.db"),
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Failed to init store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return store
}

func testPlan(t *testing.T, intent resolver.DeployIntent) *resolver.ResolvedPlan {
	t.Helper()
	plan, err := resolver.New(zerolog.Nop()).Resolve(context.Background(), intent)
	if err != nil {
		t.Fatalf("Resolution failed: %v", err)
	}
	return plan
}

func TestSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestSQLiteStore_SaveAndGetResolution(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	plan := testPlan(t, resolver.DeployIntent{AppName: "stored-service"})
	allowed := true
	if err := store.SaveResolution(ctx, plan, &allowed); err != nil {
		t.Fatalf("Failed to save resolution: %v", err)
	}

	got, err := store.GetResolution(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Failed to get resolution: %v", err)
	}

	if got.ID != plan.ID {
		t.Errorf("Expected ID %s, got %s", plan.ID, got.ID)
	}
	if got.AppName != "stored-service" {
		t.Errorf("Expected app name stored-service, got %q", got.AppName)
	}
	if got.DescriptorCount != 8 {
		t.Errorf("Expected 8 descriptors, got %d", got.DescriptorCount)
	}
	if got.SecretGenerated {
		t.Error("Baseline plan must not record a secret")
	}
	if got.PolicyAllowed == nil || !*got.PolicyAllowed {
		t.Error("Policy verdict lost")
	}
}

func TestSQLiteStore_GetResolution_NotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetResolution(context.Background(), "no-such-id"); err == nil {
		t.Error("Expected error for unknown resolution")
	}
}

func TestSQLiteStore_StoredPlanIsRedacted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	plan := testPlan(t, resolver.DeployIntent{
		AppName:          "secret-service",
		EnableCloudFront: true,
	})
	secret := plan.Descriptor("cdn").Properties.(resolver.CdnProps).CustomHeaders[resolver.OriginVerifyHeader]

	if err := store.SaveResolution(ctx, plan, nil); err != nil {
		t.Fatalf("Failed to save resolution: %v", err)
	}

	got, err := store.GetResolution(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Failed to get resolution: %v", err)
	}

	if strings.Contains(got.Plan, secret) {
		t.Error("Stored plan leaked the secret")
	}
	if !strings.Contains(got.Plan, resolver.SecretRedacted) {
		t.Error("Stored plan missing the redaction marker")
	}
	if !got.SecretGenerated {
		t.Error("SecretGenerated flag lost")
	}
}

func TestSQLiteStore_ListResolutions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"svc-one", "svc-two", "svc-one"} {
		plan := testPlan(t, resolver.DeployIntent{AppName: name})
		if err := store.SaveResolution(ctx, plan, nil); err != nil {
			t.Fatalf("Failed to save resolution: %v", err)
		}
	}

	all, err := store.ListResolutions(ctx, nil, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list resolutions: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 resolutions, got %d", len(all))
	}

	name := "svc-one"
	filtered, err := store.ListResolutions(ctx, &name, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list filtered resolutions: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("Expected 2 svc-one resolutions, got %d", len(filtered))
	}

	paged, err := store.ListResolutions(ctx, nil, 2, 0)
	if err != nil {
		t.Fatalf("Failed to list paged resolutions: %v", err)
	}
	if len(paged) != 2 {
		t.Errorf("Expected page of 2, got %d", len(paged))
	}
}

func TestSQLiteStore_DeleteResolution(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	plan := testPlan(t, resolver.DeployIntent{AppName: "doomed-service"})
	if err := store.SaveResolution(ctx, plan, nil); err != nil {
		t.Fatalf("Failed to save resolution: %v", err)
	}

	if err := store.DeleteResolution(ctx, plan.ID); err != nil {
		t.Fatalf("Failed to delete resolution: %v", err)
	}
	if _, err := store.GetResolution(ctx, plan.ID); err == nil {
		t.Error("Resolution still present after delete")
	}
	if err := store.DeleteResolution(ctx, plan.ID); err == nil {
		t.Error("Expected error deleting a missing resolution")
	}
}

func TestSQLiteStore_Events(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	plan := testPlan(t, resolver.DeployIntent{AppName: "logged-service"})
	if err := store.SaveResolution(ctx, plan, nil); err != nil {
		t.Fatalf("Failed to save resolution: %v", err)
	}

	events := []*Event{
		{ResolutionID: plan.ID, Level: EventLevelInfo, Message: "resolution stored", Timestamp: time.Now()},
		{ResolutionID: plan.ID, Level: EventLevelWarning, Message: "policy finding", Timestamp: time.Now()},
	}
	for _, e := range events {
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("Failed to append event: %v", err)
		}
		if e.ID == 0 {
			t.Error("Event ID not assigned")
		}
	}

	got, err := store.GetEvents(ctx, &plan.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 events, got %d", len(got))
	}

	level := EventLevelWarning
	warnings, err := store.GetEvents(ctx, &plan.ID, &level, 10, 0)
	if err != nil {
		t.Fatalf("Failed to get filtered events: %v", err)
	}
	if len(warnings) != 1 {
		t.Errorf("Expected 1 warning event, got %d", len(warnings))
	}
}

func TestSQLiteStore_HealthCheck(t *testing.T) {
	store := newTestStore(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("Expected healthy store, got: %v", err)
	}

	uninitialized, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "x.db")})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := uninitialized.HealthCheck(context.Background()); err == nil {
		t.Error("Expected error for uninitialized store")
	}
}
