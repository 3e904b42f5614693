package appointments

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	created, err := repo.Create(ctx, &CreateRequest{
		PatientName:     "Jane Doe",
		PhoneNumber:     "+15550100",
		AppointmentTime: time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if created.Status != StatusPending {
		t.Errorf("expected pending status, got %q", created.Status)
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PatientName != "Jane Doe" {
		t.Errorf("unexpected patient name %q", got.PatientName)
	}

	confirmed := StatusConfirmed
	updated, err := repo.Update(ctx, created.ID, Update{Status: &confirmed})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %q", updated.Status)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) && updated.UpdatedAt == created.UpdatedAt {
		t.Log("updated_at unchanged within clock resolution")
	}

	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, created.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryRepositoryListOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	later := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	earlier := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	if _, err := repo.Create(ctx, &CreateRequest{PatientName: "Later", AppointmentTime: later}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Create(ctx, &CreateRequest{PatientName: "Earlier", AppointmentTime: earlier}); err != nil {
		t.Fatal(err)
	}

	appts, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(appts))
	}
	if appts[0].PatientName != "Earlier" {
		t.Errorf("expected ascending time order, got %q first", appts[0].PatientName)
	}
}

func TestMemoryRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	if _, err := repo.Get(ctx, "missing"); err != ErrNotFound {
		t.Errorf("get: expected ErrNotFound, got %v", err)
	}
	pending := StatusPending
	if _, err := repo.Update(ctx, "missing", Update{Status: &pending}); err != ErrNotFound {
		t.Errorf("update: expected ErrNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "missing"); err != ErrNotFound {
		t.Errorf("delete: expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepositorySeedDemoData(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	if err := repo.SeedDemoData(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	appts, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(appts) == 0 {
		t.Fatal("expected seeded appointments")
	}
	for _, a := range appts {
		if !a.Status.Valid() {
			t.Errorf("seeded appointment %s has invalid status %q", a.ID, a.Status)
		}
	}
}
