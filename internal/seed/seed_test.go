package seed

import (
	"context"
	"testing"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/scheduling"
)

func TestGenerate_Counts(t *testing.T) {
	ds := Generate(Options{Providers: 4, Patients: 25, Operatories: 3, Seed: 42})

	if len(ds.Providers) != 4 || len(ds.Patients) != 25 || len(ds.Operatories) != 3 {
		t.Fatalf("unexpected counts: %d providers, %d patients, %d operatories",
			len(ds.Providers), len(ds.Patients), len(ds.Operatories))
	}
	if ds.Clinic.TimeZone != "UTC" {
		t.Errorf("expected UTC default, got %s", ds.Clinic.TimeZone)
	}
	for _, p := range ds.Patients {
		if p.ClinicID != ds.Clinic.ID {
			t.Fatal("patient outside the generated clinic")
		}
	}
}

func TestGenerate_EveryTypeHasQualifiedProvider(t *testing.T) {
	ds := Generate(Options{Providers: 2, Seed: 7})

	for _, typ := range ds.AppointmentTypes {
		found := false
		for _, p := range ds.Providers {
			if p.Qualified(typ) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no provider qualified for %s", typ.Name)
		}
	}
	for _, p := range ds.Providers {
		if err := p.WorkingHours.Validate(); err != nil {
			t.Errorf("invalid working hours for %s: %v", p.Name, err)
		}
	}
}

func TestLoadMemory(t *testing.T) {
	ctx := context.Background()
	ds := Generate(Options{Providers: 2, Patients: 3, Operatories: 2, Seed: 1})
	repo := scheduling.NewMemoryRepository()

	if err := ds.LoadMemory(ctx, repo); err != nil {
		t.Fatalf("load: %v", err)
	}

	providers, err := repo.ListProviders(ctx, ds.Clinic.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(providers) != 2 {
		t.Errorf("expected 2 providers, got %d", len(providers))
	}
	ops, err := repo.ListOperatories(ctx, ds.Clinic.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 {
		t.Errorf("expected 2 operatories, got %d", len(ops))
	}
}
