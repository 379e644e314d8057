package food

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "foods.csv"))

	records := []FoodRecord{
		{
			Code: "A001", NameEn: "Maize flour, dry", NameSw: "Unga wa mahindi",
			Group:  GroupCereals,
			Energy: Known(353), Protein: Known(8.8), Fat: Known(3.5),
			Carbs: Known(71.5), Fiber: Known(9.8),
			Micros: map[string]NutrientValue{"calcium_mg": Known(14), "iron_mg": NotAvailable()},
		},
		{
			Code: "E012", NameEn: "Kale, cooked", NameSw: "Sukuma wiki",
			Group:  GroupVegetables,
			Energy: Known(35), Protein: NotAvailable(), Fat: Known(0.5),
			Carbs: Known(5), Fiber: Known(2.2),
			Micros: map[string]NutrientValue{},
		},
	}

	if err := store.Save(records, "2018r1"); err != nil {
		t.Fatalf("Expected no error saving, got %v", err)
	}

	loaded, version, err := store.Load()
	if err != nil {
		t.Fatalf("Expected no error loading, got %v", err)
	}
	if version != "2018r1" {
		t.Errorf("Expected version '2018r1', got %q", version)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(loaded))
	}

	if loaded[0].Code != "A001" || loaded[0].Group != GroupCereals {
		t.Errorf("Unexpected first record: %+v", loaded[0])
	}
	if !loaded[0].Energy.Available || loaded[0].Energy.Value != 353 {
		t.Errorf("Expected energy 353, got %+v", loaded[0].Energy)
	}
	if loaded[0].Micros["iron_mg"].Available {
		t.Errorf("Expected iron not-available, got %+v", loaded[0].Micros["iron_mg"])
	}
	if loaded[1].Protein.Available {
		t.Errorf("Expected not-available protein to survive the round trip, got %+v", loaded[1].Protein)
	}
	if !reflect.DeepEqual(loaded[1].Fat, Known(0.5)) {
		t.Errorf("Expected fat 0.5, got %+v", loaded[1].Fat)
	}
}

func TestStoreSaveAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foods.csv")
	store := NewStore(path)

	first := []FoodRecord{{
		Code: "A001", NameEn: "Maize flour, dry", Group: GroupCereals,
		Energy: Known(353),
	}}
	if err := store.Save(first, "v1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// A failing save must leave the previous dataset untouched.
	if err := store.Save(nil, "v2"); err == nil {
		t.Fatal("Expected error saving empty dataset")
	}

	loaded, version, err := store.Load()
	if err != nil {
		t.Fatalf("Expected previous dataset to load, got %v", err)
	}
	if version != "v1" || len(loaded) != 1 {
		t.Errorf("Expected untouched v1 dataset, got version %q with %d records", version, len(loaded))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".dataset-") {
			t.Errorf("Expected no leftover temp file, found %s", e.Name())
		}
	}
}

func TestStoreLoadRejectsBadFile(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "missing.csv"))
		if _, _, err := store.Load(); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("MissingVersionLine", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "foods.csv")
		if err := os.WriteFile(path, []byte("code,name_en\nA001,Ugali\n"), 0o644); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if _, _, err := NewStore(path).Load(); err == nil {
			t.Error("Expected error for missing version line")
		}
	})

	t.Run("WrongHeader", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "foods.csv")
		content := "# version=v1\nid,label\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if _, _, err := NewStore(path).Load(); err == nil {
			t.Error("Expected error for wrong header")
		}
	})
}
