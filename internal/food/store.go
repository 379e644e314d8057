package food

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// csvHeader fixes the canonical column order of the dataset file.
var csvHeader = append([]string{
	"code", "name_en", "name_sw", "group",
	"energy_kcal", "protein_g", "fat_g", "carbs_g", "fibre_g",
}, MicroKeys...)

// Store reads and writes the canonical dataset file. The file is CSV
// with a leading "# version=..." comment line; not-available nutrients
// serialize as "NA".
type Store struct {
	path string
}

// NewStore creates a Store for the given dataset path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the dataset file location.
func (s *Store) Path() string { return s.path }

// Save writes records wholesale. It writes to a temporary file in the
// same directory and renames it over the target, so readers never see a
// partial dataset.
func (s *Store) Save(records []FoodRecord, version string) error {
	if len(records) == 0 {
		return fmt.Errorf("saving dataset: no records")
	}
	if version == "" {
		version = time.Now().UTC().Format("20060102T150405Z")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("saving dataset: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".dataset-*.csv")
	if err != nil {
		return fmt.Errorf("saving dataset: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := fmt.Fprintf(tmp, "# version=%s\n", version); err != nil {
		tmp.Close()
		return fmt.Errorf("saving dataset: %w", err)
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("saving dataset: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.Code, rec.NameEn, rec.NameSw, string(rec.Group),
			rec.Energy.String(), rec.Protein.String(), rec.Fat.String(),
			rec.Carbs.String(), rec.Fiber.String(),
		}
		for _, key := range MicroKeys {
			row = append(row, rec.Micros[key].String())
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("saving dataset: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("saving dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving dataset: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("saving dataset: %w", err)
	}
	return nil
}

// Load reads the whole dataset file. The version from the comment line
// is returned alongside the records.
func (s *Store) Load() ([]FoodRecord, string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, "", fmt.Errorf("loading dataset: %w", err)
	}
	defer f.Close()

	version, err := readVersionLine(f)
	if err != nil {
		return nil, "", fmt.Errorf("loading dataset: %w", err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(csvHeader)

	header, err := r.Read()
	if err != nil {
		return nil, "", fmt.Errorf("loading dataset: reading header: %w", err)
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return nil, "", fmt.Errorf("loading dataset: column %d is %q, want %q", i, header[i], name)
		}
	}

	var records []FoodRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("loading dataset: %w", err)
		}

		rec := FoodRecord{
			Code:   row[0],
			NameEn: row[1],
			NameSw: row[2],
			Group:  FoodGroup(row[3]),
			Micros: make(map[string]NutrientValue, len(MicroKeys)),
		}
		if rec.Energy, err = parseStoredValue(row[4]); err != nil {
			return nil, "", fmt.Errorf("loading dataset: record %q: %w", rec.Code, err)
		}
		if rec.Protein, err = parseStoredValue(row[5]); err != nil {
			return nil, "", fmt.Errorf("loading dataset: record %q: %w", rec.Code, err)
		}
		if rec.Fat, err = parseStoredValue(row[6]); err != nil {
			return nil, "", fmt.Errorf("loading dataset: record %q: %w", rec.Code, err)
		}
		if rec.Carbs, err = parseStoredValue(row[7]); err != nil {
			return nil, "", fmt.Errorf("loading dataset: record %q: %w", rec.Code, err)
		}
		if rec.Fiber, err = parseStoredValue(row[8]); err != nil {
			return nil, "", fmt.Errorf("loading dataset: record %q: %w", rec.Code, err)
		}
		for i, key := range MicroKeys {
			v, err := parseStoredValue(row[9+i])
			if err != nil {
				return nil, "", fmt.Errorf("loading dataset: record %q: %w", rec.Code, err)
			}
			rec.Micros[key] = v
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, "", fmt.Errorf("loading dataset: no records in %s", s.path)
	}
	return records, version, nil
}

// readVersionLine consumes the first line of the file and extracts the
// dataset version from it.
func readVersionLine(f *os.File) (string, error) {
	buf := make([]byte, 0, 128)
	b := make([]byte, 1)
	for {
		n, err := f.Read(b)
		if n == 0 || err != nil {
			return "", fmt.Errorf("reading version line: %w", err)
		}
		if b[0] == '\n' {
			break
		}
		buf = append(buf, b[0])
		if len(buf) > 256 {
			return "", fmt.Errorf("version line too long")
		}
	}
	line := strings.TrimSpace(string(buf))
	const prefix = "# version="
	if !strings.HasPrefix(line, prefix) {
		return "", fmt.Errorf("missing version line, got %q", line)
	}
	return strings.TrimPrefix(line, prefix), nil
}

func parseStoredValue(cell string) (NutrientValue, error) {
	if cell == "NA" {
		return NotAvailable(), nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return NutrientValue{}, fmt.Errorf("bad nutrient value %q: %w", cell, err)
	}
	return Known(v), nil
}
