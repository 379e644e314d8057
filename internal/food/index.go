package food

import (
	"fmt"
	"sort"
	"strings"
)

// Lang selects which bilingual name a lookup targets.
type Lang string

const (
	LangEnglish Lang = "en"
	LangSwahili Lang = "sw"
)

// Match is one scored lookup result.
type Match struct {
	Record *FoodRecord
	Score  float64
}

// Index is an immutable snapshot of the food dataset with precomputed
// lookup keys. Build a new Index and swap it to publish a new dataset;
// never mutate one in place.
type Index struct {
	records []FoodRecord
	byCode  map[string]*FoodRecord
	// folded name -> record, per language; first occurrence wins on
	// fold collisions, matching dataset order.
	byNameEn map[string]*FoodRecord
	byNameSw map[string]*FoodRecord
	// entries hold the folded names once so fuzzy scans do not re-fold.
	entries []indexEntry

	threshold float64
}

type indexEntry struct {
	foldedEn string
	foldedSw string
	rec      *FoodRecord
}

// NewIndex builds an Index over records. Codes must be unique and every
// group must belong to the controlled enumeration.
func NewIndex(records []FoodRecord, threshold float64) (*Index, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("building index: no records")
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("building index: threshold %v out of range (0,1]", threshold)
	}

	idx := &Index{
		records:   make([]FoodRecord, len(records)),
		byCode:    make(map[string]*FoodRecord, len(records)),
		byNameEn:  make(map[string]*FoodRecord, len(records)),
		byNameSw:  make(map[string]*FoodRecord, len(records)),
		entries:   make([]indexEntry, 0, len(records)),
		threshold: threshold,
	}
	copy(idx.records, records)

	for i := range idx.records {
		rec := &idx.records[i]
		if rec.Code == "" {
			return nil, fmt.Errorf("building index: record %q has no code", rec.NameEn)
		}
		if _, dup := idx.byCode[rec.Code]; dup {
			return nil, fmt.Errorf("building index: duplicate code %q", rec.Code)
		}
		if !rec.Group.Valid() {
			return nil, fmt.Errorf("building index: record %q has unknown group %q", rec.Code, rec.Group)
		}
		idx.byCode[rec.Code] = rec

		en := Fold(rec.NameEn)
		sw := Fold(rec.NameSw)
		if _, ok := idx.byNameEn[en]; !ok && en != "" {
			idx.byNameEn[en] = rec
		}
		if _, ok := idx.byNameSw[sw]; !ok && sw != "" {
			idx.byNameSw[sw] = rec
		}
		idx.entries = append(idx.entries, indexEntry{foldedEn: en, foldedSw: sw, rec: rec})
	}
	return idx, nil
}

// Len returns the number of records in the snapshot.
func (idx *Index) Len() int { return len(idx.records) }

// Records returns the dataset in index order. Callers must not mutate
// the returned records.
func (idx *Index) Records() []FoodRecord { return idx.records }

// ByCode returns the record with the given food code, or nil.
func (idx *Index) ByCode(code string) *FoodRecord { return idx.byCode[code] }

// LookupExact finds a record whose folded name in the given language
// equals the folded query.
func (idx *Index) LookupExact(name string, lang Lang) *FoodRecord {
	folded := Fold(name)
	if lang == LangSwahili {
		return idx.byNameSw[folded]
	}
	return idx.byNameEn[folded]
}

// LookupFuzzy returns up to max records scoring at or above the index
// threshold against the query, best first. Ties break on food code so
// results are deterministic.
func (idx *Index) LookupFuzzy(name string, lang Lang, max int) []Match {
	folded := Fold(name)
	if folded == "" || max <= 0 {
		return nil
	}

	matches := make([]Match, 0, max)
	for _, e := range idx.entries {
		target := e.foldedEn
		if lang == LangSwahili {
			target = e.foldedSw
		}
		if target == "" {
			continue
		}
		if score := Similarity(folded, target); score >= idx.threshold {
			matches = append(matches, Match{Record: e.rec, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Record.Code < matches[j].Record.Code
	})
	if len(matches) > max {
		matches = matches[:max]
	}
	return matches
}

// LookupPrefix returns records whose folded name in the given language
// starts with the folded query, in index order.
func (idx *Index) LookupPrefix(name string, lang Lang, max int) []*FoodRecord {
	folded := Fold(name)
	if folded == "" || max <= 0 {
		return nil
	}

	var out []*FoodRecord
	for _, e := range idx.entries {
		target := e.foldedEn
		if lang == LangSwahili {
			target = e.foldedSw
		}
		if strings.HasPrefix(target, folded) {
			out = append(out, e.rec)
			if len(out) == max {
				break
			}
		}
	}
	return out
}

// FilterByGroup returns all records in the given group, in index order.
func (idx *Index) FilterByGroup(group FoodGroup) []*FoodRecord {
	var out []*FoodRecord
	for i := range idx.records {
		if idx.records[i].Group == group {
			out = append(out, &idx.records[i])
		}
	}
	return out
}

// Resolve maps a free-text food name onto a record: exact match in
// either language first, then the best fuzzy match above the threshold.
// The second return is the match score, 1 for exact hits.
func (idx *Index) Resolve(name string) (*FoodRecord, float64) {
	if rec := idx.LookupExact(name, LangEnglish); rec != nil {
		return rec, 1
	}
	if rec := idx.LookupExact(name, LangSwahili); rec != nil {
		return rec, 1
	}

	var (
		best      *FoodRecord
		bestScore float64
	)
	for _, lang := range []Lang{LangEnglish, LangSwahili} {
		if m := idx.LookupFuzzy(name, lang, 1); len(m) > 0 && m[0].Score > bestScore {
			best, bestScore = m[0].Record, m[0].Score
		}
	}
	return best, bestScore
}
