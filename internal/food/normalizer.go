package food

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"afyaplate/internal/extract"

	"go.uber.org/zap"
)

// sentinels are cell tokens meaning "trace" or "not determined". They map
// to the not-available marker, never to zero.
var sentinels = map[string]bool{
	"": true, "-": true, "–": true, "—": true,
	"tr": true, "tr.": true, "trace": true,
	"nd": true, "n.d": true, "n.d.": true,
	"na": true, "n/a": true, "*": true,
}

var numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// NormalizerOptions holds normalization policy.
type NormalizerOptions struct {
	// GroupThreshold gates fuzzy resolution of free-text group labels.
	GroupThreshold float64
	// MergeAcrossGroups collapses duplicate names across food groups.
	MergeAcrossGroups bool
}

// RowIssue records why a raw row was excluded or degraded.
type RowIssue struct {
	Page   int
	Table  int
	Reason string
}

// Diagnostics summarizes a normalization pass. Row-level problems
// accumulate here and never abort the batch.
type Diagnostics struct {
	RowsIn            int
	RecordsOut        int
	DuplicatesDropped int
	RowsRejected      int
	Issues            []RowIssue
}

// Normalizer turns raw extracted rows into validated FoodRecords.
type Normalizer struct {
	schema Schema
	opts   NormalizerOptions
	logger *zap.Logger
}

// NewNormalizer creates a Normalizer for the given column schema.
func NewNormalizer(schema Schema, opts NormalizerOptions, logger *zap.Logger) *Normalizer {
	return &Normalizer{schema: schema, opts: opts, logger: logger.Named("normalize")}
}

// Normalize processes rows in document order. First occurrence wins on
// duplicates, so the input order must be the document order.
func (n *Normalizer) Normalize(rows []extract.RawRow) ([]FoodRecord, Diagnostics) {
	diag := Diagnostics{RowsIn: len(rows)}
	records := make([]FoodRecord, 0, len(rows))
	seenNames := make(map[string]bool)
	seenCodes := make(map[string]bool)

	for _, row := range rows {
		rec, issue := n.normalizeRow(row)
		if issue != "" {
			diag.RowsRejected++
			diag.Issues = append(diag.Issues, RowIssue{Page: row.Page, Table: row.Table, Reason: issue})
			continue
		}

		key := n.dedupeKey(rec)
		if seenNames[key] {
			diag.DuplicatesDropped++
			continue
		}
		seenNames[key] = true

		if rec.Code == "" {
			rec.Code = uniqueSlug(rec.NameEn, seenCodes)
		} else if seenCodes[rec.Code] {
			// A reused code with a distinct name is a source defect; keep
			// the record under a derived identifier.
			rec.Code = uniqueSlug(rec.NameEn, seenCodes)
		}
		seenCodes[rec.Code] = true

		records = append(records, rec)
	}

	diag.RecordsOut = len(records)
	n.logger.Info("normalization finished",
		zap.Int("rows_in", diag.RowsIn),
		zap.Int("records_out", diag.RecordsOut),
		zap.Int("duplicates_dropped", diag.DuplicatesDropped),
		zap.Int("rows_rejected", diag.RowsRejected),
	)
	return records, diag
}

func (n *Normalizer) normalizeRow(row extract.RawRow) (FoodRecord, string) {
	if len(row.Cells) != len(n.schema.Columns) {
		return FoodRecord{}, fmt.Sprintf("column count mismatch: got %d, want %d",
			len(row.Cells), len(n.schema.Columns))
	}

	var (
		rec        FoodRecord
		groupLabel string
	)
	rec.Micros = make(map[string]NutrientValue)

	for i, col := range n.schema.Columns {
		cell := cleanText(row.Cells[i])
		switch col.Role {
		case RoleCode:
			rec.Code = strings.ToUpper(cell)
		case RoleNameEn:
			rec.NameEn = cell
		case RoleNameSw:
			rec.NameSw = cell
		case RoleGroup:
			groupLabel = cell
		case RoleEnergy:
			rec.Energy = parseNutrient(cell)
		case RoleProtein:
			rec.Protein = parseNutrient(cell)
		case RoleFat:
			rec.Fat = parseNutrient(cell)
		case RoleCarbs:
			rec.Carbs = parseNutrient(cell)
		case RoleFiber:
			rec.Fiber = parseNutrient(cell)
		case RoleMicro:
			rec.Micros[col.Name] = parseNutrient(cell)
		}
	}

	if len(rec.NameEn) < 3 {
		return FoodRecord{}, fmt.Sprintf("food name too short: %q", rec.NameEn)
	}

	group, ok := n.resolveGroup(groupLabel, rec.Code)
	if !ok {
		return FoodRecord{}, fmt.Sprintf("unresolvable food group %q for %q", groupLabel, rec.NameEn)
	}
	rec.Group = group

	return rec, ""
}

// resolveGroup maps a free-text group label onto the enumeration: exact
// fold match first, then fuzzy above the threshold. A blank label falls
// back to the food-code letter. Anything else is rejected, not guessed.
func (n *Normalizer) resolveGroup(label, code string) (FoodGroup, bool) {
	if label != "" {
		folded := Fold(label)
		var (
			best      FoodGroup
			bestScore float64
		)
		for _, g := range AllGroups {
			fg := Fold(string(g))
			if fg == folded {
				return g, true
			}
			if score := Similarity(folded, fg); score > bestScore {
				best, bestScore = g, score
			}
		}
		if bestScore >= n.opts.GroupThreshold {
			return best, true
		}
		return "", false
	}

	if code != "" {
		if g, ok := groupByCodeLetter[code[0]]; ok {
			return g, true
		}
	}
	return "", false
}

func (n *Normalizer) dedupeKey(rec FoodRecord) string {
	key := Fold(rec.NameEn) + "\x00" + Fold(rec.NameSw)
	if !n.opts.MergeAcrossGroups {
		key += "\x00" + string(rec.Group)
	}
	return key
}

// cleanText collapses whitespace and strips common extraction artifacts.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "�", " ")
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}

// parseNutrient coerces a nutrient cell. Sentinel tokens and unparseable
// text become not-available; numbers keep footnote markers out by taking
// the first numeric run.
func parseNutrient(cell string) NutrientValue {
	token := strings.ToLower(strings.TrimSpace(cell))
	token = strings.TrimRight(token, "*")
	token = strings.TrimSpace(token)
	if sentinels[token] {
		return NotAvailable()
	}

	match := numberRe.FindString(token)
	if match == "" {
		return NotAvailable()
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil || v < 0 {
		return NotAvailable()
	}
	return Known(v)
}

// uniqueSlug derives a stable identifier from the english name when the
// source row carries no food code.
func uniqueSlug(name string, seen map[string]bool) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == ',':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	if slug == "" {
		slug = "food"
	}

	candidate := slug
	for i := 2; seen[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d", slug, i)
	}
	return candidate
}
