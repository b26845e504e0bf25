// Package item defines the revealable unit of a narrated visualization.
//
// An Item is one data point or table row: a bag of display fields plus an
// optional narration string. Items are immutable once built; a Sequence is the
// ordered list of items for one run.
package item

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultNarrationKey is the record key that carries spoken text.
const DefaultNarrationKey = "audio"

// Item is a single revealable data point.
type Item struct {
	fields    map[string]any
	narration string
}

// New builds an Item from display fields and narration text.
// The fields map is copied; later mutation by the caller has no effect.
func New(fields map[string]any, narration string) Item {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return Item{fields: copied, narration: narration}
}

// FromRecord splits a loose record into display fields and narration.
// The value under narrationKey (DefaultNarrationKey if empty) becomes the
// narration when it is a string; it is not kept as a display field.
func FromRecord(record map[string]any, narrationKey string) Item {
	if narrationKey == "" {
		narrationKey = DefaultNarrationKey
	}
	fields := make(map[string]any, len(record))
	var narration string
	for k, v := range record {
		if k == narrationKey {
			if s, ok := v.(string); ok {
				narration = s
			}
			continue
		}
		fields[k] = v
	}
	return Item{fields: fields, narration: narration}
}

// Narration returns the spoken text, trimmed. Empty means "no narration".
func (it Item) Narration() string {
	return strings.TrimSpace(it.narration)
}

// HasNarration reports whether the item carries spoken text.
func (it Item) HasNarration() bool {
	return it.Narration() != ""
}

// Field returns a display field.
func (it Item) Field(key string) (any, bool) {
	v, ok := it.fields[key]
	return v, ok
}

// Fields returns a copy of the display fields.
func (it Item) Fields() map[string]any {
	out := make(map[string]any, len(it.fields))
	for k, v := range it.fields {
		out[k] = v
	}
	return out
}

// Keys returns the display field names in sorted order.
func (it Item) Keys() []string {
	keys := make([]string, 0, len(it.fields))
	for k := range it.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Label formats a field for display. Missing fields render as "".
func (it Item) Label(key string) string {
	v, ok := it.fields[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}

// Number reads a field as a number. Integers, floats, numeric strings and
// percent strings ("45%") are accepted.
func (it Item) Number(key string) (float64, bool) {
	v, ok := it.fields[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "%"))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// HasFields reports whether every key is present and non-nil.
func (it Item) HasFields(keys ...string) bool {
	for _, k := range keys {
		if v, ok := it.fields[k]; !ok || v == nil {
			return false
		}
	}
	return true
}

// Record returns the item as a loose record again, narration included
// under narrationKey when present.
func (it Item) Record(narrationKey string) map[string]any {
	if narrationKey == "" {
		narrationKey = DefaultNarrationKey
	}
	out := it.Fields()
	if it.narration != "" {
		out[narrationKey] = it.narration
	}
	return out
}

// Sequence is the ordered list of items for one run.
type Sequence []Item

// Len returns the number of items; a nil sequence has length 0.
func (s Sequence) Len() int { return len(s) }

// Empty reports whether the sequence has nothing to reveal.
func (s Sequence) Empty() bool { return len(s) == 0 }

// FromRecords converts loose records into a Sequence.
func FromRecords(records []map[string]any, narrationKey string) Sequence {
	if len(records) == 0 {
		return nil
	}
	seq := make(Sequence, len(records))
	for i, r := range records {
		seq[i] = FromRecord(r, narrationKey)
	}
	return seq
}

// FieldMap names the two rendered axes of a chart.
type FieldMap struct {
	X string `yaml:"x" json:"x" mapstructure:"x"`
	Y string `yaml:"y" json:"y" mapstructure:"y"`
}

// DefaultFieldMap matches the month/desktop shape of the sample charts.
var DefaultFieldMap = FieldMap{X: "month", Y: "desktop"}

// WithDefaults fills empty keys from DefaultFieldMap.
func (m FieldMap) WithDefaults() FieldMap {
	if m.X == "" {
		m.X = DefaultFieldMap.X
	}
	if m.Y == "" {
		m.Y = DefaultFieldMap.Y
	}
	return m
}

// Column describes one rendered table column.
type Column struct {
	Key   string `yaml:"key" json:"key" mapstructure:"key"`
	Label string `yaml:"label" json:"label" mapstructure:"label"`
}

// Heading returns the column label, falling back to the key.
func (c Column) Heading() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Key
}

// ColumnsFor derives columns from the union of keys across a sequence, in
// order of first appearance with each item's keys sorted.
func ColumnsFor(seq Sequence) []Column {
	seen := make(map[string]bool)
	var cols []Column
	for _, it := range seq {
		for _, k := range it.Keys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, Column{Key: k})
			}
		}
	}
	return cols
}
