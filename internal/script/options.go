package script

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/roach88/narrator/internal/item"
)

// Visual is what a show step puts on screen.
type Visual struct {
	// X and Y name the chart axes. Defaults follow item.DefaultFieldMap.
	X string `mapstructure:"x"`
	Y string `mapstructure:"y"`

	// Audio turns narration of the items on or off. Default: on.
	Audio *bool `mapstructure:"audio"`

	// NarrationKey is the record key holding spoken text. Default: "audio".
	NarrationKey string `mapstructure:"narration_key"`

	// Columns orders and labels table columns. Empty derives them from the
	// data.
	Columns []item.Column `mapstructure:"columns"`

	// Data holds one record per item.
	Data []map[string]any `mapstructure:"data"`
}

// DecodeVisual decodes loose step options. Unknown keys are an error.
func DecodeVisual(opts map[string]any) (Visual, error) {
	var v Visual
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &v,
		ErrorUnused: true,
	})
	if err != nil {
		return Visual{}, fmt.Errorf("building options decoder: %w", err)
	}
	if err := decoder.Decode(opts); err != nil {
		return Visual{}, fmt.Errorf("decoding options: %w", err)
	}
	return v, nil
}

// AudioEnabled reports whether items should be narrated.
func (v Visual) AudioEnabled() bool {
	return v.Audio == nil || *v.Audio
}

// Fields returns the chart axes with defaults applied.
func (v Visual) Fields() item.FieldMap {
	return item.FieldMap{X: v.X, Y: v.Y}.WithDefaults()
}

// Sequence converts the records into items.
func (v Visual) Sequence() item.Sequence {
	return item.FromRecords(v.Data, v.NarrationKey)
}

// TableColumns returns the configured columns, or columns derived from seq.
func (v Visual) TableColumns(seq item.Sequence) []item.Column {
	if len(v.Columns) > 0 {
		return v.Columns
	}
	return item.ColumnsFor(seq)
}
