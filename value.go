package indiclient

// Value is one element of a property vector. Exactly one of the payload
// fields (Text, Number, Boolean, State, Blob) is meaningful, selected by the
// owning Property's Kind. The metadata fields are only legal for certain
// kinds (see message.go's validation of DefNumber/DefText/... elements);
// carrying all of them on a single struct rather than five separate typed
// value structs is what lets one mergeValue (below, applied by registry.go's
// mergeValues) serve every Kind instead of duplicating five copies of the
// same "new if Some, else existing" rule.
type Value struct {
	Name  ValueName
	Label string

	Text    string
	Number  float64
	Boolean bool
	State   PropertyState
	Blob    []byte

	// Metadata, legal subset depends on Kind.
	Format     string
	HasMinMax  bool
	Min        float64
	Max        float64
	HasStep    bool
	Step       float64
	Unit       string
	HasSize    bool
	Size       int64
	HasCompressed bool
	Compressed    bool
}

// mergeValue implements the "new if Some, else existing" rule from spec.md
// §4.4: an incoming value that omits a metadata field keeps whatever the
// existing (usually DefineProperty-established) value had for that field.
// The payload is always taken from incoming.
func mergeValue(existing, incoming Value) Value {
	merged := incoming

	if incoming.Label == "" {
		merged.Label = existing.Label
	}
	if incoming.Format == "" {
		merged.Format = existing.Format
	}
	if !incoming.HasMinMax {
		merged.HasMinMax = existing.HasMinMax
		merged.Min = existing.Min
		merged.Max = existing.Max
	}
	if !incoming.HasStep {
		merged.HasStep = existing.HasStep
		merged.Step = existing.Step
	}
	if incoming.Unit == "" {
		merged.Unit = existing.Unit
	}
	if !incoming.HasSize {
		merged.HasSize = existing.HasSize
		merged.Size = existing.Size
	}
	if !incoming.HasCompressed {
		merged.HasCompressed = existing.HasCompressed
		merged.Compressed = existing.Compressed
	}

	return merged
}
