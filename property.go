package indiclient

import (
	"sort"
	"time"
)

// Property is one named vector belonging to a Device: name, kind, group,
// label, perm, state, timeout, rule (switch only), format (number/blob
// only), current values (ordered), and an optional target snapshot set by
// local writes (spec.md §3.4). Unlike the teacher's five separate
// TextProperty/SwitchProperty/.../BlobProperty structs, there is a single
// Property type discriminated by Kind -- the registry's merge and
// target-write logic would otherwise need five near-identical copies.
type Property struct {
	Name  PropertyName
	Kind  PropertyKind
	Group string
	Label string
	Perm  PropertyPermission
	State PropertyState

	Timeout    int
	HasTimeout bool

	Rule   SwitchRule // meaningful only when Kind == KindSwitch
	Format string     // meaningful only when Kind == KindNumber or KindBlob

	Values []Value // current values, insertion order, unique by Name

	TargetValues []Value // set only by local target writes
	HasTarget    bool

	Timestamp    time.Time
	HasTimestamp bool

	TargetTimestamp    time.Time
	HasTargetTimestamp bool
}

func indexOfValue(values []Value, name ValueName) int {
	for i, v := range values {
		if v.Name == name {
			return i
		}
	}
	return -1
}

// Value returns the current value named name.
func (p *Property) Value(name ValueName) (Value, bool) {
	if i := indexOfValue(p.Values, name); i >= 0 {
		return p.Values[i], true
	}
	return Value{}, false
}

// TargetValue returns the pending target value named name, if any.
func (p *Property) TargetValue(name ValueName) (Value, bool) {
	if !p.HasTarget {
		return Value{}, false
	}
	if i := indexOfValue(p.TargetValues, name); i >= 0 {
		return p.TargetValues[i], true
	}
	return Value{}, false
}

// TextValue returns the current text payload of the named element.
func (p *Property) TextValue(name ValueName) (string, error) {
	v, ok := p.Value(name)
	if !ok {
		return "", ErrPropertyValueNotFound
	}
	return v.Text, nil
}

// NumberValue returns the current numeric payload of the named element.
func (p *Property) NumberValue(name ValueName) (float64, error) {
	v, ok := p.Value(name)
	if !ok {
		return 0, ErrPropertyValueNotFound
	}
	return v.Number, nil
}

// SwitchValue returns the current boolean payload of the named element.
func (p *Property) SwitchValue(name ValueName) (bool, error) {
	v, ok := p.Value(name)
	if !ok {
		return false, ErrPropertyValueNotFound
	}
	return v.Boolean, nil
}

// TargetSwitchValue returns the target boolean payload of the named element
// as last set by SetTargetSwitch. Flushing with SendTargetValues and later
// server updates leave the target in place.
func (p *Property) TargetSwitchValue(name ValueName) (bool, error) {
	v, ok := p.TargetValue(name)
	if !ok {
		return false, ErrPropertyValueNotFound
	}
	return v.Boolean, nil
}

// setValue upserts v by name, preserving insertion order for new names.
func (p *Property) setValue(v Value) {
	if i := indexOfValue(p.Values, v.Name); i >= 0 {
		p.Values[i] = v
		return
	}
	p.Values = append(p.Values, v)
}

func (p *Property) setTargetValue(v Value) {
	if i := indexOfValue(p.TargetValues, v.Name); i >= 0 {
		p.TargetValues[i] = v
		return
	}
	p.TargetValues = append(p.TargetValues, v)
}

// Device holds one server-reported device: its name and an insertion-ordered
// list of Property (spec.md §3.4). Devices are created implicitly by the
// registry on first DefineProperty/UpdateProperty mention; only the registry
// mutates a Device, so every field here is otherwise read-only to callers.
type Device struct {
	Name       string
	Properties []*Property

	propertyIndex map[PropertyName]int
}

func newDevice(name string) *Device {
	return &Device{Name: name, propertyIndex: map[PropertyName]int{}}
}

// Property looks up a property by name.
func (d *Device) Property(name PropertyName) (*Property, bool) {
	if i, ok := d.propertyIndex[name]; ok {
		return d.Properties[i], true
	}
	return nil, false
}

func (d *Device) hasPropertyOfKind(name PropertyName, kind PropertyKind) bool {
	p, ok := d.Property(name)
	return ok && p.Kind == kind
}

// HasTextProperty probes whether name is currently defined as a text
// property, without the caller needing to unpack the (*Property, bool)
// pair from Property itself. Grounded on jnmorley's TextPropertySet.
func (d *Device) HasTextProperty(name PropertyName) bool {
	return d.hasPropertyOfKind(name, KindText)
}

// HasNumberProperty probes whether name is currently defined as a number
// property. Grounded on jnmorley's NumberPropertySet.
func (d *Device) HasNumberProperty(name PropertyName) bool {
	return d.hasPropertyOfKind(name, KindNumber)
}

// HasSwitchProperty probes whether name is currently defined as a switch
// property. Grounded on jnmorley's SwitchPropertySet.
func (d *Device) HasSwitchProperty(name PropertyName) bool {
	return d.hasPropertyOfKind(name, KindSwitch)
}

// HasLightProperty probes whether name is currently defined as a light
// property. Grounded on jnmorley's LightPropertySet-equivalent coverage of
// the five property kinds.
func (d *Device) HasLightProperty(name PropertyName) bool {
	return d.hasPropertyOfKind(name, KindLight)
}

// HasBlobProperty probes whether name is currently defined as a BLOB
// property. Grounded on jnmorley's BlobPropertySet.
func (d *Device) HasBlobProperty(name PropertyName) bool {
	return d.hasPropertyOfKind(name, KindBlob)
}

// putProperty upserts p by name, preserving the property's original
// position when it already exists (so Groups() and any UI iterating
// Properties sees stable ordering across updates).
func (d *Device) putProperty(p *Property) {
	if i, ok := d.propertyIndex[p.Name]; ok {
		d.Properties[i] = p
		return
	}
	d.propertyIndex[p.Name] = len(d.Properties)
	d.Properties = append(d.Properties, p)
}

// removeProperty deletes the named property, if present, reporting whether
// anything was removed.
func (d *Device) removeProperty(name PropertyName) bool {
	i, ok := d.propertyIndex[name]
	if !ok {
		return false
	}
	d.Properties = append(d.Properties[:i], d.Properties[i+1:]...)
	delete(d.propertyIndex, name)
	for n, idx := range d.propertyIndex {
		if idx > i {
			d.propertyIndex[n] = idx - 1
		}
	}
	return true
}

// Groups returns the distinct, alphabetically sorted group names across all
// of the device's properties (grounded on the teacher's Device.Groups, here
// generalized to a single Properties list instead of five per-kind maps).
func (d *Device) Groups() []string {
	seen := map[string]bool{}
	for _, p := range d.Properties {
		if p.Group != "" {
			seen[p.Group] = true
		}
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// ConnectionStatus derives a coarse connection state from the device's
// CONNECTION property, comparing its current CONNECT value against any
// pending target (spec.md §6.2's ConnectionStatus contract).
func (d *Device) ConnectionStatus() ConnectionStatus {
	p, ok := d.Property(PropConnection)
	if !ok {
		return ConnectionStatusDisconnected
	}

	connected, err := p.SwitchValue("CONNECT")
	if err != nil {
		return ConnectionStatusDisconnected
	}

	if !p.HasTarget {
		if connected {
			return ConnectionStatusConnected
		}
		return ConnectionStatusDisconnected
	}

	targetConnected, err := p.TargetSwitchValue("CONNECT")
	if err != nil || targetConnected == connected {
		if connected {
			return ConnectionStatusConnected
		}
		return ConnectionStatusDisconnected
	}

	if targetConnected {
		return ConnectionStatusConnecting
	}
	return ConnectionStatusDisconnecting
}
