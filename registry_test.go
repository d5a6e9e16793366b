package indiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(newTestLogger(), nil)
}

// TestRegistry_DefineThenUpdatePreservesFormat is scenario E1: a DefineProperty
// establishing format/min/max, followed by an UpdateProperty that only
// carries a new payload, must keep the metadata via attribute-preserving
// merge (spec.md §4.4).
func TestRegistry_DefineThenUpdatePreservesFormat(t *testing.T) {
	r := newTestRegistry()

	def := parseOne(t, `<defNumberVector device="T" name="EQUATORIAL_EOD_COORD" state="Ok" perm="rw"><defNumber name="RA" format="%010.6m" min="0" max="24" unit="hours">12.0</defNumber></defNumberVector>`)
	r.ProcessMessage(def)

	upd := parseOne(t, `<setNumberVector device="T" name="EQUATORIAL_EOD_COORD"><oneNumber name="RA">13.5</oneNumber></setNumberVector>`)
	r.ProcessMessage(upd)

	dev, ok := r.Device("T")
	require.True(t, ok)
	p, ok := dev.Property("EQUATORIAL_EOD_COORD")
	require.True(t, ok)

	v, ok := p.Value("RA")
	require.True(t, ok)
	assert.Equal(t, 13.5, v.Number)
	assert.Equal(t, "%010.6m", v.Format)
	assert.True(t, v.HasMinMax)
	assert.Equal(t, 0.0, v.Min)
	assert.Equal(t, 24.0, v.Max)
	assert.Equal(t, "hours", v.Unit)
}

// TestRegistry_DeleteCascade is scenario E5: delProperty with no name wipes the
// whole device; with both device and name absent, wipes the entire store.
func TestRegistry_DeleteCascade(t *testing.T) {
	r := newTestRegistry()

	r.ProcessMessage(parseOne(t, `<defTextVector device="T" name="A" state="Ok" perm="rw"><defText name="X">hi</defText></defTextVector>`))
	r.ProcessMessage(parseOne(t, `<defTextVector device="T" name="B" state="Ok" perm="rw"><defText name="X">hi</defText></defTextVector>`))
	r.ProcessMessage(parseOne(t, `<defTextVector device="U" name="C" state="Ok" perm="rw"><defText name="X">hi</defText></defTextVector>`))

	r.ProcessMessage(parseOne(t, `<delProperty device="T" name="A"/>`))
	dev, _ := r.Device("T")
	_, ok := dev.Property("A")
	assert.False(t, ok)
	_, ok = dev.Property("B")
	assert.True(t, ok, "deleting one property must not remove its sibling")

	r.ProcessMessage(parseOne(t, `<delProperty device="T"/>`))
	_, ok = r.Device("T")
	assert.False(t, ok, "delProperty with no name must remove the whole device")

	r.ProcessMessage(parseOne(t, `<delProperty/>`))
	assert.Empty(t, r.Devices(), "delProperty with neither device nor name must clear the store")
}

func TestRegistry_SwitchTargetOneOfManyClearsOthers(t *testing.T) {
	r := newTestRegistry()
	r.ProcessMessage(parseOne(t, `<defSwitchVector device="D" name="FILTER" rule="OneOfMany" state="Ok" perm="rw">
		<defSwitch name="A">On</defSwitch>
		<defSwitch name="B">Off</defSwitch>
		<defSwitch name="C">Off</defSwitch>
	</defSwitchVector>`))

	require.NoError(t, r.SetTargetSwitch("D", "FILTER", "B", true))

	dev, _ := r.Device("D")
	p, _ := dev.Property("FILTER")
	a, _ := p.TargetSwitchValue("A")
	b, _ := p.TargetSwitchValue("B")
	c, _ := p.TargetSwitchValue("C")
	assert.False(t, a)
	assert.True(t, b)
	assert.False(t, c)
}

// TestRegistry_SwitchTargetBinaryFlip covers the OneOfMany two-element
// turn-off-flips-the-other rule from spec.md §4.4.
func TestRegistry_SwitchTargetBinaryFlip(t *testing.T) {
	r := newTestRegistry()
	r.ProcessMessage(parseOne(t, `<defSwitchVector device="D" name="CONNECTION" rule="OneOfMany" state="Ok" perm="rw">
		<defSwitch name="CONNECT">On</defSwitch>
		<defSwitch name="DISCONNECT">Off</defSwitch>
	</defSwitchVector>`))

	require.NoError(t, r.SetTargetSwitch("D", "CONNECTION", "CONNECT", false))

	dev, _ := r.Device("D")
	p, _ := dev.Property("CONNECTION")
	connect, _ := p.TargetSwitchValue("CONNECT")
	disconnect, _ := p.TargetSwitchValue("DISCONNECT")
	assert.False(t, connect)
	assert.True(t, disconnect)
}

// TestRegistry_SwitchTargetAmbiguousOffRejected: three-element OneOfMany has
// no well-defined "the other one" to flip on, so turning one off must fail.
func TestRegistry_SwitchTargetAmbiguousOffRejected(t *testing.T) {
	r := newTestRegistry()
	r.ProcessMessage(parseOne(t, `<defSwitchVector device="D" name="FILTER" rule="OneOfMany" state="Ok" perm="rw">
		<defSwitch name="A">On</defSwitch>
		<defSwitch name="B">Off</defSwitch>
		<defSwitch name="C">Off</defSwitch>
	</defSwitchVector>`))

	err := r.SetTargetSwitch("D", "FILTER", "A", false)
	assert.ErrorIs(t, err, ErrRuleViolation)
}

func TestRegistry_TargetWriteReadOnlyRejected(t *testing.T) {
	r := newTestRegistry()
	r.ProcessMessage(parseOne(t, `<defTextVector device="D" name="INFO" state="Ok" perm="ro"><defText name="X">hi</defText></defTextVector>`))

	err := r.SetTargetText("D", "INFO", "X", "new")
	assert.ErrorIs(t, err, ErrPropertyReadOnly)
}

func TestRegistry_TargetWriteUnknownDeviceOrProperty(t *testing.T) {
	r := newTestRegistry()

	err := r.SetTargetText("missing", "P", "X", "v")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	r.ProcessMessage(parseOne(t, `<defTextVector device="D" name="A" state="Ok" perm="rw"><defText name="X">hi</defText></defTextVector>`))
	err = r.SetTargetText("D", "missing", "X", "v")
	assert.ErrorIs(t, err, ErrPropertyNotFound)
}

func TestRegistry_CallbackPanicIsolated(t *testing.T) {
	r := newTestRegistry()
	r.SetOnDeviceUpdate(func(device *Device) {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		r.ProcessMessage(parseOne(t, `<defTextVector device="D" name="A" state="Ok" perm="rw"><defText name="X">hi</defText></defTextVector>`))
	})

	_, ok := r.Device("D")
	assert.True(t, ok, "registry state must survive a panicking callback")
}

func TestRegistry_ServerMessagePublished(t *testing.T) {
	r := newTestRegistry()
	r.ProcessMessage(parseOne(t, `<message device="D" timestamp="2026-01-22T15:32:57">Slew complete</message>`))

	select {
	case m := <-r.ServerMessages():
		assert.Equal(t, "D", m.Device)
		assert.Equal(t, "Slew complete", m.Text)
	default:
		t.Fatal("expected a published server message")
	}
}
