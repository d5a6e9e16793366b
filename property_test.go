package indiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_PutAndGetProperty(t *testing.T) {
	d := newDevice("T")
	d.putProperty(&Property{Name: "A", Group: "Main"})
	d.putProperty(&Property{Name: "B", Group: "Main"})

	p, ok := d.Property("A")
	require.True(t, ok)
	assert.Equal(t, PropertyName("A"), p.Name)

	_, ok = d.Property("missing")
	assert.False(t, ok)
}

func TestDevice_PutPropertyPreservesPosition(t *testing.T) {
	d := newDevice("T")
	d.putProperty(&Property{Name: "A"})
	d.putProperty(&Property{Name: "B"})
	d.putProperty(&Property{Name: "A", Label: "updated"})

	require.Len(t, d.Properties, 2)
	assert.Equal(t, "updated", d.Properties[0].Label)
	assert.Equal(t, PropertyName("B"), d.Properties[1].Name)
}

func TestDevice_RemoveProperty(t *testing.T) {
	d := newDevice("T")
	d.putProperty(&Property{Name: "A"})
	d.putProperty(&Property{Name: "B"})
	d.putProperty(&Property{Name: "C"})

	assert.True(t, d.removeProperty("B"))
	assert.False(t, d.removeProperty("B"))

	require.Len(t, d.Properties, 2)
	_, ok := d.Property("C")
	assert.True(t, ok, "removeProperty must reindex remaining entries")
}

func TestDevice_Groups(t *testing.T) {
	d := newDevice("T")
	d.putProperty(&Property{Name: "A", Group: "Main Control"})
	d.putProperty(&Property{Name: "B", Group: "Options"})
	d.putProperty(&Property{Name: "C", Group: "Main Control"})
	d.putProperty(&Property{Name: "D"})

	assert.Equal(t, []string{"Main Control", "Options"}, d.Groups())
}

func TestProperty_TypedAccessors(t *testing.T) {
	p := &Property{Name: "N", Kind: KindNumber, Values: []Value{{Name: "X", Number: 3.5}}}

	v, err := p.NumberValue("X")
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)

	_, err = p.NumberValue("missing")
	assert.ErrorIs(t, err, ErrPropertyValueNotFound)
}

func TestProperty_TargetValue(t *testing.T) {
	p := &Property{Name: "N", Kind: KindSwitch, Values: []Value{{Name: "CONNECT", Boolean: false}}}

	_, ok := p.TargetValue("CONNECT")
	assert.False(t, ok, "no target set yet")

	p.HasTarget = true
	p.TargetValues = []Value{{Name: "CONNECT", Boolean: true}}

	v, err := p.TargetSwitchValue("CONNECT")
	require.NoError(t, err)
	assert.True(t, v)
}

func TestDevice_ConnectionStatus(t *testing.T) {
	cases := []struct {
		name   string
		prop   *Property
		absent bool
		want   ConnectionStatus
	}{
		{name: "no connection property", absent: true, want: ConnectionStatusDisconnected},
		{
			name: "connected, no target",
			prop: &Property{Name: PropConnection, Kind: KindSwitch, Values: []Value{{Name: "CONNECT", Boolean: true}}},
			want: ConnectionStatusConnected,
		},
		{
			name: "disconnected, no target",
			prop: &Property{Name: PropConnection, Kind: KindSwitch, Values: []Value{{Name: "CONNECT", Boolean: false}}},
			want: ConnectionStatusDisconnected,
		},
		{
			name: "disconnected with target to connect",
			prop: &Property{
				Name: PropConnection, Kind: KindSwitch,
				Values:       []Value{{Name: "CONNECT", Boolean: false}},
				HasTarget:    true,
				TargetValues: []Value{{Name: "CONNECT", Boolean: true}},
			},
			want: ConnectionStatusConnecting,
		},
		{
			name: "connected with target to disconnect",
			prop: &Property{
				Name: PropConnection, Kind: KindSwitch,
				Values:       []Value{{Name: "CONNECT", Boolean: true}},
				HasTarget:    true,
				TargetValues: []Value{{Name: "CONNECT", Boolean: false}},
			},
			want: ConnectionStatusDisconnecting,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newDevice("T")
			if !tc.absent {
				d.putProperty(tc.prop)
			}
			assert.Equal(t, tc.want, d.ConnectionStatus())
		})
	}
}
