package indiclient

import (
	"os"
	"testing"

	"github.com/rickbassham/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() logging.Logger {
	return logging.NewLogger(os.Stdout, logging.JSONFormatter{}, logging.LogLevelInfo)
}

func TestStreamDecoder_SingleElement(t *testing.T) {
	d := NewStreamDecoder(newTestLogger())

	out := d.Feed([]byte(`<pingRequest uid="abc"/>`))
	require.Len(t, out, 1)
	assert.Equal(t, "pingRequest", out[0].Name)
	uid, ok := out[0].attr("uid")
	assert.True(t, ok)
	assert.Equal(t, "abc", uid)
}

// TestStreamDecoder_ForestSemantics is testable property 2: concatenating N
// valid documents yields exactly N messages, in order.
func TestStreamDecoder_ForestSemantics(t *testing.T) {
	d := NewStreamDecoder(newTestLogger())

	input := `<getProperties version='1.7'/><pingRequest uid="1"/><pingRequest uid="2"/>`
	out := d.Feed([]byte(input))

	require.Len(t, out, 3)
	assert.Equal(t, "getProperties", out[0].Name)
	assert.Equal(t, "pingRequest", out[1].Name)
	assert.Equal(t, "pingRequest", out[2].Name)
	uid1, _ := out[1].attr("uid")
	uid2, _ := out[2].attr("uid")
	assert.Equal(t, "1", uid1)
	assert.Equal(t, "2", uid2)
}

// TestStreamDecoder_ChunkIndependence is testable property 1: splitting the
// byte stream at an arbitrary, even mid-tag, boundary must not change the
// emitted elements.
func TestStreamDecoder_ChunkIndependence(t *testing.T) {
	input := `<defTextVector device="T" name="N"><defText name="A">hello</defText></defTextVector>`

	whole := NewStreamDecoder(newTestLogger())
	wholeOut := whole.Feed([]byte(input))
	require.Len(t, wholeOut, 1)

	chunked := NewStreamDecoder(newTestLogger())
	var chunkedOut []*rawElement
	for i := 0; i < len(input); i++ {
		chunkedOut = append(chunkedOut, chunked.Feed([]byte{input[i]})...)
	}
	require.Len(t, chunkedOut, 1)

	assert.Equal(t, wholeOut[0].Name, chunkedOut[0].Name)
	assert.Equal(t, wholeOut[0].Children[0].Text, chunkedOut[0].Children[0].Text)
}

func TestStreamDecoder_NestedChildren(t *testing.T) {
	d := NewStreamDecoder(newTestLogger())

	input := `<defSwitchVector device="D" name="N" rule="OneOfMany" state="Ok">
		<defSwitch name="CONNECT" label="Connect">On</defSwitch>
		<defSwitch name="DISCONNECT" label="Disconnect">Off</defSwitch>
	</defSwitchVector>`

	out := d.Feed([]byte(input))
	require.Len(t, out, 1)
	require.Len(t, out[0].Children, 2)
	assert.Equal(t, "defSwitch", out[0].Children[0].Name)
	assert.Equal(t, "On", out[0].Children[0].Text)
}

func TestStreamDecoder_MalformedRecovery(t *testing.T) {
	d := NewStreamDecoder(newTestLogger())

	input := `<defTextVector device="T" name="N"><unclosed></defTextVector><pingRequest uid="ok"/>`
	out := d.Feed([]byte(input))

	require.NotEmpty(t, out)
	last := out[len(out)-1]
	assert.Equal(t, "pingRequest", last.Name)

	foundFatal := false
	for _, el := range out {
		if HasSeverityAtLeast(el.Diagnostics, SeverityFatal) {
			foundFatal = true
		}
	}
	assert.True(t, foundFatal)
}

func TestStreamDecoder_PartialElementBuffered(t *testing.T) {
	d := NewStreamDecoder(newTestLogger())

	out := d.Feed([]byte(`<pingRequest uid="a`))
	assert.Empty(t, out)

	out = d.Feed([]byte(`bc"/>`))
	require.Len(t, out, 1)
	uid, _ := out[0].attr("uid")
	assert.Equal(t, "abc", uid)
}

func TestStreamDecoder_CloseDropsPartial(t *testing.T) {
	d := NewStreamDecoder(newTestLogger())
	d.Feed([]byte(`<pingRequest uid="a`))
	d.Close() // must not panic or block
	assert.Nil(t, d.buf)
}
