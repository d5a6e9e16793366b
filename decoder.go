package indiclient

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/rickbassham/logging"
)

// topLevelElementNames is the vocabulary the decoder's malformed-recovery
// scan resynchronizes on; the message builder's dispatch switch
// (BuildMessage in message.go) has one case per name. Unlike property names,
// this is a closed protocol vocabulary -- an indiserver driver cannot
// introduce new top-level elements, so this list is exhaustive for the wire
// format in spec.md §4.2.
var topLevelElementNames = []string{
	"getProperties",
	"defTextVector", "defNumberVector", "defSwitchVector", "defLightVector", "defBLOBVector",
	"setTextVector", "setNumberVector", "setSwitchVector", "setLightVector", "setBLOBVector",
	"newTextVector", "newNumberVector", "newSwitchVector", "newLightVector", "newBLOBVector",
	"delProperty",
	"enableBLOB",
	"message",
	"pingRequest",
	"pingReply",
}

// buildFrame is the decoder's in-progress element while its closing tag
// hasn't arrived yet.
type buildFrame struct {
	el   *rawElement
	text strings.Builder
}

// StreamDecoder is component A: an incremental, SAX-style parser over a
// concatenated, rootless stream of INDI XML elements. Feed bytes in any
// chunking and it emits one rawElement per completed top-level element, in
// arrival order (spec.md §4.1, testable property 1 and 2).
//
// It works by re-tokenizing the still-unconsumed buffer with a fresh
// encoding/xml.Decoder on every Feed call and using Decoder.InputOffset to
// learn how many bytes were consumed by each completed top-level element --
// the same trick the teacher's read loop relies on implicitly by handing
// xml.NewDecoder a live, blocking connection. Re-tokenizing from the
// unconsumed remainder is what lets an attribute or tag name split across
// chunk boundaries "just work": the decoder never interprets a byte until
// the bytes around it are actually present.
type StreamDecoder struct {
	log logging.Logger
	buf []byte
}

// NewStreamDecoder creates a decoder that logs discarded/malformed data to log.
func NewStreamDecoder(log logging.Logger) *StreamDecoder {
	return &StreamDecoder{log: log}
}

// Feed appends chunk to the decoder's buffer and returns every top-level
// element that could be completed as a result, in order. Bytes that don't
// yet form a complete element are retained for the next Feed or Close call.
func (d *StreamDecoder) Feed(chunk []byte) []*rawElement {
	d.buf = append(d.buf, chunk...)

	var out []*rawElement
	for {
		el, progressed := d.decodeNext()
		if el != nil {
			out = append(out, el)
		}
		if !progressed {
			break
		}
	}
	return out
}

// Close flushes the decoder at end-of-stream. Any still-incomplete element is
// dropped (spec.md §4.1: "the decoder never blocks on end-of-input"); a
// Warning is logged rather than surfaced as a Diagnostic since there is no
// completed message to attach one to.
func (d *StreamDecoder) Close() {
	if len(bytes.TrimSpace(d.buf)) > 0 {
		d.log.WithField("bytes", len(d.buf)).Warn("stream closed with a partial element pending; discarding")
	}
	d.buf = nil
}

// decodeNext attempts to complete one more top-level element from the
// current buffer. progressed is false when nothing more can be done without
// additional bytes; callers should stop looping in that case.
func (d *StreamDecoder) decodeNext() (el *rawElement, progressed bool) {
	trimmed := bytes.TrimLeft(d.buf, " \t\r\n")
	d.buf = trimmed
	if len(d.buf) == 0 {
		return nil, false
	}

	dec := xml.NewDecoder(bytes.NewReader(d.buf))

	var stack []*buildFrame

	for {
		tok, err := dec.Token()
		if err != nil {
			// encoding/xml reports input that ends inside an element or tag
			// as a SyntaxError "unexpected EOF" rather than io.EOF.
			if se, ok := err.(*xml.SyntaxError); err == io.EOF || (ok && strings.HasPrefix(se.Msg, "unexpected EOF")) {
				// Not enough bytes yet to complete the current top-level
				// element; leave d.buf untouched and wait for more data.
				return nil, false
			}
			return d.recoverFromMalformed(stack)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			frame := &buildFrame{el: &rawElement{Name: t.Name.Local}}
			for _, a := range t.Attr {
				frame.el.Attrs = append(frame.el.Attrs, rawAttr{Name: a.Name.Local, Value: a.Value})
			}
			stack = append(stack, frame)

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}

		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			frame := stack[len(stack)-1]
			frame.el.Text = trimText(frame.text.String())
			stack = stack[:len(stack)-1]

			if len(stack) == 0 {
				offset := dec.InputOffset()
				d.buf = d.buf[offset:]
				return frame.el, true
			}

			parent := stack[len(stack)-1]
			parent.el.Children = append(parent.el.Children, frame.el)
		}
	}
}

// recoverFromMalformed implements spec.md §4.1's recovery rule: attach a
// Fatal diagnostic to whatever top-level element was open, then discard
// bytes up to the next recognizable top-level start tag.
func (d *StreamDecoder) recoverFromMalformed(stack []*buildFrame) (*rawElement, bool) {
	name := "unknown"
	if len(stack) > 0 {
		name = stack[0].el.Name
	}

	d.log.WithField("element", name).Warn("malformed xml; resynchronizing")

	// Always skip at least one byte so a parse error at position 0 can't
	// loop forever without consuming anything.
	searchFrom := 1
	if searchFrom > len(d.buf) {
		searchFrom = len(d.buf)
	}

	idx := findNextTopLevelStart(d.buf[searchFrom:])
	if idx < 0 {
		d.buf = nil
	} else {
		d.buf = d.buf[searchFrom+idx:]
	}

	el := &rawElement{Name: name}
	el.Diagnostics = append(el.Diagnostics, Diagnostic{
		Severity: SeverityFatal,
		Message:  fmt.Sprintf("malformed xml encountered while parsing %q; stream resynchronized", name),
	})

	return el, true
}

// findNextTopLevelStart returns the earliest index in buf at which a
// recognized top-level element's start tag begins, or -1 if none is found.
func findNextTopLevelStart(buf []byte) int {
	best := -1
	for _, name := range topLevelElementNames {
		needle := "<" + name
		if idx := bytes.Index(buf, []byte(needle)); idx >= 0 {
			if best < 0 || idx < best {
				best = idx
			}
		}
	}
	return best
}
