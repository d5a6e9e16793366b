package indiclient

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Serialize renders msg to its wire form (component B, outbound half). Only
// GetProperties, SetProperty, EnableBlob, PingReply and ServerMessage are
// serializable; the other variants (DefineProperty, UpdateProperty,
// DeleteProperty, PingRequest) are something only a server sends, so
// attempting to serialize one is a programmer error reported as
// ErrNotSerializable rather than silently producing garbage.
//
// The result carries no trailing newline -- spec.md §4.2 assigns that to the
// session layer, which appends '\n' once per document before writing.
func Serialize(msg *Message) ([]byte, error) {
	switch msg.Kind {
	case MsgGetProperties:
		return serializeGetProperties(msg), nil
	case MsgSetProperty:
		return serializeSetProperty(msg)
	case MsgEnableBlob:
		return serializeEnableBlob(msg), nil
	case MsgPingReply:
		return serializePingReply(msg), nil
	case MsgServerMessage:
		return serializeServerMessage(msg), nil
	default:
		return nil, ErrNotSerializable
	}
}

// escapeXML applies the five mandatory XML entity escapes. encoding/xml's
// own escaper is unavailable here since the serializer is hand-rolled to
// control attribute order and quoting style exactly (see DESIGN.md's
// message.go/protocol.go entry and spec.md §4.2); this is the one piece of
// that job.
func escapeXML(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05")
}

func serializeGetProperties(msg *Message) []byte {
	version := msg.Version
	if version == "" {
		version = "1.7"
	}

	var b strings.Builder
	b.WriteString("<getProperties version='")
	b.WriteString(escapeXML(version))
	b.WriteString("'")
	if msg.Device != "" {
		b.WriteString(` device="`)
		b.WriteString(escapeXML(msg.Device))
		b.WriteString(`"`)
	}
	if msg.Name != "" {
		b.WriteString(` name="`)
		b.WriteString(escapeXML(msg.Name))
		b.WriteString(`"`)
	}
	b.WriteString("/>")
	return []byte(b.String())
}

// kindTag maps a PropertyKind to the "Text"/"Number"/... fragment used to
// build both the new*Vector wrapper tag and its one* child tag.
func kindTag(kind PropertyKind) (string, error) {
	switch kind {
	case KindText:
		return "Text", nil
	case KindNumber:
		return "Number", nil
	case KindSwitch:
		return "Switch", nil
	case KindLight:
		return "Light", nil
	case KindBlob:
		return "BLOB", nil
	default:
		return "", ErrNotSerializable
	}
}

func renderValueText(v Value, kind PropertyKind) string {
	switch kind {
	case KindText:
		return v.Text
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindSwitch:
		if v.Boolean {
			return "On"
		}
		return "Off"
	case KindLight:
		return string(v.State)
	case KindBlob:
		return base64.StdEncoding.EncodeToString(v.Blob)
	default:
		return ""
	}
}

func serializeSetProperty(msg *Message) ([]byte, error) {
	tag, err := kindTag(msg.PropertyKind)
	if err != nil {
		return nil, err
	}
	childTag := "one" + tag

	var b strings.Builder
	b.WriteString("<new")
	b.WriteString(tag)
	b.WriteString(`Vector device="`)
	b.WriteString(escapeXML(msg.Device))
	b.WriteString(`" name="`)
	b.WriteString(escapeXML(msg.Name))
	b.WriteString(`">`)
	for _, v := range msg.Values {
		b.WriteString("\n  <")
		b.WriteString(childTag)
		b.WriteString(` name="`)
		b.WriteString(escapeXML(v.Name))
		b.WriteString(`">`)
		b.WriteString(escapeXML(renderValueText(v, msg.PropertyKind)))
		b.WriteString("</")
		b.WriteString(childTag)
		b.WriteString(">")
	}
	b.WriteString("\n</new")
	b.WriteString(tag)
	b.WriteString("Vector>")
	return []byte(b.String()), nil
}

func serializeEnableBlob(msg *Message) []byte {
	state := msg.BlobState
	if state == "" {
		state = BlobSendingNever
	}

	var b strings.Builder
	b.WriteString(`<enableBLOB device="`)
	b.WriteString(escapeXML(msg.Device))
	b.WriteString(`"`)
	if msg.Name != "" {
		b.WriteString(` name="`)
		b.WriteString(escapeXML(msg.Name))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.WriteString(escapeXML(string(state)))
	b.WriteString("</enableBLOB>")
	return []byte(b.String())
}

func serializePingReply(msg *Message) []byte {
	if msg.UID == "" {
		return []byte("<pingReply/>")
	}
	return []byte(fmt.Sprintf(`<pingReply uid="%s"/>`, escapeXML(msg.UID)))
}

func serializeServerMessage(msg *Message) []byte {
	var b strings.Builder
	b.WriteString("<message")
	if msg.Device != "" {
		b.WriteString(` device="`)
		b.WriteString(escapeXML(msg.Device))
		b.WriteString(`"`)
	}
	if msg.HasTimestamp {
		b.WriteString(` timestamp="`)
		b.WriteString(escapeXML(formatTimestamp(msg.Timestamp)))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.WriteString(escapeXML(msg.Text))
	b.WriteString("</message>")
	return []byte(b.String())
}
