package indiclient

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MessageKind discriminates the tagged union described in spec.md §3.3.
type MessageKind string

const (
	MsgGetProperties MessageKind = "GetProperties"
	MsgDefineProperty MessageKind = "DefineProperty"
	MsgUpdateProperty MessageKind = "UpdateProperty"
	MsgSetProperty    MessageKind = "SetProperty"
	MsgDeleteProperty MessageKind = "DeleteProperty"
	MsgEnableBlob     MessageKind = "EnableBlob"
	MsgServerMessage  MessageKind = "ServerMessage"
	MsgPingRequest    MessageKind = "PingRequest"
	MsgPingReply      MessageKind = "PingReply"
	msgUnknown        MessageKind = "Unknown"
)

// Message is the validated, diagnostic-annotated result of running a
// rawElement through the builder (component B). Only the fields relevant to
// Kind are meaningful; see spec.md §3.3 for the mapping.
type Message struct {
	Kind MessageKind

	Device string
	Name   PropertyName

	PropertyKind PropertyKind
	Group        string
	Label        string
	Perm         PropertyPermission
	State        PropertyState
	HasState     bool
	Timeout      int
	HasTimeout   bool
	Rule         SwitchRule
	Format       string
	Values       []Value

	Timestamp    time.Time
	HasTimestamp bool

	Version string // GetProperties

	BlobState    BlobSending // EnableBlob
	HasBlobState bool

	Text string // ServerMessage

	UID string // PingRequest / PingReply

	Diagnostics []Diagnostic
}

// BuildMessage maps one rawElement (component A's output) to a validated
// Message (component B). Every element name in topLevelElementNames has a
// case here; anything else yields a Warning-tagged message of kind Unknown
// rather than an error, so callers can log and move on without losing the
// decoder's place in the stream.
func BuildMessage(raw *rawElement) *Message {
	var diags diagnostics
	diags = append(diags, raw.Diagnostics...)

	switch raw.Name {
	case "getProperties":
		return buildGetProperties(raw, diags)
	case "defTextVector":
		return buildDefVector(raw, diags, KindText, "defText")
	case "defNumberVector":
		return buildDefVector(raw, diags, KindNumber, "defNumber")
	case "defSwitchVector":
		return buildDefVector(raw, diags, KindSwitch, "defSwitch")
	case "defLightVector":
		return buildDefVector(raw, diags, KindLight, "defLight")
	case "defBLOBVector":
		return buildDefVector(raw, diags, KindBlob, "defBLOB")
	case "setTextVector":
		return buildUpdateVector(raw, diags, KindText, "oneText")
	case "setNumberVector":
		return buildUpdateVector(raw, diags, KindNumber, "oneNumber")
	case "setSwitchVector":
		return buildUpdateVector(raw, diags, KindSwitch, "oneSwitch")
	case "setLightVector":
		return buildUpdateVector(raw, diags, KindLight, "oneLight")
	case "setBLOBVector":
		return buildUpdateVector(raw, diags, KindBlob, "oneBLOB")
	case "newTextVector":
		return buildSetVector(raw, diags, KindText, "oneText")
	case "newNumberVector":
		return buildSetVector(raw, diags, KindNumber, "oneNumber")
	case "newSwitchVector":
		return buildSetVector(raw, diags, KindSwitch, "oneSwitch")
	case "newLightVector":
		return buildSetVector(raw, diags, KindLight, "oneLight")
	case "newBLOBVector":
		return buildSetVector(raw, diags, KindBlob, "oneBLOB")
	case "delProperty":
		return buildDelProperty(raw, diags)
	case "enableBLOB":
		return buildEnableBlob(raw, diags)
	case "message":
		return buildServerMessage(raw, diags)
	case "pingRequest":
		return buildPingRequest(raw, diags)
	case "pingReply":
		return buildPingReply(raw, diags)
	default:
		diags.warn("unknown element %q discarded", raw.Name)
		return &Message{Kind: msgUnknown, Diagnostics: diags}
	}
}

func requireAttr(raw *rawElement, name string, diags *diagnostics) string {
	v, ok := raw.attr(name)
	if !ok {
		diags.error("missing required attribute %q", name)
		return "UNKNOWN"
	}
	return v
}

func warnUnknownAttrs(raw *rawElement, known map[string]bool, diags *diagnostics) {
	for _, a := range raw.Attrs {
		if !known[a.Name] {
			diags.warn("unknown attribute %q discarded", a.Name)
		}
	}
}

func parseTimestamp(s string) (time.Time, error) {
	// Timezone absent means UTC (spec.md §3.1); fractional seconds are
	// variable precision, unlike the single-digit ".9" layout the teacher
	// hardcoded, so each candidate layout is tried in turn.
	layouts := []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// vectorCommon holds the attributes shared by def/set vectors before the
// per-kind legality rules (light has no perm/timeout, only switch has rule,
// only number/blob have format) are applied.
type vectorCommon struct {
	Device, Name, Group, Label string
	Perm                       PropertyPermission
	State                      PropertyState
	HasState                   bool
	Timeout                    int
	HasTimeout                 bool
	Rule                       SwitchRule
	Format                     string
	Timestamp                  time.Time
	HasTimestamp               bool
}

func parseVectorCommon(raw *rawElement, diags *diagnostics, kind PropertyKind) vectorCommon {
	var vc vectorCommon
	vc.Device = requireAttr(raw, "device", diags)
	vc.Name = requireAttr(raw, "name", diags)
	vc.Label, _ = raw.attr("label")
	vc.Group, _ = raw.attr("group")

	if s, ok := raw.attr("state"); ok {
		canon, exact := canonicalPropertyState(s)
		vc.State = canon
		vc.HasState = true
		if !exact {
			if strings.EqualFold(s, string(canon)) {
				diags.warn("state %q has unexpected case; coerced to %q", s, canon)
			} else {
				diags.error("invalid state %q; defaulting to Idle", s)
				vc.State = PropertyStateIdle
			}
		}
	}

	if kind == KindLight {
		if _, ok := raw.attr("perm"); ok {
			diags.warn("light properties must not carry perm; discarded")
		}
	} else if p, ok := raw.attr("perm"); ok {
		switch PropertyPermission(p) {
		case PropertyPermissionReadOnly, PropertyPermissionWriteOnly, PropertyPermissionReadWrite:
			vc.Perm = PropertyPermission(p)
		default:
			diags.warn("invalid permission %q discarded", p)
		}
	}

	if kind == KindSwitch {
		if r, ok := raw.attr("rule"); ok {
			switch SwitchRule(r) {
			case SwitchRuleOneOfMany, SwitchRuleAtMostOne, SwitchRuleAnyOfMany:
				vc.Rule = SwitchRule(r)
			default:
				diags.warn("invalid switch rule %q discarded", r)
			}
		}
	} else if _, ok := raw.attr("rule"); ok {
		diags.warn("rule attribute only applies to switch vectors; discarded")
	}

	if kind == KindLight {
		if _, ok := raw.attr("timeout"); ok {
			diags.warn("light properties must not carry timeout; discarded")
		}
	} else if t, ok := raw.attr("timeout"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			diags.warn("invalid timeout %q discarded", t)
		} else {
			vc.Timeout = n
			vc.HasTimeout = true
		}
	}

	if kind == KindNumber || kind == KindBlob {
		if f, ok := raw.attr("format"); ok {
			vc.Format = f
		}
	} else if _, ok := raw.attr("format"); ok {
		diags.warn("format attribute only applies to number/blob vectors; discarded")
	}

	if ts, ok := raw.attr("timestamp"); ok {
		parsed, err := parseTimestamp(ts)
		if err != nil {
			diags.warn("invalid timestamp %q discarded: %v", ts, err)
		} else {
			vc.Timestamp = parsed
			vc.HasTimestamp = true
		}
	}

	warnUnknownAttrs(raw, map[string]bool{
		"device": true, "name": true, "label": true, "group": true, "state": true,
		"perm": true, "rule": true, "timeout": true, "format": true, "timestamp": true,
	}, diags)

	return vc
}

func parseSwitchText(s string, diags *diagnostics) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	default:
		diags.warn("invalid switch value %q; defaulting to false", s)
		return false
	}
}

func parseOneValue(child *rawElement, diags *diagnostics, kind PropertyKind) Value {
	name, ok := child.attr("name")
	if !ok {
		diags.error("value element missing required name attribute")
		name = "UNKNOWN"
	}
	label, _ := child.attr("label")
	v := Value{Name: name, Label: label}

	switch kind {
	case KindText:
		v.Text = trimText(child.Text)
		warnUnknownAttrs(child, map[string]bool{"name": true, "label": true}, diags)

	case KindNumber:
		raw := trimText(child.Text)
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			diags.error("invalid number value %q; defaulting to 0.0", raw)
			n = 0.0
		}
		v.Number = n

		if f, ok := child.attr("format"); ok {
			v.Format = f
		}
		minS, hasMin := child.attr("min")
		maxS, hasMax := child.attr("max")
		if hasMin && hasMax {
			minV, err1 := strconv.ParseFloat(minS, 64)
			maxV, err2 := strconv.ParseFloat(maxS, 64)
			if err1 == nil && err2 == nil {
				v.HasMinMax = true
				v.Min = minV
				v.Max = maxV
				if minV > maxV {
					diags.warn("min %v greater than max %v", minV, maxV)
				} else if n < minV || n > maxV {
					diags.warn("value %v out of range [%v, %v]", n, minV, maxV)
				}
			}
		}
		if s, ok := child.attr("step"); ok {
			if step, err := strconv.ParseFloat(s, 64); err == nil {
				v.HasStep = true
				v.Step = step
			}
		}
		if u, ok := child.attr("unit"); ok {
			v.Unit = u
		}
		warnUnknownAttrs(child, map[string]bool{
			"name": true, "label": true, "format": true, "min": true, "max": true, "step": true, "unit": true,
		}, diags)

	case KindSwitch:
		v.Boolean = parseSwitchText(child.Text, diags)
		warnUnknownAttrs(child, map[string]bool{"name": true, "label": true}, diags)

	case KindLight:
		text := trimText(child.Text)
		canon, exact := canonicalPropertyState(text)
		v.State = canon
		if !exact {
			if strings.EqualFold(text, string(canon)) {
				diags.warn("light value %q has unexpected case; coerced", text)
			} else {
				diags.error("invalid light value %q; defaulting to Idle", text)
			}
		}
		warnUnknownAttrs(child, map[string]bool{"name": true, "label": true}, diags)

	case KindBlob:
		text := trimText(child.Text)
		if text != "" {
			decoded, err := base64.StdEncoding.DecodeString(text)
			if err != nil {
				// No Error diagnostic: BLOB transfer may be intentionally disabled.
				decoded = nil
			}
			v.Blob = decoded
		}
		if f, ok := child.attr("format"); ok {
			v.Format = f
		}
		if s, ok := child.attr("size"); ok {
			if sz, err := strconv.ParseInt(s, 10, 64); err == nil {
				v.HasSize = true
				v.Size = sz
			}
		}
		if c, ok := child.attr("compressed"); ok {
			v.HasCompressed = true
			v.Compressed = strings.EqualFold(c, "true") || c == "1" || strings.EqualFold(c, "on")
		}
		warnUnknownAttrs(child, map[string]bool{
			"name": true, "label": true, "format": true, "size": true, "compressed": true,
		}, diags)
	}

	return v
}

func parseValueChildren(raw *rawElement, diags *diagnostics, kind PropertyKind, childTag string, propertyName PropertyName) []Value {
	seen := map[string]bool{}
	var values []Value
	for _, child := range raw.Children {
		if child.Name != childTag {
			diags.warn("unexpected child element %q discarded", child.Name)
			continue
		}
		v := parseOneValue(child, diags, kind)
		if seen[v.Name] {
			diags.error("duplicate value name %q", v.Name)
		}
		seen[v.Name] = true
		checkKnownValueName(propertyName, v.Name, diags)
		values = append(values, v)
	}
	return values
}

// checkKnownValueName implements spec.md §3.4's constrained-vocabulary
// invariant: a known PropertyName constrains its permissible ValueNames, so
// an unrecognized one under it is a Warning; when the property itself isn't
// one of the well-known names, there's nothing to validate against, so it's
// downgraded to a Note.
func checkKnownValueName(propertyName PropertyName, valueName ValueName, diags *diagnostics) {
	if !isKnownProperty(propertyName) {
		diags.note("property %q is not a well-known name; value name %q could not be validated", propertyName, valueName)
		return
	}
	if ok, constrained := isKnownValueName(propertyName, valueName); constrained && !ok {
		diags.warn("value name %q is not recognized for property %q", valueName, propertyName)
	}
}

func validateSwitchRule(values []Value, rule SwitchRule, diags *diagnostics) {
	count := 0
	for _, v := range values {
		if v.Boolean {
			count++
		}
	}
	switch rule {
	case SwitchRuleOneOfMany:
		if count != 1 {
			diags.error("switch rule OneOfMany violated: %d values are true", count)
		}
	case SwitchRuleAtMostOne:
		if count > 1 {
			diags.error("switch rule AtMostOne violated: %d values are true", count)
		}
	}
}

func buildGetProperties(raw *rawElement, diags diagnostics) *Message {
	device, _ := raw.attr("device")
	name, _ := raw.attr("name")
	version, ok := raw.attr("version")
	if !ok {
		version = "1.7"
	}
	warnUnknownAttrs(raw, map[string]bool{"device": true, "name": true, "version": true}, &diags)

	if name != "" && device == "" {
		diags.error("%s", ErrPropertyWithoutDevice.Error())
	}

	return &Message{Kind: MsgGetProperties, Device: device, Name: name, Version: version, Diagnostics: diags}
}

func buildDefVector(raw *rawElement, diags diagnostics, kind PropertyKind, childTag string) *Message {
	vc := parseVectorCommon(raw, &diags, kind)
	values := parseValueChildren(raw, &diags, kind, childTag, vc.Name)

	if len(values) == 0 {
		diags.error("defineProperty requires at least one value")
	}
	if kind == KindSwitch {
		validateSwitchRule(values, vc.Rule, &diags)
	}

	return &Message{
		Kind: MsgDefineProperty, Device: vc.Device, Name: vc.Name, PropertyKind: kind,
		Group: vc.Group, Label: vc.Label, Perm: vc.Perm, State: vc.State, HasState: vc.HasState,
		Timeout: vc.Timeout, HasTimeout: vc.HasTimeout, Rule: vc.Rule, Format: vc.Format,
		Values: values, Timestamp: vc.Timestamp, HasTimestamp: vc.HasTimestamp, Diagnostics: diags,
	}
}

func buildUpdateVector(raw *rawElement, diags diagnostics, kind PropertyKind, childTag string) *Message {
	vc := parseVectorCommon(raw, &diags, kind)
	values := parseValueChildren(raw, &diags, kind, childTag, vc.Name)
	if kind == KindSwitch && vc.Rule != "" {
		validateSwitchRule(values, vc.Rule, &diags)
	}

	return &Message{
		Kind: MsgUpdateProperty, Device: vc.Device, Name: vc.Name, PropertyKind: kind,
		State: vc.State, HasState: vc.HasState, Timeout: vc.Timeout, HasTimeout: vc.HasTimeout,
		Values: values, Timestamp: vc.Timestamp, HasTimestamp: vc.HasTimestamp, Diagnostics: diags,
	}
}

func buildSetVector(raw *rawElement, diags diagnostics, kind PropertyKind, childTag string) *Message {
	device := requireAttr(raw, "device", &diags)
	name := requireAttr(raw, "name", &diags)

	var ts time.Time
	hasTs := false
	if v, ok := raw.attr("timestamp"); ok {
		if parsed, err := parseTimestamp(v); err == nil {
			ts, hasTs = parsed, true
		} else {
			diags.warn("invalid timestamp %q discarded: %v", v, err)
		}
	}
	warnUnknownAttrs(raw, map[string]bool{"device": true, "name": true, "timestamp": true}, &diags)

	values := parseValueChildren(raw, &diags, kind, childTag, name)

	return &Message{
		Kind: MsgSetProperty, Device: device, Name: name, PropertyKind: kind,
		Values: values, Timestamp: ts, HasTimestamp: hasTs, Diagnostics: diags,
	}
}

func buildDelProperty(raw *rawElement, diags diagnostics) *Message {
	device, _ := raw.attr("device")
	name, _ := raw.attr("name")
	warnUnknownAttrs(raw, map[string]bool{"device": true, "name": true, "timestamp": true, "message": true}, &diags)

	if name != "" && device == "" {
		diags.error("delProperty specifies name without device")
	}

	return &Message{Kind: MsgDeleteProperty, Device: device, Name: name, Diagnostics: diags}
}

func buildEnableBlob(raw *rawElement, diags diagnostics) *Message {
	device := requireAttr(raw, "device", &diags)
	name, _ := raw.attr("name")

	raw2 := trimText(raw.Text)
	stateAttr, hasStateAttr := raw.attr("state")
	value := raw2
	if value == "" && hasStateAttr {
		value = stateAttr
	}
	warnUnknownAttrs(raw, map[string]bool{"device": true, "name": true, "state": true}, &diags)

	var state BlobSending
	hasState := false
	switch BlobSending(value) {
	case BlobSendingNever, BlobSendingAlso, BlobSendingOnly, BlobSendingOff, BlobSendingOn, BlobSendingRaw:
		state = BlobSending(value)
		hasState = true
	default:
		if value != "" {
			diags.warn("invalid blob sending value %q; defaulting to Never", value)
		}
		state = BlobSendingNever
	}

	return &Message{Kind: MsgEnableBlob, Device: device, Name: name, BlobState: state, HasBlobState: hasState, Diagnostics: diags}
}

func buildServerMessage(raw *rawElement, diags diagnostics) *Message {
	device, _ := raw.attr("device")

	var ts time.Time
	hasTs := false
	if v, ok := raw.attr("timestamp"); ok {
		if parsed, err := parseTimestamp(v); err == nil {
			ts, hasTs = parsed, true
		} else {
			diags.warn("invalid timestamp %q discarded: %v", v, err)
		}
	}

	text := trimText(raw.Text)
	if text == "" {
		// Tolerate the attribute-carried form some servers/tools emit.
		if m, ok := raw.attr("message"); ok {
			text = m
		}
	}
	warnUnknownAttrs(raw, map[string]bool{"device": true, "timestamp": true, "message": true}, &diags)

	return &Message{Kind: MsgServerMessage, Device: device, Text: text, Timestamp: ts, HasTimestamp: hasTs, Diagnostics: diags}
}

func buildPingRequest(raw *rawElement, diags diagnostics) *Message {
	uid, _ := raw.attr("uid")
	warnUnknownAttrs(raw, map[string]bool{"uid": true}, &diags)
	return &Message{Kind: MsgPingRequest, UID: uid, Diagnostics: diags}
}

func buildPingReply(raw *rawElement, diags diagnostics) *Message {
	uid, _ := raw.attr("uid")
	warnUnknownAttrs(raw, map[string]bool{"uid": true}, &diags)
	return &Message{Kind: MsgPingReply, UID: uid, Diagnostics: diags}
}
