package indiclient

import "strings"

// PropertyKind identifies the shape of a property's values: Text, Number,
// Switch, Light, or Blob.
type PropertyKind string

const (
	KindText   = PropertyKind("Text")
	KindNumber = PropertyKind("Number")
	KindSwitch = PropertyKind("Switch")
	KindLight  = PropertyKind("Light")
	KindBlob   = PropertyKind("Blob")
)

// PropertyState is the vector's current activity/health state, carried on
// every def/set message so a UI can color the property without inspecting
// its values.
type PropertyState string

const (
	// PropertyStateIdle means the property isn't doing anything right now.
	// Conventionally shown in gray.
	PropertyStateIdle = PropertyState("Idle")
	// PropertyStateOk means the last operation on the property succeeded.
	// Conventionally shown in green.
	PropertyStateOk = PropertyState("Ok")
	// PropertyStateBusy means an operation on the property is in progress.
	// Conventionally shown in yellow.
	PropertyStateBusy = PropertyState("Busy")
	// PropertyStateAlert means the last operation on the property failed.
	// Conventionally shown in red.
	PropertyStateAlert = PropertyState("Alert")
)

func canonicalPropertyState(s string) (PropertyState, bool) {
	for _, st := range []PropertyState{PropertyStateIdle, PropertyStateOk, PropertyStateBusy, PropertyStateAlert} {
		if strings.EqualFold(s, string(st)) {
			return st, s == string(st)
		}
	}
	return PropertyStateIdle, false
}

// SwitchRule constrains how many members of a switch vector may be On at
// once; enforced both when parsing a def/set from the wire and when a local
// caller stages a target value (see setTarget/nextSwitchTargets).
type SwitchRule string

const (
	// SwitchRuleOneOfMany requires exactly one member On at all times.
	SwitchRuleOneOfMany = SwitchRule("OneOfMany")
	// SwitchRuleAtMostOne allows zero or one member On.
	SwitchRuleAtMostOne = SwitchRule("AtMostOne")
	// SwitchRuleAnyOfMany places no constraint on how many members are On.
	SwitchRuleAnyOfMany = SwitchRule("AnyOfMany")
)

// PropertyPermission hints at which directions a property can be driven:
// read-only, write-only, or both. Servers advertise this on def; clients
// are expected to honor it rather than have the server reject writes.
type PropertyPermission string

const (
	// PropertyPermissionReadOnly properties are reported by the device only;
	// clients should not attempt to set them.
	PropertyPermissionReadOnly = PropertyPermission("ro")
	// PropertyPermissionWriteOnly properties accept client writes but the
	// device never reports a value back.
	PropertyPermissionWriteOnly = PropertyPermission("wo")
	// PropertyPermissionReadWrite properties can be both set by a client and
	// reported by the device.
	PropertyPermissionReadWrite = PropertyPermission("rw")
)

// BlobSending represents whether BLOBs should be sent to this client for a device/property.
type BlobSending string

const (
	// BlobSendingNever (default) means the client should not be sent any BLOBs for a device.
	BlobSendingNever = BlobSending("Never")
	// BlobSendingAlso means BLOBs should be sent in addition to the normal INDI traffic.
	BlobSendingAlso = BlobSending("Also")
	// BlobSendingOnly means only BLOBs should be sent for a device.
	BlobSendingOnly = BlobSending("Only")
	// BlobSendingOff is a legacy synonym some servers emit for Never.
	BlobSendingOff = BlobSending("Off")
	// BlobSendingOn is a legacy synonym some servers emit for Also.
	BlobSendingOn = BlobSending("On")
	// BlobSendingRaw is a legacy variant requesting uncompressed BLOBs.
	BlobSendingRaw = BlobSending("Raw")
)

// ConnectionStatus is derived from a device's CONNECTION property by comparing
// its current value to any pending target value.
type ConnectionStatus string

const (
	ConnectionStatusDisconnected  = ConnectionStatus("Disconnected")
	ConnectionStatusConnecting    = ConnectionStatus("Connecting")
	ConnectionStatusConnected     = ConnectionStatus("Connected")
	ConnectionStatusDisconnecting = ConnectionStatus("Disconnecting")
)

// PropertyName identifies a vector. Recognized, well-known names are listed below;
// any other string is an opaque, device-specific name and is handled identically,
// it just doesn't participate in the known-value-name constraint checks in message.go.
type PropertyName = string

// ValueName identifies one element inside a vector (e.g. "CONNECT", "RA").
type ValueName = string

// Well-known INDI property names. Not exhaustive (the real protocol has no closed
// vocabulary) but enough to drive the constraint checks and docs examples spec.md
// calls out: CONNECTION, EQUATORIAL_EOD_COORD, CCD_EXPOSURE, FILTER_SLOT, ...
const (
	PropConnection         PropertyName = "CONNECTION"
	PropDeviceInfo         PropertyName = "DEVICE_INFO"
	PropEquatorialEodCoord PropertyName = "EQUATORIAL_EOD_COORD"
	PropEquatorialCoord    PropertyName = "EQUATORIAL_COORD"
	PropHorizontalCoord    PropertyName = "HORIZONTAL_COORD"
	PropTelescopeMotionNS  PropertyName = "TELESCOPE_MOTION_NS"
	PropTelescopeMotionWE  PropertyName = "TELESCOPE_MOTION_WE"
	PropOnCoordSet         PropertyName = "ON_COORD_SET"
	PropCCDExposure        PropertyName = "CCD_EXPOSURE"
	PropCCDAbortExposure   PropertyName = "CCD_ABORT_EXPOSURE"
	PropCCDFrame           PropertyName = "CCD_FRAME"
	PropCCDBinning         PropertyName = "CCD_BINNING"
	PropCCDInfo            PropertyName = "CCD_INFO"
	PropCCD1               PropertyName = "CCD1"
	PropFilterSlot         PropertyName = "FILTER_SLOT"
	PropFilterName         PropertyName = "FILTER_NAME"
	PropFocusMotion        PropertyName = "FOCUS_MOTION"
	PropFocusSpeed         PropertyName = "FOCUS_SPEED"
	PropAbsFocusPosition   PropertyName = "ABS_FOCUS_POSITION"
	PropRelFocusPosition   PropertyName = "REL_FOCUS_POSITION"
	PropDomeMotion         PropertyName = "DOME_MOTION"
	PropDomeShutter        PropertyName = "DOME_SHUTTER"
	PropGeographicCoord    PropertyName = "GEOGRAPHIC_COORD"
	PropTimeUTC            PropertyName = "TIME_UTC"
	PropUploadSettings     PropertyName = "UPLOAD_SETTINGS"
)

var knownPropertyNames = map[PropertyName]bool{
	PropConnection:         true,
	PropDeviceInfo:         true,
	PropEquatorialEodCoord: true,
	PropEquatorialCoord:    true,
	PropHorizontalCoord:    true,
	PropTelescopeMotionNS:  true,
	PropTelescopeMotionWE:  true,
	PropOnCoordSet:         true,
	PropCCDExposure:        true,
	PropCCDAbortExposure:   true,
	PropCCDFrame:           true,
	PropCCDBinning:         true,
	PropCCDInfo:            true,
	PropCCD1:               true,
	PropFilterSlot:         true,
	PropFilterName:         true,
	PropFocusMotion:        true,
	PropFocusSpeed:         true,
	PropAbsFocusPosition:   true,
	PropRelFocusPosition:   true,
	PropDomeMotion:         true,
	PropDomeShutter:        true,
	PropGeographicCoord:    true,
	PropTimeUTC:            true,
	PropUploadSettings:     true,
}

// knownValueNames constrains the permissible ValueNames for a handful of
// well-known properties, enough to drive the Warning/Note diagnostics spec.md
// §3.4 describes without pretending to a closed vocabulary.
var knownValueNames = map[PropertyName]map[ValueName]bool{
	PropConnection: {"CONNECT": true, "DISCONNECT": true},
	PropEquatorialEodCoord: {"RA": true, "DEC": true},
	PropEquatorialCoord:    {"RA": true, "DEC": true},
	PropHorizontalCoord:    {"ALT": true, "AZ": true},
	PropCCDExposure:        {"CCD_EXPOSURE_VALUE": true},
	PropFilterSlot:         {"FILTER_SLOT_VALUE": true},
}

func isKnownProperty(name PropertyName) bool {
	return knownPropertyNames[name]
}

// isKnownValueName reports whether value is a permitted element of property, and
// whether that check was even possible (false, false means "no constraint known").
func isKnownValueName(property PropertyName, value ValueName) (ok bool, constrained bool) {
	names, known := knownValueNames[property]
	if !known {
		return false, false
	}
	return names[value], true
}
