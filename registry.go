package indiclient

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rickbassham/logging"
)

// pingLiveness is how long the registry waits for a PingRequest before
// declaring the link dead -- 2x the heartbeat interval, per the resolved
// Open Question in SPEC_FULL.md §5 (track inbound PingRequest arrival
// rather than running a second client-initiated ping path).
const (
	heartbeatInterval = 60 * time.Second
	pingLiveness       = 2 * heartbeatInterval
)

// DeviceUpdateFunc is invoked after a device is created or one of its
// properties changes. PropertyUpdateFunc additionally names the property.
// Panics from either are recovered, logged, and otherwise ignored -- a
// misbehaving callback must not desynchronize the registry (spec.md §4.4
// failure handling).
type DeviceUpdateFunc func(device *Device)
type PropertyUpdateFunc func(device *Device, property *Property)
type ServerMessageFunc func(device string, timestamp time.Time, hasTimestamp bool, text string)

// Registry is component D: it owns the device_name -> Device projection,
// applies every inbound Message to it with attribute-preserving merge, and
// exposes typed target-write helpers that enforce switch-rule invariants
// before a write ever reaches the wire. Ownership is exclusive: all access
// happens on the actor goroutine started by Connect/process_message's
// caller, grounded on the teacher's single sync.Map of devices but
// generalized to jnmorley's explicit map + sync.RWMutex so the registry can
// also run process_message synchronously in tests without a live session.
type Registry struct {
	log logging.Logger

	mu      sync.RWMutex
	devices map[string]*Device

	onDeviceUpdate   DeviceUpdateFunc
	onPropertyUpdate PropertyUpdateFunc

	messages chan ServerMessage

	pendingPings   map[string]struct{}
	lastPingSeen   time.Time
	hasSeenPing    bool

	session *Session
	blobs   *BlobStore

	heartbeatCancel context.CancelFunc
	heartbeatDone   chan struct{}
}

// ServerMessage is one log line surfaced by the indiserver, decoupled from
// the device store per spec.md §4.4 ("not required to mutate the device
// store").
type ServerMessage struct {
	Device       string
	Timestamp    time.Time
	HasTimestamp bool
	Text         string
}

// NewRegistry creates an empty registry bound to session. log receives
// operational events (malformed input, callback panics, heartbeat
// timeouts) the way the teacher logs from its read/write goroutines.
func NewRegistry(log logging.Logger, session *Session) *Registry {
	if log == nil {
		log = defaultLogger()
	}
	return &Registry{
		log:          log,
		devices:      map[string]*Device{},
		messages:     make(chan ServerMessage, 64),
		pendingPings: map[string]struct{}{},
		session:      session,
	}
}

// AttachBlobStore wires a BlobStore so incoming Blob-kind values are
// persisted and fanned out to stream subscribers as they arrive. Optional:
// a registry with no attached store still tracks Blob property metadata,
// it just has nowhere to put the bytes.
func (r *Registry) AttachBlobStore(store *BlobStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs = store
}

// GetBlob is a convenience passthrough to the attached BlobStore.
func (r *Registry) GetBlob(device, property, valueName string) (rdr io.ReadCloser, size int64, format string, err error) {
	r.mu.RLock()
	store := r.blobs
	r.mu.RUnlock()
	if store == nil {
		return nil, 0, "", ErrBlobNotFound
	}
	return store.GetBlob(device, property, valueName)
}

// GetBlobStream is a convenience passthrough to the attached BlobStore.
func (r *Registry) GetBlobStream(device, property, valueName string) (rdr io.ReadCloser, id string, err error) {
	r.mu.RLock()
	store := r.blobs
	r.mu.RUnlock()
	if store == nil {
		return nil, "", ErrBlobNotFound
	}
	return store.GetBlobStream(device, property, valueName)
}

// CloseBlobStream is a convenience passthrough to the attached BlobStore.
func (r *Registry) CloseBlobStream(device, property, valueName, id string) error {
	r.mu.RLock()
	store := r.blobs
	r.mu.RUnlock()
	if store == nil {
		return nil
	}
	return store.CloseBlobStream(device, property, valueName, id)
}

// SetOnDeviceUpdate installs cb, replacing any previous callback.
func (r *Registry) SetOnDeviceUpdate(cb DeviceUpdateFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDeviceUpdate = cb
}

// SetOnPropertyUpdate installs cb, replacing any previous callback.
func (r *Registry) SetOnPropertyUpdate(cb PropertyUpdateFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPropertyUpdate = cb
}

// ServerMessages returns the channel server ServerMessage events are
// published to. The channel is never closed; it stays open across
// Disconnect.
func (r *Registry) ServerMessages() <-chan ServerMessage {
	return r.messages
}

// Devices returns a snapshot slice of the known devices. Per spec.md §3.4's
// ownership rule, callers get read-only references: mutate the store only
// through the registry's own methods.
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}

// Device looks up one device by name.
func (r *Registry) Device(name string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[name]
	return d, ok
}

// RegisterDevice inserts an empty device if one by that name doesn't
// already exist, for callers that want to pre-seed the store (e.g. tests).
func (r *Registry) RegisterDevice(name string) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findOrCreateDeviceLocked(name)
}

func (r *Registry) findOrCreateDeviceLocked(name string) *Device {
	d, ok := r.devices[name]
	if ok {
		return d
	}
	d = newDevice(name)
	r.devices[name] = d
	return d
}

// Connect forwards to the session, sends the handshake, then consumes
// messages() until the session ends. It blocks; callers typically run it in
// its own goroutine. The heartbeat task is started alongside.
func (r *Registry) Connect(ctx context.Context, network, address string) error {
	if err := r.session.Connect(ctx, network, address); err != nil {
		return err
	}
	if err := r.session.SendHandshake(); err != nil {
		return err
	}

	hbCtx, cancel := context.WithCancel(ctx)
	r.heartbeatCancel = cancel
	r.heartbeatDone = make(chan struct{})
	go r.runHeartbeat(hbCtx)

	for msg := range r.session.Messages() {
		r.processMessage(msg)
	}
	return nil
}

// Disconnect cancels the session, stops the heartbeat task, and clears
// derived state.
func (r *Registry) Disconnect() error {
	if r.heartbeatCancel != nil {
		r.heartbeatCancel()
		<-r.heartbeatDone
	}

	r.mu.Lock()
	r.devices = map[string]*Device{}
	r.pendingPings = map[string]struct{}{}
	r.hasSeenPing = false
	r.mu.Unlock()

	return r.session.Disconnect()
}

// ProcessMessage is the test hook spec.md §4.4 calls for: apply one message
// without a real socket, synchronously.
func (r *Registry) ProcessMessage(m *Message) {
	r.processMessage(m)
}

func (r *Registry) processMessage(m *Message) {
	switch m.Kind {
	case MsgDefineProperty, MsgUpdateProperty:
		r.applyVector(m)
	case MsgDeleteProperty:
		r.applyDelete(m)
	case MsgPingReply:
		r.recordPing(m.UID)
	case MsgPingRequest:
		r.recordPingLiveness()
	case MsgServerMessage:
		r.publishServerMessage(m)
	default:
		// Client-originated variants observed on this side are ignored.
	}
}

func (r *Registry) applyVector(m *Message) {
	r.mu.Lock()

	device := r.findOrCreateDeviceLocked(m.Device)
	deviceIsNew := len(device.Properties) == 0 && device.Name == m.Device

	existing, hadExisting := device.Property(m.Name)

	values := m.Values
	if hadExisting {
		values = mergeValues(existing.Values, m.Values)
	}

	prop := &Property{
		Name:   m.Name,
		Kind:   m.PropertyKind,
		Values: values,
	}

	if hadExisting {
		prop.Group = existing.Group
		prop.Label = existing.Label
		prop.Perm = existing.Perm
		prop.State = existing.State
		prop.Timeout = existing.Timeout
		prop.HasTimeout = existing.HasTimeout
		prop.Rule = existing.Rule
		prop.Format = existing.Format
		prop.TargetValues = existing.TargetValues
		prop.HasTarget = existing.HasTarget
		prop.TargetTimestamp = existing.TargetTimestamp
		prop.HasTargetTimestamp = existing.HasTargetTimestamp
	}

	if m.Kind == MsgDefineProperty {
		prop.Group = m.Group
		prop.Label = m.Label
		prop.Perm = m.Perm
		prop.Rule = m.Rule
	}
	if m.Format != "" {
		prop.Format = m.Format
	}
	if m.HasState {
		prop.State = m.State
	}
	if m.HasTimeout {
		prop.Timeout = m.Timeout
		prop.HasTimeout = true
	}
	if m.HasTimestamp {
		prop.Timestamp = m.Timestamp
		prop.HasTimestamp = true
	}

	device.putProperty(prop)
	store := r.blobs
	r.mu.Unlock()

	if store != nil && m.PropertyKind == KindBlob {
		for _, v := range m.Values {
			store.ingest(m.Device, m.Name, v.Name, v.Blob, v.Format)
		}
	}

	r.fireDeviceUpdate(device, deviceIsNew)
	r.firePropertyUpdate(device, prop)
}

// mergeValues applies mergeValue (value.go) element-wise: an incoming value
// matching an existing one by name is merged attribute-preservingly; an
// incoming value with no existing counterpart is kept verbatim, per
// spec.md §4.4.
func mergeValues(existing, incoming []Value) []Value {
	out := make([]Value, len(incoming))
	for i, inc := range incoming {
		if j := indexOfValue(existing, inc.Name); j >= 0 {
			out[i] = mergeValue(existing[j], inc)
		} else {
			out[i] = inc
		}
	}
	return out
}

// applyDelete implements the three-level wildcard from spec.md §3.4:
// (device, name) removes one property; (device, "") removes one device;
// ("", "") clears everything.
func (r *Registry) applyDelete(m *Message) {
	r.mu.Lock()

	switch {
	case m.Device == "" && m.Name == "":
		r.devices = map[string]*Device{}
		r.mu.Unlock()
		return

	case m.Name == "":
		delete(r.devices, m.Device)
		r.mu.Unlock()
		return

	default:
		device, ok := r.devices[m.Device]
		if !ok {
			r.mu.Unlock()
			return
		}
		device.removeProperty(m.Name)
		r.mu.Unlock()
		r.fireDeviceUpdate(device, false)
	}
}

func (r *Registry) recordPing(uid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pendingPings, uid)
}

func (r *Registry) recordPingLiveness() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hasSeenPing = true
	r.lastPingSeen = time.Now()
}

func (r *Registry) publishServerMessage(m *Message) {
	select {
	case r.messages <- ServerMessage{Device: m.Device, Timestamp: m.Timestamp, HasTimestamp: m.HasTimestamp, Text: m.Text}:
	default:
		r.log.Warn("server message channel full; dropping oldest consumer is not an option, blocking instead")
		r.messages <- ServerMessage{Device: m.Device, Timestamp: m.Timestamp, HasTimestamp: m.HasTimestamp, Text: m.Text}
	}
}

func (r *Registry) fireDeviceUpdate(device *Device, isNew bool) {
	r.mu.RLock()
	cb := r.onDeviceUpdate
	r.mu.RUnlock()
	if cb == nil || !isNew {
		return
	}
	r.safeCallDevice(cb, device)
}

func (r *Registry) firePropertyUpdate(device *Device, prop *Property) {
	r.mu.RLock()
	cb := r.onPropertyUpdate
	r.mu.RUnlock()
	if cb == nil {
		return
	}
	r.safeCallProperty(cb, device, prop)
}

// safeCallDevice and safeCallProperty isolate a panicking user callback so
// it cannot desynchronize registry state (spec.md §4.4: "catch, log,
// continue").
func (r *Registry) safeCallDevice(cb DeviceUpdateFunc, device *Device) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("panic", rec).Error("device update callback panicked")
		}
	}()
	cb(device)
}

func (r *Registry) safeCallProperty(cb PropertyUpdateFunc, device *Device, prop *Property) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("panic", rec).Error("property update callback panicked")
		}
	}()
	cb(device, prop)
}

// SendTargetValues emits a SetProperty carrying property's current target
// snapshot; a no-op if no target has been set.
func (r *Registry) SendTargetValues(deviceName string, propertyName PropertyName) error {
	r.mu.RLock()
	device, ok := r.devices[deviceName]
	if !ok {
		r.mu.RUnlock()
		return ErrDeviceNotFound
	}
	prop, ok := device.Property(propertyName)
	if !ok {
		r.mu.RUnlock()
		return ErrPropertyNotFound
	}
	if !prop.HasTarget {
		r.mu.RUnlock()
		return nil
	}
	msg := &Message{
		Kind: MsgSetProperty, Device: deviceName, Name: propertyName,
		PropertyKind: prop.Kind, Values: append([]Value(nil), prop.TargetValues...),
	}
	r.mu.RUnlock()

	return r.session.Send(msg)
}

// SetTargetText sets the target value of a text element, failing if it
// doesn't exist.
func (r *Registry) SetTargetText(deviceName string, propertyName PropertyName, valueName ValueName, value string) error {
	return r.setTarget(deviceName, propertyName, KindText, func(existing []Value) ([]Value, error) {
		if indexOfValue(existing, valueName) < 0 {
			return nil, ErrPropertyValueNotFound
		}
		return replaceValue(existing, Value{Name: valueName, Text: value}), nil
	})
}

// SetTargetNumber sets the target value of a number element, failing if it
// doesn't exist.
func (r *Registry) SetTargetNumber(deviceName string, propertyName PropertyName, valueName ValueName, value float64) error {
	return r.setTarget(deviceName, propertyName, KindNumber, func(existing []Value) ([]Value, error) {
		if indexOfValue(existing, valueName) < 0 {
			return nil, ErrPropertyValueNotFound
		}
		return replaceValue(existing, Value{Name: valueName, Number: value}), nil
	})
}

// SetTargetSwitch applies the target-write discipline for switch properties
// described in spec.md §4.4: OneOfMany/AtMostOne clear the other targets
// when turning one on; turning one off under OneOfMany with exactly two
// elements flips the other on; three-or-more elements under OneOfMany
// turning one off is ambiguous and fails.
func (r *Registry) SetTargetSwitch(deviceName string, propertyName PropertyName, valueName ValueName, v bool) error {
	return r.setTarget(deviceName, propertyName, KindSwitch, func(existing []Value) ([]Value, error) {
		return r.nextSwitchTargets(existing, deviceName, propertyName, valueName, v)
	})
}

// nextSwitchTargets is only called from setTarget's mutate callback, which
// already holds r.mu for writing; it must not re-acquire the lock.
func (r *Registry) nextSwitchTargets(existing []Value, deviceName string, propertyName PropertyName, valueName ValueName, v bool) ([]Value, error) {
	if indexOfValue(existing, valueName) < 0 {
		return nil, ErrPropertyValueNotFound
	}

	var rule SwitchRule
	if device, ok := r.devices[deviceName]; ok {
		if prop, ok := device.Property(propertyName); ok {
			rule = prop.Rule
		}
	}

	next := make([]Value, len(existing))
	copy(next, existing)

	switch {
	case v && (rule == SwitchRuleOneOfMany || rule == SwitchRuleAtMostOne):
		for i := range next {
			next[i].Boolean = next[i].Name == valueName
		}

	case !v && rule == SwitchRuleOneOfMany:
		if len(next) != 2 {
			return nil, ErrRuleViolation
		}
		for i := range next {
			next[i].Boolean = next[i].Name != valueName
		}

	default:
		for i := range next {
			if next[i].Name == valueName {
				next[i].Boolean = v
			}
		}
	}

	var diags diagnostics
	validateSwitchRule(next, rule, &diags)
	if HasSeverityAtLeast(diags, SeverityError) {
		return nil, ErrRuleViolation
	}

	return next, nil
}

// deviceOwning performs an unlocked lookup; callers must already hold r.mu.
func (r *Registry) deviceOwning(propertyName PropertyName) (*Device, bool) {
	for _, d := range r.devices {
		if _, ok := d.Property(propertyName); ok {
			return d, true
		}
	}
	return nil, false
}

func replaceValue(values []Value, v Value) []Value {
	out := make([]Value, len(values))
	copy(out, values)
	if i := indexOfValue(out, v.Name); i >= 0 {
		merged := out[i]
		merged.Text = v.Text
		merged.Number = v.Number
		merged.Boolean = v.Boolean
		merged.State = v.State
		merged.Blob = v.Blob
		out[i] = merged
	}
	return out
}

func (r *Registry) setTarget(deviceName string, propertyName PropertyName, kind PropertyKind, mutate func([]Value) ([]Value, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceName]
	if !ok {
		return ErrDeviceNotFound
	}
	prop, ok := device.Property(propertyName)
	if !ok {
		return ErrPropertyNotFound
	}
	if prop.Kind != kind {
		return ErrPropertyNotFound
	}
	if prop.Perm == PropertyPermissionReadOnly {
		return ErrPropertyReadOnly
	}

	base := prop.TargetValues
	if !prop.HasTarget {
		base = append([]Value(nil), prop.Values...)
	}

	next, err := mutate(base)
	if err != nil {
		return err
	}

	prop.TargetValues = next
	prop.HasTarget = true
	prop.TargetTimestamp = time.Now()
	prop.HasTargetTimestamp = true

	return nil
}

// runHeartbeat implements spec.md §4.4's liveness check: once at least one
// PingRequest has arrived, a gap longer than pingLiveness since the most
// recent one declares the link dead and the session is disconnected. A link
// on which no PingRequest has ever arrived is never declared dead.
// Cancellable via ctx (set by Disconnect).
func (r *Registry) runHeartbeat(ctx context.Context) {
	defer close(r.heartbeatDone)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.RLock()
			seen, last := r.hasSeenPing, r.lastPingSeen
			r.mu.RUnlock()

			if seen && time.Since(last) > pingLiveness {
				r.log.Warn("no pingRequest within liveness window; disconnecting")
				_ = r.session.Disconnect()
				return
			}
		}
	}
}
