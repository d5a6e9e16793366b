package indiclient

import (
	"context"
	"fmt"
	"io"

	"github.com/rickbassham/logging"
	"github.com/spf13/afero"
)

// Endpoint is a TCP INDI server address, per spec.md §6.2's library API
// surface ("Endpoint{host,port}").
type Endpoint struct {
	Host string
	Port int
}

// Address renders the endpoint in the form net.Dial expects.
func (e Endpoint) Address() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Client is the facade most callers use: it wires a Session (C), a
// Registry (D), and a BlobStore together the way the teacher's single
// INDIClient struct bundles socket ownership, device projection, and BLOB
// handling behind one set of convenience methods (Connect/Disconnect/
// Devices/SetTextValue/...), while the separately exported Session and
// Registry types remain available for callers who want the components on
// their own.
type Client struct {
	log      logging.Logger
	endpoint Endpoint
	session  *Session
	registry *Registry
	blobs    *BlobStore

	runErr chan error
}

// NewClient creates a client for endpoint, dialing through dialer and
// storing BLOBs on fs.
func NewClient(log logging.Logger, dialer Dialer, fs afero.Fs, endpoint Endpoint) *Client {
	if log == nil {
		log = defaultLogger()
	}
	session := NewSession(log, dialer)
	registry := NewRegistry(log, session)
	blobs := NewBlobStore(fs, log)
	registry.AttachBlobStore(blobs)

	return &Client{
		log:      log,
		endpoint: endpoint,
		session:  session,
		registry: registry,
		blobs:    blobs,
		runErr:   make(chan error, 1),
	}
}

// Session exposes the underlying session actor.
func (c *Client) Session() *Session { return c.session }

// Registry exposes the underlying state registry.
func (c *Client) Registry() *Registry { return c.registry }

// Connect dials the endpoint, sends the handshake, and starts consuming
// messages into the registry on a background goroutine. It returns once the
// connection is Ready; use Wait to block for the background loop's eventual
// termination.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.session.Connect(ctx, "tcp", c.endpoint.Address()); err != nil {
		return err
	}
	if err := c.session.SendHandshake(); err != nil {
		return err
	}

	go func() {
		for msg := range c.session.Messages() {
			c.registry.ProcessMessage(msg)
		}
		c.runErr <- nil
	}()

	return nil
}

// Wait blocks until the background message loop started by Connect exits
// (the session ended, by disconnect or error).
func (c *Client) Wait() error {
	return <-c.runErr
}

// Disconnect tears down the session and clears the registry's device store.
func (c *Client) Disconnect() error {
	return c.registry.Disconnect()
}

// IsConnected reports whether the session currently owns a live connection.
func (c *Client) IsConnected() bool {
	return c.session.IsConnected()
}

// Devices returns the current device snapshot.
func (c *Client) Devices() []*Device {
	return c.registry.Devices()
}

// hasProperty probes device/propName against probe, returning false if the
// device isn't known at all rather than panicking.
func (c *Client) hasProperty(deviceName, propName string, probe func(*Device, PropertyName) bool) bool {
	device, ok := c.registry.Device(deviceName)
	if !ok {
		return false
	}
	return probe(device, propName)
}

// HasTextProperty probes whether deviceName currently defines propName as a
// text property. Grounded on jnmorley's client-level TextPropertySet.
func (c *Client) HasTextProperty(deviceName, propName string) bool {
	return c.hasProperty(deviceName, propName, (*Device).HasTextProperty)
}

// HasNumberProperty probes whether deviceName currently defines propName as
// a number property. Grounded on jnmorley's client-level NumberPropertySet.
func (c *Client) HasNumberProperty(deviceName, propName string) bool {
	return c.hasProperty(deviceName, propName, (*Device).HasNumberProperty)
}

// HasSwitchProperty probes whether deviceName currently defines propName as
// a switch property. Grounded on jnmorley's client-level SwitchPropertySet.
func (c *Client) HasSwitchProperty(deviceName, propName string) bool {
	return c.hasProperty(deviceName, propName, (*Device).HasSwitchProperty)
}

// HasLightProperty probes whether deviceName currently defines propName as
// a light property.
func (c *Client) HasLightProperty(deviceName, propName string) bool {
	return c.hasProperty(deviceName, propName, (*Device).HasLightProperty)
}

// HasBlobProperty probes whether deviceName currently defines propName as a
// BLOB property. Grounded on jnmorley's client-level BlobPropertySet.
func (c *Client) HasBlobProperty(deviceName, propName string) bool {
	return c.hasProperty(deviceName, propName, (*Device).HasBlobProperty)
}

// GetProperties requests property definitions for deviceName/propName (both
// optional; propName without deviceName is a client error).
func (c *Client) GetProperties(deviceName, propName string) error {
	if propName != "" && deviceName == "" {
		return ErrPropertyWithoutDevice
	}
	return c.session.Send(&Message{Kind: MsgGetProperties, Device: deviceName, Name: propName, Version: "1.7"})
}

// EnableBlob toggles BLOB delivery for deviceName/propName. It's recommended
// to run BLOB-heavy properties on their own Client so the main connection
// stays free of large transfers.
func (c *Client) EnableBlob(deviceName, propName string, state BlobSending) error {
	switch state {
	case BlobSendingNever, BlobSendingAlso, BlobSendingOnly:
	default:
		return ErrInvalidBlobEnable
	}
	return c.session.Send(&Message{Kind: MsgEnableBlob, Device: deviceName, Name: propName, BlobState: state, HasBlobState: true})
}

// SetTextValue sets the target of a text element and immediately flushes it
// to the server as a SetProperty.
func (c *Client) SetTextValue(deviceName, propName, valueName, value string) error {
	if err := c.registry.SetTargetText(deviceName, propName, valueName, value); err != nil {
		return err
	}
	return c.registry.SendTargetValues(deviceName, propName)
}

// SetNumberValue sets the target of a number element and flushes it.
func (c *Client) SetNumberValue(deviceName, propName, valueName string, value float64) error {
	if err := c.registry.SetTargetNumber(deviceName, propName, valueName, value); err != nil {
		return err
	}
	return c.registry.SendTargetValues(deviceName, propName)
}

// SetSwitchValue sets the target of a switch element, enforcing the
// property's SwitchRule, and flushes it.
func (c *Client) SetSwitchValue(deviceName, propName, valueName string, value bool) error {
	if err := c.registry.SetTargetSwitch(deviceName, propName, valueName, value); err != nil {
		return err
	}
	return c.registry.SendTargetValues(deviceName, propName)
}

// GetBlob is a convenience passthrough to the attached BlobStore.
func (c *Client) GetBlob(deviceName, propName, blobName string) (io.ReadCloser, int64, string, error) {
	return c.registry.GetBlob(deviceName, propName, blobName)
}

// GetBlobStream is a convenience passthrough to the attached BlobStore.
func (c *Client) GetBlobStream(deviceName, propName, blobName string) (io.ReadCloser, string, error) {
	return c.registry.GetBlobStream(deviceName, propName, blobName)
}

// CloseBlobStream is a convenience passthrough to the attached BlobStore.
func (c *Client) CloseBlobStream(deviceName, propName, blobName, id string) error {
	return c.registry.CloseBlobStream(deviceName, propName, blobName, id)
}
