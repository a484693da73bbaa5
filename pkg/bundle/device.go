package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/kswx/keyence-go/pkg/pose"
	"github.com/kswx/keyence-go/pkg/session"
)

// ErrDestroyed is returned by lifecycle calls after OnDestroy.
var ErrDestroyed = errors.New("device destroyed")

// Device binds the host lifecycle and the published methods to a session.
//
// Lifecycle methods map onto the session as follows: OnMount mounts with
// the host parameters (or the manifest parameter tree when none are given),
// OnActivate and OnDeactivate start and stop operation, OnUnmount and
// OnDestroy release the connection. OnBind and OnUnbind only track whether
// the host has bound the device.
type Device struct {
	manifest *Manifest
	sess     *session.Session
	logger   *slog.Logger

	mu        sync.Mutex
	bound     bool
	destroyed bool
}

// NewDevice creates a device adapter. manifest may be nil.
func NewDevice(manifest *Manifest, opts session.Options) *Device {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Device{
		manifest: manifest,
		sess:     session.New(opts),
		logger:   logger,
	}
}

// Session returns the underlying session.
func (d *Device) Session() *session.Session {
	return d.sess
}

// Bound reports whether the host has bound the device.
func (d *Device) Bound() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bound
}

// OnCreate is called once after the host instantiates the device.
func (d *Device) OnCreate() error {
	if err := d.alive(); err != nil {
		return err
	}
	name := ""
	if d.manifest != nil {
		name = d.manifest.Name
	}
	d.logger.Debug("device created", "bundle", name)
	return nil
}

// OnDestroy releases everything. Further lifecycle calls fail.
func (d *Device) OnDestroy() error {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return nil
	}
	d.destroyed = true
	d.bound = false
	d.mu.Unlock()
	return d.sess.Unmount()
}

// OnBind is called when the host binds the device to a program.
func (d *Device) OnBind() error {
	if err := d.alive(); err != nil {
		return err
	}
	d.mu.Lock()
	d.bound = true
	d.mu.Unlock()
	return nil
}

// OnUnbind is called when the host releases the device.
func (d *Device) OnUnbind() error {
	d.mu.Lock()
	d.bound = false
	d.mu.Unlock()
	return nil
}

// OnMount mounts the session. With nil params the manifest's parameter tree
// is used.
func (d *Device) OnMount(ctx context.Context, params map[string]any) error {
	if err := d.alive(); err != nil {
		return err
	}
	if params == nil {
		if d.manifest == nil {
			return fmt.Errorf("%w: no parameters and no manifest", session.ErrInvalidConfig)
		}
		tree, err := d.manifest.ParamTree()
		if err != nil {
			return fmt.Errorf("%w: %w", session.ErrInvalidConfig, err)
		}
		params = tree
	}
	return d.sess.Mount(ctx, params)
}

// OnUnmount closes the connection and returns to the unmounted state.
func (d *Device) OnUnmount() error {
	return d.sess.Unmount()
}

// OnActivate starts operation with the mounted configuration.
func (d *Device) OnActivate(ctx context.Context) error {
	if err := d.alive(); err != nil {
		return err
	}
	return d.sess.Activate(ctx, nil)
}

// OnDeactivate stops operation.
func (d *Device) OnDeactivate() error {
	return d.sess.Deactivate()
}

// OnHWReady forwards the hardware readiness signal.
func (d *Device) OnHWReady(ready bool) {
	d.sess.OnHardwareReady(ready)
}

// TriggerImage is the published triggerImage().
func (d *Device) TriggerImage(ctx context.Context) error {
	return d.sess.TriggerImage(ctx)
}

// TriggerImageObj is the published triggerImageObj(Number object_found).
// object_found is an output and is returned as the count.
func (d *Device) TriggerImageObj(ctx context.Context) (int, error) {
	return d.sess.TriggerImageObj(ctx)
}

// GetObjectPose is the published getObjectPose(RobotPose object_pose, int
// pose_type). object_pose is an output and is returned.
func (d *Device) GetObjectPose(ctx context.Context, poseType int) (pose.Pose, error) {
	return d.sess.GetObjectPose(ctx, pose.FrameID(poseType))
}

func (d *Device) alive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return ErrDestroyed
	}
	return nil
}
