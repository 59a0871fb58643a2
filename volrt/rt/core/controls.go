package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type ControlsEvent string

const (
	EventChange ControlsEvent = "change"
	EventStart  ControlsEvent = "start"
	EventEnd    ControlsEvent = "end"
)

type ListenerID uint64

type ControlsListener func(ControlsEvent)

type listenerEntry struct {
	id ListenerID
	fn ControlsListener
}

const polarEps = 1e-3

// OrbitControls orbits an OrthoCamera around Target with Z up. Zoom is the
// camera's orthographic zoom, bounded to [MinZoom, MaxZoom]. Listeners run
// synchronously on the goroutine that drives the controls.
type OrbitControls struct {
	Camera *OrthoCamera
	Target mgl32.Vec3

	MinZoom float32
	MaxZoom float32

	EnableRotate bool
	EnableZoom   bool
	EnablePan    bool

	RotateSpeed float32
	ZoomSpeed   float32

	listeners map[ControlsEvent][]listenerEntry
	nextID    ListenerID

	lastPosition mgl32.Vec3
	lastTarget   mgl32.Vec3
	lastZoom     float32
}

func NewOrbitControls(camera *OrthoCamera) *OrbitControls {
	return &OrbitControls{
		Camera:       camera,
		MinZoom:      0,
		MaxZoom:      float32(math.Inf(1)),
		EnableRotate: true,
		EnableZoom:   true,
		EnablePan:    true,
		RotateSpeed:  1,
		ZoomSpeed:    1,
		listeners:    make(map[ControlsEvent][]listenerEntry),
	}
}

func (c *OrbitControls) AddEventListener(event ControlsEvent, fn ControlsListener) ListenerID {
	c.nextID++
	c.listeners[event] = append(c.listeners[event], listenerEntry{id: c.nextID, fn: fn})
	return c.nextID
}

// RemoveEventListener reports whether id was registered.
func (c *OrbitControls) RemoveEventListener(id ListenerID) bool {
	for event, entries := range c.listeners {
		for i, e := range entries {
			if e.id == id {
				c.listeners[event] = append(entries[:i:i], entries[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (c *OrbitControls) RemoveAllListeners() {
	c.listeners = make(map[ControlsEvent][]listenerEntry)
}

func (c *OrbitControls) ListenerCount() int {
	n := 0
	for _, entries := range c.listeners {
		n += len(entries)
	}
	return n
}

func (c *OrbitControls) dispatch(event ControlsEvent) {
	// Copy so a listener may remove itself.
	entries := append([]listenerEntry(nil), c.listeners[event]...)
	for _, e := range entries {
		e.fn(event)
	}
}

// Update points the camera at Target, keeps the zoom in bounds and emits
// "change" when anything moved since the previous Update.
func (c *OrbitControls) Update() bool {
	cam := c.Camera
	cam.Target = c.Target
	cam.Up = WorldUp
	if z := ClampZoom(cam.Zoom, c.MinZoom, c.MaxZoom); z != cam.Zoom {
		cam.Zoom = z
		cam.UpdateProjection()
	}

	changed := !cam.Position.ApproxEqual(c.lastPosition) ||
		!c.Target.ApproxEqual(c.lastTarget) ||
		cam.Zoom != c.lastZoom
	c.lastPosition = cam.Position
	c.lastTarget = c.Target
	c.lastZoom = cam.Zoom
	if changed {
		c.dispatch(EventChange)
	}
	return changed
}

// Spherical returns the camera offset from Target as radius, azimuth around
// Z and polar angle from +Z.
func (c *OrbitControls) Spherical() (radius, azimuth, polar float32) {
	offset := c.Camera.Position.Sub(c.Target)
	radius = offset.Len()
	if radius == 0 {
		return 0, 0, math.Pi / 2
	}
	x, y, z := float64(offset.X()), float64(offset.Y()), float64(offset.Z())
	azimuth = float32(math.Atan2(y, x))
	polar = float32(math.Atan2(math.Hypot(x, y), z))
	return radius, azimuth, polar
}

// Rotate orbits by the given angles in radians.
func (c *OrbitControls) Rotate(dAzimuth, dPolar float32) {
	if !c.EnableRotate {
		return
	}
	c.dispatch(EventStart)

	radius, azimuth, polar := c.Spherical()
	if radius == 0 {
		radius = 1
	}
	azimuth += dAzimuth * c.RotateSpeed
	polar += dPolar * c.RotateSpeed
	polar = float32(math.Max(polarEps, math.Min(math.Pi-polarEps, float64(polar))))

	sinP, cosP := math.Sincos(float64(polar))
	sinA, cosA := math.Sincos(float64(azimuth))
	offset := mgl32.Vec3{
		float32(sinP * cosA),
		float32(sinP * sinA),
		float32(cosP),
	}.Mul(radius)
	c.Camera.Position = c.Target.Add(offset)

	c.Update()
	c.dispatch(EventEnd)
}

// Zoom applies one wheel step: positive delta zooms in by 0.95^-ZoomSpeed,
// negative zooms out. The result is clamped to [MinZoom, MaxZoom].
func (c *OrbitControls) Zoom(delta float32) {
	if !c.EnableZoom || delta == 0 {
		return
	}
	c.dispatch(EventStart)

	scale := float32(math.Pow(0.95, float64(c.ZoomSpeed)))
	z := c.Camera.Zoom
	if delta > 0 {
		z /= scale
	} else {
		z *= scale
	}
	c.Camera.Zoom = ClampZoom(z, c.MinZoom, c.MaxZoom)
	c.Camera.UpdateProjection()

	c.Update()
	c.dispatch(EventEnd)
}

// Pan moves camera and target together in the view plane. It does nothing
// while EnablePan is false.
func (c *OrbitControls) Pan(dx, dy float32) {
	if !c.EnablePan {
		return
	}
	c.dispatch(EventStart)

	forward := c.Camera.Forward()
	right := forward.Cross(WorldUp)
	if right.Len() == 0 {
		right = mgl32.Vec3{1, 0, 0}
	}
	right = right.Normalize()
	up := right.Cross(forward).Normalize()
	delta := right.Mul(dx).Add(up.Mul(dy)).Mul(1 / c.Camera.Zoom)
	c.Camera.Position = c.Camera.Position.Add(delta)
	c.Target = c.Target.Add(delta)

	c.Update()
	c.dispatch(EventEnd)
}
