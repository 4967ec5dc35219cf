// Package compositor presents a shared surface as a world-anchored quad in
// front of the viewer and records the stereo draw for it.
package compositor

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultDistance is how far in front of the head the quad is placed, in
// meters.
const DefaultDistance = 2.0

// Fade is the direction of the quad's fade transition.
type Fade int

const (
	FadingOut Fade = iota
	FadingIn
)

func (f Fade) String() string {
	if f == FadingIn {
		return "FadingIn"
	}
	return "FadingOut"
}

var (
	fullyIn  = mgl32.Vec4{1, 1, 1, 1}
	fullyOut = mgl32.Vec4{}
	worldUp  = mgl32.Vec3{0, 1, 0}
)

// Pose is a head position and gaze direction in world space.
type Pose struct {
	Position  mgl32.Vec3
	Direction mgl32.Vec3
}

// Quad is the placement, orientation and fade state of the presented
// surface. A quad starts fully faded out.
type Quad struct {
	distance float32
	fadeMax  time.Duration

	position mgl32.Vec3
	previous mgl32.Vec3
	velocity mgl32.Vec3
	rotation mgl32.Mat4

	fade          Fade
	fadeRemaining time.Duration
	color         mgl32.Vec4
}

func NewQuad(distance float32, fadeDuration time.Duration) *Quad {
	if distance <= 0 {
		distance = DefaultDistance
	}
	q := &Quad{
		distance: distance,
		fadeMax:  fadeDuration,
		position: mgl32.Vec3{0, 0, -distance},
		rotation: mgl32.Ident4(),
		fade:     FadingOut,
		color:    fullyOut,
	}
	q.previous = q.position
	q.rotation = facing(q.position, q.rotation)
	return q
}

func (q *Quad) Position() mgl32.Vec3 { return q.position }

// Velocity is the position change over the last frame, per second.
func (q *Quad) Velocity() mgl32.Vec3 { return q.velocity }

func (q *Quad) Rotation() mgl32.Mat4 { return q.rotation }

// Model is the translation to the quad's position composed with its
// rotation.
func (q *Quad) Model() mgl32.Mat4 {
	return mgl32.Translate3D(q.position.X(), q.position.Y(), q.position.Z()).Mul4(q.rotation)
}

func (q *Quad) Fade() Fade { return q.fade }

func (q *Quad) FadeRemaining() time.Duration { return q.fadeRemaining }

// Color is the current fade multiplier.
func (q *Quad) Color() mgl32.Vec4 { return q.color }

// StartFadeIn begins fading in. It does nothing if already fading in.
func (q *Quad) StartFadeIn() { q.startFade(FadingIn) }

// StartFadeOut begins fading out. It does nothing if already fading out.
func (q *Quad) StartFadeOut() { q.startFade(FadingOut) }

func (q *Quad) startFade(f Fade) {
	if q.fade == f {
		return
	}
	q.fade = f
	q.fadeRemaining = q.fadeMax
}

// Update advances the quad by one frame. A nil pose holds the position.
func (q *Quad) Update(dt time.Duration, pose *Pose) {
	if pose != nil {
		dir := pose.Direction
		if dir.LenSqr() > 0 {
			dir = dir.Normalize()
		}
		q.position = pose.Position.Add(dir.Mul(q.distance))
	}
	q.rotation = facing(q.position, q.rotation)

	if secs := float32(dt.Seconds()); secs > 0 {
		q.velocity = q.position.Sub(q.previous).Mul(1 / secs)
	}
	q.previous = q.position

	q.updateFade(dt)
}

func (q *Quad) updateFade(dt time.Duration) {
	if q.fadeRemaining <= 0 || q.fadeMax <= 0 {
		q.fadeRemaining = 0
		if q.fade == FadingIn {
			q.color = fullyIn
		} else {
			q.color = fullyOut
		}
		return
	}

	// brightness fades, alpha stays opaque until the fade ends
	t := float32(q.fadeRemaining.Seconds() / q.fadeMax.Seconds())
	l := t
	if q.fade == FadingIn {
		l = 1 - t
	}
	q.color = mgl32.Vec4{l, l, l, 1}
	q.fadeRemaining = max(q.fadeRemaining-dt, 0)
}

// facing builds a rotation whose forward axis points from pos toward the
// origin. Degenerate positions keep the previous rotation.
func facing(pos mgl32.Vec3, prev mgl32.Mat4) mgl32.Mat4 {
	if pos.LenSqr() == 0 {
		return prev
	}
	forward := pos.Mul(-1).Normalize()
	right := worldUp.Cross(forward)
	if right.LenSqr() < 1e-12 {
		return prev
	}
	right = right.Normalize()
	up := forward.Cross(right).Normalize()
	return mgl32.Mat4FromCols(right.Vec4(0), up.Vec4(0), forward.Vec4(0), mgl32.Vec4{0, 0, 0, 1})
}

// ModelConstants is the per-draw constant block: the model matrix
// transposed for the shader and the fade multiplier.
type ModelConstants struct {
	Model mgl32.Mat4
	Color mgl32.Vec4
}

func (q *Quad) Constants() ModelConstants {
	return ModelConstants{Model: q.Model().Transpose(), Color: q.color}
}
