package vision

import (
	"image"
	"math"
)

// Engine detects fiducial markers in a frame and estimates their 3-D pose.
// Marker detection and pose estimation themselves live outside this module.
type Engine interface {
	// DetectMarkers returns every marker found in the frame. An empty slice
	// means no marker is visible.
	DetectMarkers(frame image.Image) ([]Marker, error)

	// EstimatePose estimates the marker pose relative to the camera from its
	// image corners.
	EstimatePose(corners Corners) (Pose, error)
}

// Point is a position in image pixel coordinates
type Point struct {
	X float64
	Y float64
}

// Distance returns the euclidean distance between p and q
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Corners are the four image corners of a square marker, in detection order
type Corners [4]Point

// Center returns the centroid of the corners
func (c Corners) Center() Point {
	var center Point
	for _, p := range c {
		center.X += p.X
		center.Y += p.Y
	}
	center.X /= float64(len(c))
	center.Y /= float64(len(c))
	return center
}

// Area returns the pixel area of the quadrilateral (shoelace formula)
func (c Corners) Area() float64 {
	var sum float64
	for i := range c {
		j := (i + 1) % len(c)
		sum += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	return math.Abs(sum) / 2
}

// Marker is a single detected fiducial marker
type Marker struct {
	ID      int
	Corners Corners
}

// Vec3 is a 3-D vector in marker-relative units
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Pose is the rotation (Rodrigues vector) and translation of a marker relative to the camera
type Pose struct {
	Rotation    Vec3
	Translation Vec3
}

// FrameCenter returns the pixel center of the frame
func FrameCenter(frame image.Image) Point {
	b := frame.Bounds()
	return Point{
		X: float64(b.Min.X) + float64(b.Dx())/2,
		Y: float64(b.Min.Y) + float64(b.Dy())/2,
	}
}

// FrameArea returns the total pixel area of the frame
func FrameArea(frame image.Image) float64 {
	b := frame.Bounds()
	return float64(b.Dx() * b.Dy())
}

// Find returns the marker with the given id
func Find(markers []Marker, id int) (Marker, bool) {
	for _, m := range markers {
		if m.ID == id {
			return m, true
		}
	}
	return Marker{}, false
}
