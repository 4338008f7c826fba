// Package pointcloud converts scanner distance arrays into 2D point clouds
// and hands them to mapping and rendering collaborators.
package pointcloud

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/scanlog/internal/lms"
)

// Geometry describes how to interpret a distance array.
type Geometry struct {
	// ScanAngle and ScanResolution are in degrees.
	ScanAngle      float64
	ScanResolution float64
	MeasuringUnits int
	// MaxDistance is the sensor range in metres.
	MaxDistance float64
}

// GeometryFrom builds a Geometry from the configuration a worker read.
func GeometryFrom(info lms.DeviceInfo) Geometry {
	return Geometry{
		ScanAngle:      info.ScanAngle,
		ScanResolution: info.ScanResolution,
		MeasuringUnits: info.MeasuringUnits,
		MaxDistance:    info.MaxDistance,
	}
}

// Point is a position in millimetres relative to the scanner.
type Point struct {
	X, Y float64
}

// Angles returns the beam angles in radians, from 0 through ScanAngle in
// ScanResolution steps.
func (g Geometry) Angles() []float64 {
	if g.ScanResolution <= 0 || g.ScanAngle < 0 {
		return nil
	}
	n := int(math.Floor(g.ScanAngle/g.ScanResolution+1e-9)) + 1
	angles := make([]float64, n)
	if n == 1 {
		return angles
	}
	last := float64(n-1) * g.ScanResolution
	return floats.Span(angles, 0, last*math.Pi/180)
}

// Distances converts a scan to millimetres. Readings beyond the sensor
// range are clamped to 1mm.
func (g Geometry) Distances(scan []int) []float64 {
	out := make([]float64, len(scan))
	for i, d := range scan {
		out[i] = float64(d)
	}
	if g.MeasuringUnits == lms.UnitsCentimeters {
		floats.Scale(10, out)
	}
	maxMM := g.MaxDistance * 1000
	for i, d := range out {
		if d > maxMM {
			out[i] = 1
		}
	}
	return out
}

// Cloud converts a scan to Cartesian points. Extra readings or angles
// beyond the shorter of the two are ignored.
func (g Geometry) Cloud(scan []int) []Point {
	angles := g.Angles()
	dist := g.Distances(scan)
	n := len(angles)
	if len(dist) < n {
		n = len(dist)
	}
	pts := make([]Point, n)
	for i := 0; i < n; i++ {
		pts[i] = Point{X: dist[i] * math.Cos(angles[i]), Y: dist[i] * math.Sin(angles[i])}
	}
	return pts
}

// Motion is the odometry delta between two scans.
type Motion struct {
	DeltaXYMM     float64
	DeltaThetaDeg float64
	DeltaT        float64
}

// Pose is a position estimate in millimetres and degrees.
type Pose struct {
	XMM, YMM, ThetaDeg float64
}

// Localizer estimates pose and builds an occupancy map from scans.
type Localizer interface {
	Update(distancesMM []float64, motion Motion) (Pose, error)
	// Map returns the occupancy grid, one byte per cell, row-major.
	Map() (grid []byte, sizePixels int)
}

// Renderer draws a point cloud.
type Renderer interface {
	Render(cloud []Point, title string) error
}
