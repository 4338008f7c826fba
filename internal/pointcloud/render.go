package pointcloud

import (
	"fmt"
	"image/color"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/scanlog/internal/lms"
	"github.com/banshee-data/scanlog/internal/monitoring"
)

var logf = monitoring.Tagged("PointCloud")

// PNGRenderer saves each cloud as a scatter plot to Path, replacing the
// previous snapshot.
type PNGRenderer struct {
	Path string
	// Size is the square image edge. Zero selects 6 inches.
	Size vg.Length
}

// Render implements Renderer.
func (r *PNGRenderer) Render(cloud []Point, title string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (mm)"
	p.Y.Label.Text = "Y (mm)"

	pts := make(plotter.XYs, len(cloud))
	for i, pt := range cloud {
		pts[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	s.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	s.GlyphStyle.Radius = vg.Points(1)
	p.Add(s, plotter.NewGrid())

	size := r.Size
	if size == 0 {
		size = 6 * vg.Inch
	}
	if err := p.Save(size, size, r.Path); err != nil {
		return fmt.Errorf("save %s: %w", r.Path, err)
	}
	return nil
}

// Snapshotter is a hub subscriber that renders every Nth scan.
type Snapshotter struct {
	Renderer Renderer
	Every    int

	mu   sync.Mutex
	geom Geometry
	seen int
}

// NewSnapshotter renders one in every scans with g.
func NewSnapshotter(r Renderer, g Geometry, every int) *Snapshotter {
	if every <= 0 {
		every = 1
	}
	return &Snapshotter{Renderer: r, Every: every, geom: g}
}

// SetGeometry replaces the geometry used for later scans.
func (s *Snapshotter) SetGeometry(g Geometry) {
	s.mu.Lock()
	s.geom = g
	s.mu.Unlock()
}

// Handle has the lms.Subscriber signature.
func (s *Snapshotter) Handle(m lms.ScanMessage) {
	s.mu.Lock()
	s.seen++
	due := s.seen%s.Every == 0
	g := s.geom
	s.mu.Unlock()
	if !due {
		return
	}
	if err := s.Renderer.Render(g.Cloud(m.Distances), fmt.Sprintf("scan #%d", m.Seq)); err != nil {
		logf("render scan #%d: %v", m.Seq, err)
	}
}
