// Command plotellipse is a diagnostic tool that reads a location
// response JSON file (cmd/locate's output) and renders the 90% error
// ellipse plus a per-pick residual scatter with gonum/plot, grounded
// on internal/lidar/monitor/gridplotter.go's plot/plotter/vg usage.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/hypocenter/internal/api"
)

var (
	inputPath = flag.String("in", "", "path to a location response JSON file (required)")
	outputDir = flag.String("out", ".", "directory to write the ellipse and residual plots into")
)

func main() {
	flag.Parse()
	if *inputPath == "" {
		log.Fatal("usage: plotellipse -in <response.json> [-out <dir>]")
	}

	raw, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("reading response file: %v", err)
	}
	var resp api.EventResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Fatalf("parsing response file: %v", err)
	}

	if err := plotEllipse(resp, *outputDir); err != nil {
		log.Fatalf("plotting ellipse: %v", err)
	}
	if err := plotResiduals(resp, *outputDir); err != nil {
		log.Fatalf("plotting residuals: %v", err)
	}
	log.Printf("wrote plots to %s", *outputDir)
}

// plotEllipse draws the epicentral projection of the error ellipsoid
// (semi-axes 0 and 1, the largest two by construction) as a closed
// polygon in local east/north km coordinates.
func plotEllipse(resp api.EventResponse, dir string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("90%% error ellipse (quality %s)", resp.Quality)
	p.X.Label.Text = "East (km)"
	p.Y.Label.Text = "North (km)"

	const steps = 180
	pts := make(plotter.XYs, steps+1)
	a := resp.Ellipsoid[0].SemiKm
	b := resp.Ellipsoid[1].SemiKm
	theta := resp.Ellipsoid[0].AzimuthDeg * math.Pi / 180
	for i := 0; i <= steps; i++ {
		t := 2 * math.Pi * float64(i) / steps
		x := a * math.Cos(t)
		y := b * math.Sin(t)
		// rotate by the major axis azimuth (clockwise from north).
		east := x*math.Sin(theta) + y*math.Cos(theta)
		north := x*math.Cos(theta) - y*math.Sin(theta)
		pts[i] = plotter.XY{X: east, Y: north}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("building ellipse line: %w", err)
	}
	line.Width = vg.Points(1.5)
	p.Add(line)

	origin, err := plotter.NewScatter(plotter.XYs{{X: 0, Y: 0}})
	if err != nil {
		return fmt.Errorf("building origin marker: %w", err)
	}
	p.Add(origin)

	return p.Save(6*vg.Inch, 6*vg.Inch, dir+"/error_ellipse.png")
}

// plotResiduals draws each used pick's residual against its delta, a
// quick visual check for systematic travel-time bias by distance.
func plotResiduals(resp api.EventResponse, dir string) error {
	p := plot.New()
	p.Title.Text = "Per-pick residuals"
	p.X.Label.Text = "Delta (degrees)"
	p.Y.Label.Text = "Residual (s)"

	var pts plotter.XYs
	for _, pk := range resp.Picks {
		if !pk.Used {
			continue
		}
		pts = append(pts, plotter.XY{X: pk.DeltaDeg, Y: pk.Residual})
	}
	if len(pts) == 0 {
		return nil
	}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("building residual scatter: %w", err)
	}
	p.Add(scatter)

	return p.Save(8*vg.Inch, 5*vg.Inch, dir+"/residuals.png")
}
