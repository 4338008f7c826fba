package logconvert

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/scanlog/internal/fsutil"
	"github.com/banshee-data/scanlog/internal/logparse"
)

// DefaultSensorComponent is the component whose split file is rewritten.
const DefaultSensorComponent = "LMS200"

// Options configures batch and watch conversion.
type Options struct {
	FS fsutil.FileSystem
	// LogsRoot holds raw logs as <LogsRoot>/<session date>/<file>.
	LogsRoot string
	// OutRoot receives <OutRoot>/<session date>/<component>/<base name>.
	OutRoot string
	// SensorComponent names the split file to rewrite. Empty selects
	// DefaultSensorComponent.
	SensorComponent string
	// Marker overrides the default start marker.
	Marker *logparse.StartMarker
}

func (o Options) withDefaults() Options {
	if o.FS == nil {
		o.FS = fsutil.OSFileSystem{}
	}
	if o.LogsRoot == "" {
		o.LogsRoot = "logs"
	}
	if o.OutRoot == "" {
		o.OutRoot = "converted"
	}
	if o.SensorComponent == "" {
		o.SensorComponent = DefaultSensorComponent
	}
	return o
}

// Converted describes one converted raw log.
type Converted struct {
	RawPath string
	// Files maps component name to its split file.
	Files   map[string]string
	Records int
	Rewrite RewriteResult
	// Rewritten is false when the session had no sensor records.
	Rewritten bool
}

// ConvertFile tokenizes one raw log, splits it per component and rewrites
// the sensor component's file.
func ConvertFile(ctx context.Context, opts Options, rawPath string) (Converted, error) {
	opts = opts.withDefaults()

	sess, err := parseRaw(ctx, opts, rawPath)
	if err != nil {
		return Converted{}, err
	}

	splitter := &Splitter{FS: opts.FS, RootPrefix: opts.LogsRoot, OutRoot: opts.OutRoot}
	files, err := splitter.Split(ctx, sess, rawPath)
	if err != nil {
		return Converted{}, fmt.Errorf("split %s: %w", rawPath, err)
	}
	out := Converted{RawPath: rawPath, Files: files, Records: sess.Len()}

	if sensor, ok := files[opts.SensorComponent]; ok {
		rw := &ScanRewriter{FS: opts.FS}
		if out.Rewrite, err = rw.RewriteFile(ctx, sensor); err != nil {
			return out, fmt.Errorf("rewrite %s: %w", sensor, err)
		}
		out.Rewritten = true
	}
	logf("%s: %d records into %d files, %d scans folded", rawPath, out.Records, len(files), out.Rewrite.Folded)
	return out, nil
}

func parseRaw(ctx context.Context, opts Options, rawPath string) (*logparse.Session, error) {
	f, err := opts.FS.Open(rawPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", rawPath, err)
	}
	r, err := logparse.Decompress(f, filepath.Ext(rawPath))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", rawPath, err)
	}
	defer r.Close()

	var parseOpts []logparse.Option
	if opts.Marker != nil {
		parseOpts = append(parseOpts, logparse.WithStartMarker(*opts.Marker))
	}
	sess, err := logparse.Parse(ctx, r, parseOpts...)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawPath, err)
	}
	return sess, nil
}

// ConvertAll converts every raw log matching <LogsRoot>/*/*. A failing log
// does not stop the others; all failures are returned joined.
func ConvertAll(ctx context.Context, opts Options) ([]Converted, error) {
	opts = opts.withDefaults()
	paths, err := opts.FS.Glob(filepath.Join(opts.LogsRoot, "*", "*"))
	if err != nil {
		return nil, fmt.Errorf("list raw logs: %w", err)
	}

	var (
		done []Converted
		errs []error
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		c, err := ConvertFile(ctx, opts, path)
		if err != nil {
			logf("%v", err)
			errs = append(errs, err)
			continue
		}
		done = append(done, c)
	}
	return done, errors.Join(errs...)
}
