// Package builder runs the whole flattening pipeline for one input image:
// parse, select loadable segments, flatten, resolve the entry point, emit
// metadata and publish both artifacts together.
package builder

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/wippyai/flatimg/artifact"
	"github.com/wippyai/flatimg/bootsim"
	"github.com/wippyai/flatimg/config"
	"github.com/wippyai/flatimg/elfimage"
	"github.com/wippyai/flatimg/errors"
	"github.com/wippyai/flatimg/layout"
	"github.com/wippyai/flatimg/meta"
)

// Result describes a successful build.
type Result struct {
	Image      *elfimage.Image
	Layout     *layout.Layout
	Simulation *bootsim.Report
	Loadable   []elfimage.Segment
	Overlaps   []layout.Overlap
	Entry      layout.EntryTarget
	Metadata   meta.Metadata
}

// Build flattens cfg.InputPath into cfg.ImagePath and writes the metadata to
// cfg.MetadataPath. Either both outputs are published or neither is.
func Build(ctx context.Context, fs afero.Fs, cfg *config.Config) (*Result, error) {
	log := Logger().With(zap.String("input", cfg.InputPath))

	in, err := fs.Open(cfg.InputPath)
	if err != nil {
		return nil, errors.IO(errors.PhaseRead, cfg.InputPath, err)
	}
	defer in.Close()

	if fi, err := in.Stat(); err != nil {
		return nil, errors.IO(errors.PhaseRead, cfg.InputPath, err)
	} else if fi.IsDir() {
		return nil, errors.New(errors.PhaseRead, errors.KindIO).
			Path(cfg.InputPath).
			Detail("is a directory").
			Build()
	}

	img, err := elfimage.Read(in)
	if err != nil {
		return nil, withPath(err, cfg.InputPath)
	}

	res := &Result{Image: img}
	res.Loadable = layout.SelectLoadable(img.Segments)

	log.Debug("parsed image",
		zap.Stringer("class", img.Class),
		zap.Stringer("machine", img.Machine),
		zap.String("entry", fmt.Sprintf("%#x", img.Entry)),
		zap.Int("program_headers", len(img.Segments)),
		zap.Int("loadable", len(res.Loadable)))

	res.Overlaps = layout.FindOverlaps(res.Loadable)
	for _, o := range res.Overlaps {
		log.Warn("loadable segments overlap in virtual memory",
			zap.Int("first", o.First), zap.Int("second", o.Second))
	}

	if cfg.Strict {
		if err := layout.ValidateContiguous(res.Loadable); err != nil {
			return nil, withPath(err, cfg.InputPath)
		}
	}

	set := artifact.NewSet(fs)
	defer func() {
		if err := set.Abort(); err != nil {
			log.Warn("removing temporary outputs", zap.Error(err))
		}
	}()

	flat, err := set.Stage(cfg.ImagePath)
	if err != nil {
		return nil, err
	}

	res.Layout, err = layout.Flatten(flat, res.Loadable)
	if err != nil {
		if errors.KindOf(err) == errors.KindIO {
			return nil, withPath(err, cfg.ImagePath)
		}
		return nil, withPath(err, cfg.InputPath)
	}

	res.Entry, err = layout.ResolveEntry(res.Layout, img.Entry)
	if err != nil {
		return nil, withPath(err, cfg.InputPath)
	}

	res.Metadata = meta.Metadata{
		EntryOffset: res.Entry.Offset,
		TotalSize:   res.Layout.Size(),
	}

	metaOut, err := set.Stage(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}
	if err := meta.Encode(metaOut, res.Metadata, cfg.Format); err != nil {
		return nil, withPath(err, cfg.MetadataPath)
	}

	if cfg.Verify {
		res.Simulation, err = bootsim.Verify(ctx, flat, res.Layout, res.Entry, bootsim.Options{LoadBase: cfg.LoadBase})
		if err != nil {
			return nil, withPath(err, cfg.ImagePath)
		}
	}

	if err := set.Commit(); err != nil {
		return nil, err
	}

	log.Info("image flattened",
		zap.String("image", cfg.ImagePath),
		zap.String("metadata", cfg.MetadataPath),
		zap.Int("segments", res.Layout.Len()),
		zap.Uint64("entry_offset", res.Metadata.EntryOffset),
		zap.Uint64("memsize", res.Metadata.TotalSize),
		zap.String("memsize_human", humanize.IBytes(res.Metadata.TotalSize)))

	return res, nil
}

// withPath attaches path to err when it is a structured error without one.
func withPath(err error, path string) error {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Path == "" {
		e.Path = path
	}
	return err
}
