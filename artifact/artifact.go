// Package artifact publishes a group of output files all at once.
//
// Each output is first written to a temporary sibling of its final path.
// Commit moves every temporary into place only after all of them were
// written and closed; if any move fails the previous files are restored.
// Abort removes the temporaries and leaves existing outputs untouched.
//
//	set := artifact.NewSet(afero.NewOsFs())
//	defer set.Abort()
//
//	img, err := set.Stage("kernel.bin")
//	...
//	if err := set.Commit(); err != nil {
//	    return err
//	}
package artifact

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/wippyai/flatimg/errors"
)

// FileMode is the permission of committed artifacts.
const FileMode os.FileMode = 0o644

// Staged is one output being written to a temporary file.
type Staged struct {
	file   afero.File
	final  string
	tmp    string
	backup string
	closed bool
}

// Path returns the final path of the artifact.
func (s *Staged) Path() string {
	return s.final
}

// TempPath returns the temporary path being written.
func (s *Staged) TempPath() string {
	return s.tmp
}

// Write implements io.Writer.
func (s *Staged) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

// ReadAt reads back staged content before it is committed.
func (s *Staged) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

func (s *Staged) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// Set is a group of artifacts committed together.
type Set struct {
	fs     afero.Fs
	staged []*Staged
	done   bool
}

// NewSet creates an empty Set on fs.
func NewSet(fs afero.Fs) *Set {
	return &Set{fs: fs}
}

// Stage opens a temporary file next to path. The file becomes visible at
// path only on Commit.
func (s *Set) Stage(path string) (*Staged, error) {
	if s.done {
		return nil, errors.New(errors.PhaseCommit, errors.KindIO).
			Path(path).
			Detail("artifact set already finished").
			Build()
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := afero.TempFile(s.fs, dir, "."+base+".tmp-*")
	if err != nil {
		return nil, errors.IO(errors.PhaseCommit, path, err)
	}
	if err := s.fs.Chmod(f.Name(), FileMode); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(f.Name())
		return nil, errors.IO(errors.PhaseCommit, path, err)
	}

	st := &Staged{file: f, final: path, tmp: f.Name()}
	s.staged = append(s.staged, st)

	Logger().Debug("staged artifact", zap.String("path", path), zap.String("tmp", st.tmp))
	return st, nil
}

// Commit publishes every staged artifact. On failure nothing new is left
// at any final path and files that existed before are restored.
func (s *Set) Commit() error {
	if s.done {
		return errors.New(errors.PhaseCommit, errors.KindIO).
			Detail("artifact set already finished").
			Build()
	}

	for _, st := range s.staged {
		if err := st.close(); err != nil {
			cause := errors.IO(errors.PhaseCommit, st.final, err)
			return s.fail(cause)
		}
	}

	for _, st := range s.staged {
		exists, err := afero.Exists(s.fs, st.final)
		if err != nil {
			return s.rollback(errors.IO(errors.PhaseCommit, st.final, err), nil)
		}
		if !exists {
			continue
		}
		backup := st.tmp + ".orig"
		if err := s.fs.Rename(st.final, backup); err != nil {
			return s.rollback(errors.IO(errors.PhaseCommit, st.final, err), nil)
		}
		st.backup = backup
	}

	var moved []*Staged
	for _, st := range s.staged {
		if err := s.fs.Rename(st.tmp, st.final); err != nil {
			return s.rollback(errors.IO(errors.PhaseCommit, st.final, err), moved)
		}
		moved = append(moved, st)
	}

	s.done = true
	var result *multierror.Error
	for _, st := range s.staged {
		if st.backup != "" {
			if err := s.fs.Remove(st.backup); err != nil {
				result = multierror.Append(result, err)
			}
		}
		Logger().Debug("committed artifact", zap.String("path", st.final))
	}
	if err := result.ErrorOrNil(); err != nil {
		Logger().Warn("leftover backup files", zap.Error(err))
	}
	return nil
}

// rollback undoes a partial commit: removes moved artifacts, restores
// backups and deletes temporaries.
func (s *Set) rollback(cause *errors.Error, moved []*Staged) error {
	var result *multierror.Error
	for _, st := range moved {
		if err := s.fs.Remove(st.final); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, st := range s.staged {
		if st.backup == "" {
			continue
		}
		if err := s.fs.Rename(st.backup, st.final); err != nil {
			result = multierror.Append(result, err)
		}
		st.backup = ""
	}
	if err := result.ErrorOrNil(); err != nil {
		Logger().Error("rollback incomplete", zap.Error(err))
	}
	return s.fail(cause)
}

func (s *Set) fail(cause *errors.Error) error {
	if err := s.Abort(); err != nil {
		Logger().Warn("cleanup after failed commit", zap.Error(err))
	}
	return cause
}

// Abort removes every temporary file. It is a no-op after a successful
// Commit and safe to call more than once.
func (s *Set) Abort() error {
	if s.done {
		return nil
	}
	s.done = true

	var result *multierror.Error
	for _, st := range s.staged {
		if err := st.close(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := s.fs.Remove(st.tmp); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
