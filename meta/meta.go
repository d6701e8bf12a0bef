// Package meta writes the two constants the bootloader build needs: where
// to jump inside the flat image and how many bytes the image occupies.
package meta

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wippyai/flatimg/errors"
)

// Constant names consumed by the bootloader's startup code.
const (
	EntryOffsetName = "KERNEL_ENTRY_OFFSET"
	MemSizeName     = "KERNEL_MEMSIZE"
)

// Metadata holds the values derived from a flattened image.
type Metadata struct {
	EntryOffset uint64
	TotalSize   uint64
}

// Syntax selects the declaration form used for each constant.
type Syntax string

const (
	SyntaxNASM Syntax = "nasm" // %define NAME value
	SyntaxC    Syntax = "c"    // #define NAME value
	SyntaxGAS  Syntax = "gas"  // .set NAME, value
)

// Syntaxes lists the supported syntaxes, default first.
var Syntaxes = []Syntax{SyntaxNASM, SyntaxC, SyntaxGAS}

// ParseSyntax maps a name to a Syntax. The empty string selects NASM.
func ParseSyntax(name string) (Syntax, error) {
	if name == "" {
		return SyntaxNASM, nil
	}
	for _, s := range Syntaxes {
		if string(s) == strings.ToLower(name) {
			return s, nil
		}
	}
	return "", errors.Usage("unknown metadata format %q", name)
}

func (s Syntax) declare(name string, v uint64) string {
	switch s {
	case SyntaxC:
		return fmt.Sprintf("#define %s %d\n", name, v)
	case SyntaxGAS:
		return fmt.Sprintf(".set %s, %d\n", name, v)
	default:
		return fmt.Sprintf("%%define %s %d\n", name, v)
	}
}

// Encode writes the entry offset line followed by the memory size line.
func Encode(w io.Writer, m Metadata, s Syntax) error {
	text := s.declare(EntryOffsetName, m.EntryOffset) + s.declare(MemSizeName, m.TotalSize)
	if _, err := io.WriteString(w, text); err != nil {
		return errors.Wrap(errors.PhaseEmit, errors.KindIO, err, "writing metadata")
	}
	return nil
}

// Parse reads metadata written by Encode in any supported syntax. Blank
// lines and lines starting with ';', '//' or '#' that are not #define are
// ignored. Both constants must be present exactly once.
func Parse(r io.Reader) (Metadata, error) {
	var (
		m                   Metadata
		haveEntry, haveSize bool
	)

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, ";") || strings.HasPrefix(text, "//") {
			continue
		}
		if strings.HasPrefix(text, "#") && !strings.HasPrefix(text, "#define") {
			continue
		}

		name, value, ok := splitDeclaration(text)
		if !ok {
			return Metadata{}, errors.New(errors.PhaseEmit, errors.KindMalformedImage).
				Detail("line %d: unrecognized declaration %q", line, text).
				Build()
		}
		v, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return Metadata{}, errors.New(errors.PhaseEmit, errors.KindMalformedImage).
				Cause(err).
				Detail("line %d: bad value for %s", line, name).
				Build()
		}

		switch name {
		case EntryOffsetName:
			if haveEntry {
				return Metadata{}, duplicate(line, name)
			}
			m.EntryOffset, haveEntry = v, true
		case MemSizeName:
			if haveSize {
				return Metadata{}, duplicate(line, name)
			}
			m.TotalSize, haveSize = v, true
		}
	}
	if err := sc.Err(); err != nil {
		return Metadata{}, errors.Wrap(errors.PhaseEmit, errors.KindIO, err, "reading metadata")
	}

	if !haveEntry || !haveSize {
		return Metadata{}, errors.New(errors.PhaseEmit, errors.KindMalformedImage).
			Detail("metadata must define both %s and %s", EntryOffsetName, MemSizeName).
			Build()
	}
	return m, nil
}

func splitDeclaration(text string) (name, value string, ok bool) {
	switch {
	case strings.HasPrefix(text, "%define"), strings.HasPrefix(text, "#define"):
		fields := strings.Fields(text)
		if len(fields) != 3 {
			return "", "", false
		}
		return fields[1], fields[2], true
	case strings.HasPrefix(text, ".set"):
		name, value, found := strings.Cut(strings.TrimSpace(text[len(".set"):]), ",")
		if !found {
			return "", "", false
		}
		return strings.TrimSpace(name), strings.TrimSpace(value), true
	}
	return "", "", false
}

func duplicate(line int, name string) error {
	return errors.New(errors.PhaseEmit, errors.KindMalformedImage).
		Detail("line %d: %s defined twice", line, name).
		Build()
}
