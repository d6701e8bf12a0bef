// Package flatimg turns the loadable segments of an ELF executable into a
// flat memory image that a bootloader copies to its load address in one
// pass, plus the two constants early boot code needs to jump into it.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	flatimg/             Package documentation
//	├── cmd/flatimg/     Command line tool and interactive inspector
//	├── builder/         The whole pipeline for one input image
//	├── elfimage/        Executable header and program header adapter
//	├── layout/          Segment selection, flattening, entry resolution
//	├── meta/            KERNEL_ENTRY_OFFSET / KERNEL_MEMSIZE encoding
//	├── artifact/        Staged output files published together
//	├── bootsim/         Replays the boot copy in a sandboxed linear memory
//	├── report/          Layout table for terminals and logs
//	├── config/          Environment defaults and run configuration
//	└── errors/          Structured error types for diagnostics
//
// # Image Layout
//
// PT_LOAD segments are placed back to back in program header order. Each
// segment contributes its file bytes followed by zero bytes up to its
// memory size, so BSS is materialized in the image:
//
//	offset(0)   = 0
//	offset(i+1) = offset(i) + memsz(i)
//	size        = sum of memsz
//
// The image reproduces the executable's virtual memory only when the
// segments are themselves contiguous in virtual memory. That is assumed by
// default and checked with --strict.
//
// # Quick Start
//
// Flatten a kernel from Go:
//
//	cfg := &config.Config{
//	    InputPath:    "kernel.elf",
//	    ImagePath:    "kernel.bin",
//	    MetadataPath: "kernel.inc",
//	    Format:       meta.SyntaxNASM,
//	}
//	res, err := builder.Build(ctx, afero.NewOsFs(), cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Metadata.EntryOffset, res.Metadata.TotalSize)
//
// or from the shell:
//
//	flatimg kernel.elf kernel.bin kernel.inc
//
// # Thread Safety
//
// A build is a single-threaded batch. Package loggers may be replaced with
// SetLogger at any time; everything else is safe to use from one goroutine
// per build.
package flatimg
