// Command modiinfo prints a summary of a Mac OS disk image: media
// size, a chunk-kind histogram, and (for UDIF images) trailer fields
// such as image variant, segment and checksums, matching libmodi's own `modiinfo` tool without its
// mount/bom-table options (spec §6's "informational" CLI surface).
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/elliotnunn/modi"
	"github.com/elliotnunn/modi/internal/extent"
)

const version = "modiinfo (modi) 1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("modiinfo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "verbose diagnostics to stderr")
	showVersion := fs.Bool("V", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: modiinfo [-v] [-V] <image>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if *showVersion {
		fmt.Fprintln(stdout, version)
		return 0
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	if *verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	path := fs.Arg(0)
	img, err := openAny(path)
	if err != nil {
		fmt.Fprintf(stderr, "modiinfo: %v\n", err)
		return 1
	}
	defer img.Close()

	printInfo(stdout, img)
	return 0
}

// openAny tries Open first (UDIF/sparse image), falling back to
// OpenSparseBundle when path names a directory.
func openAny(path string) (*modi.Image, error) {
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		return modi.OpenSparseBundle(path)
	}
	return modi.Open(path)
}

func printInfo(w *os.File, img *modi.Image) {
	fmt.Fprintf(w, "media size:     %d bytes\n", img.MediaSize())

	if v := img.ImageVariant(); v != 0 {
		fmt.Fprintf(w, "image variant:  %#x\n", v)
	}

	if number, count, id := img.Segment(); count > 1 {
		fmt.Fprintf(w, "segment:        %d of %d (id %s)\n", number, count, hex.EncodeToString(id[:]))
	}

	if dc := img.DataChecksum(); dc.Algorithm != 0 {
		fmt.Fprintf(w, "data checksum:  %s %s\n", dc.Algorithm, hex.EncodeToString(dc.Bytes()))
	}
	if mc := img.MasterChecksum(); mc.Algorithm != 0 {
		fmt.Fprintf(w, "master checksum: %s %s\n", mc.Algorithm, hex.EncodeToString(mc.Bytes()))
	}

	histogram := img.ChunkHistogram()
	if len(histogram) > 0 {
		fmt.Fprintln(w, "chunk kinds:")
		for _, k := range []extent.Kind{extent.Passthrough, extent.ZeroFill, extent.Ignored, extent.ADC, extent.Zlib, extent.Bzip2, extent.LZFSE, extent.LZVN} {
			if n, ok := histogram[k]; ok {
				fmt.Fprintf(w, "  %-12s %d\n", k, n)
			}
		}
	}
}
