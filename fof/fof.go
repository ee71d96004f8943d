// Package fof parses a "file of files": one line per sample, naming its
// identifier and one or more input paths, and an optional per-sample
// minimum count. Grounded on
// original_source/include/kmtricks/io/fof.hpp's Fof::pattern/Fof::invalid
// regexes and Fof::parse's line loop.
package fof

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// linePattern mirrors Fof::pattern: an identifier, a colon, one or more
// semicolon-separated paths, and an optional "! mincount" suffix.
var linePattern = regexp.MustCompile(`^([A-Za-z0-9_-]+)[ \t]*:[ \t]*([.A-Za-z0-9/_\-; ]+?)([ \t]*![ \t]*([0-9]+))?$`)

// invalidPattern mirrors Fof::invalid: any of these characters anywhere
// on the line makes it malformed.
var invalidPattern = regexp.MustCompile(`[<>{}\[\],]`)

// InputError names the offending line number in a file of files, per
// spec.md §6/§7.
type InputError struct {
	Path string
	Line int
	Msg  string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("fof: %s:%d: %s", e.Path, e.Line, e.Msg)
}

// Sample is one parsed line: an identifier, its input paths, and an
// optional per-sample minimum count (0 means "use the run default").
type Sample struct {
	ID       string
	Paths    []string
	MinCount uint32
}

// FileOfFiles is every sample parsed from one fof, in file order.
type FileOfFiles struct {
	Samples []Sample
}

// Parse reads and validates the fof at path.
func Parse(path string) (*FileOfFiles, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fof: open %s", path)
	}
	defer f.Close()

	fof := &FileOfFiles{}
	seen := make(map[string]bool)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if invalidPattern.MatchString(line) {
			return nil, &InputError{Path: path, Line: lineNo, Msg: "line contains an invalid character"}
		}

		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			return nil, &InputError{Path: path, Line: lineNo, Msg: "line does not match \"id : path[;path...][ ! mincount]\""}
		}

		id := m[1]
		if id == "" {
			return nil, &InputError{Path: path, Line: lineNo, Msg: "empty sample identifier"}
		}
		if seen[id] {
			return nil, &InputError{Path: path, Line: lineNo, Msg: fmt.Sprintf("duplicate sample identifier %q", id)}
		}
		seen[id] = true

		var paths []string
		for _, p := range strings.Split(m[2], ";") {
			p = strings.TrimSpace(p)
			if p != "" {
				paths = append(paths, p)
			}
		}
		if len(paths) == 0 {
			return nil, &InputError{Path: path, Line: lineNo, Msg: "sample has no input paths"}
		}

		var minCount uint32
		if m[4] != "" {
			v, err := strconv.ParseUint(m[4], 10, 32)
			if err != nil {
				return nil, &InputError{Path: path, Line: lineNo, Msg: "invalid mincount"}
			}
			minCount = uint32(v)
		}

		fof.Samples = append(fof.Samples, Sample{ID: id, Paths: paths, MinCount: minCount})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "fof: read %s", path)
	}

	return fof, nil
}
