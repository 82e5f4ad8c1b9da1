// Package vcfio reads and writes the tab-separated, VCF-style callset files
// the filtering pass consumes and produces. Records must be coordinate
// sorted; the reader enforces that so downstream traversal can rely on it.
package vcfio

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/openvariant/tranchefilter/internal/genome"
	"github.com/openvariant/tranchefilter/internal/variant"
)

// ErrUnsorted is returned when a record starts before the one preceding it.
var ErrUnsorted = eris.New("records are not coordinate sorted")

const columnCount = 8 // CHROM POS ID REF ALT QUAL FILTER INFO

// Reader decodes one callset stream. Metadata lines ("##...") are collected
// verbatim, ##contig lines additionally register the contig with the shared
// dictionary so ranks follow header declaration order.
type Reader struct {
	scanner *bufio.Scanner
	dict    *genome.Dictionary
	meta    []string
	line    int
	last    genome.Locus
	started bool
	region  *genome.Locus
}

// NewReader consumes the header (through the #CHROM row) and returns a Reader
// positioned at the first record.
func NewReader(r io.Reader, dict *genome.Dictionary) (*Reader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	rd := &Reader{scanner: scanner, dict: dict}
	for scanner.Scan() {
		rd.line++
		text := scanner.Text()
		switch {
		case strings.HasPrefix(text, "##"):
			rd.meta = append(rd.meta, text)
			if contig, ok := contigID(text); ok {
				dict.Add(contig)
			}
		case strings.HasPrefix(text, "#"):
			// The column header row ends the metadata block.
			return rd, nil
		default:
			return nil, eris.Errorf("line %d: record before the #CHROM header row", rd.line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "read header")
	}
	return nil, eris.New("missing #CHROM header row")
}

// contigID extracts the ID value from a "##contig=<ID=...,...>" line.
func contigID(line string) (string, bool) {
	body, ok := strings.CutPrefix(line, "##contig=<")
	if !ok {
		return "", false
	}
	body = strings.TrimSuffix(body, ">")
	for _, field := range strings.Split(body, ",") {
		if id, ok := strings.CutPrefix(field, "ID="); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// Meta returns the raw metadata lines, without the #CHROM row.
func (r *Reader) Meta() []string {
	out := make([]string, len(r.meta))
	copy(out, r.meta)
	return out
}

// Restrict limits Next to records starting within loc. Ownership is decided
// by the start coordinate alone: a record spanning past the region still
// belongs to this reader, and one starting before it never does, so readers
// over disjoint regions partition the stream without yielding any record
// twice. The stream ends once a record starts past the region, so a shard
// reader never scans beyond its range.
func (r *Reader) Restrict(loc genome.Locus) {
	r.region = &loc
}

// Next returns the next record, or (nil, nil) at end of stream.
func (r *Reader) Next() (*variant.Call, error) {
	for r.scanner.Scan() {
		r.line++
		text := r.scanner.Text()
		if text == "" {
			continue
		}

		call, err := r.parseRecord(text)
		if err != nil {
			return nil, err
		}

		if r.started && call.Locus.Before(r.last) {
			return nil, eris.Wrapf(ErrUnsorted, "line %d: %s after %s", r.line, call.Locus, r.last)
		}
		r.last = call.Locus
		r.started = true

		if r.region != nil {
			past := call.Locus.Rank > r.region.Rank ||
				(call.Locus.Rank == r.region.Rank && call.Locus.Start > r.region.Stop)
			if past {
				return nil, nil
			}
			before := call.Locus.Rank < r.region.Rank ||
				(call.Locus.Rank == r.region.Rank && call.Locus.Start < r.region.Start)
			if before {
				continue
			}
		}
		return call, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "read records")
	}
	return nil, nil
}

func (r *Reader) parseRecord(text string) (*variant.Call, error) {
	fields := strings.Split(text, "\t")
	if len(fields) < columnCount {
		return nil, eris.Errorf("line %d: %d columns, want at least %d", r.line, len(fields), columnCount)
	}

	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "line %d: parse position", r.line)
	}
	if pos < 1 {
		return nil, eris.Errorf("line %d: position %d out of range", r.line, pos)
	}

	ref := fields[3]
	info := parseInfo(fields[7])

	stop := pos + int64(len(ref)) - 1
	if endTxt, ok := info[variant.KeyEnd]; ok {
		end, err := strconv.ParseInt(endTxt, 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "line %d: parse END", r.line)
		}
		stop = end
	}

	return &variant.Call{
		Locus:   r.dict.Locus(fields[0], pos, stop),
		ID:      fields[2],
		Ref:     ref,
		Alts:    parseList(fields[4]),
		Qual:    fields[5],
		Filters: parseList(fields[6]),
		Info:    info,
	}, nil
}

// parseList splits a comma- or semicolon-delimited column, treating "." as
// empty.
func parseList(s string) []string {
	if s == "" || s == "." {
		return nil
	}
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
}

func parseInfo(s string) map[string]string {
	info := make(map[string]string)
	if s == "" || s == "." {
		return info
	}
	for _, entry := range strings.Split(s, ";") {
		if entry == "" {
			continue
		}
		key, value, _ := strings.Cut(entry, "=")
		info[key] = value
	}
	return info
}
