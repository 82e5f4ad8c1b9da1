package vcfio

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/openvariant/tranchefilter/internal/variant"
)

const headerRow = "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO"

// Writer encodes an annotated callset. Header lines accumulate until the
// first record is written; after that the header is frozen.
type Writer struct {
	w           *bufio.Writer
	meta        []string
	wroteHeader bool
}

// NewWriter wraps w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// SetMeta seeds the metadata block, typically the input's own header lines.
func (w *Writer) SetMeta(lines []string) {
	w.meta = append([]string(nil), lines...)
}

// AddFilter appends a FILTER metadata line.
func (w *Writer) AddFilter(id, description string) {
	w.meta = append(w.meta,
		fmt.Sprintf("##FILTER=<ID=%s,Description=%q>", id, description))
}

// AddInfo appends an INFO metadata line.
func (w *Writer) AddInfo(id, number, typ, description string) {
	w.meta = append(w.meta,
		fmt.Sprintf("##INFO=<ID=%s,Number=%s,Type=%s,Description=%q>", id, number, typ, description))
}

// WriteHeader emits the metadata block and the column header row. Write calls
// it implicitly before the first record.
func (w *Writer) WriteHeader() error {
	if w.wroteHeader {
		return nil
	}
	w.wroteHeader = true
	for _, line := range w.meta {
		if _, err := fmt.Fprintln(w.w, line); err != nil {
			return eris.Wrap(err, "write header")
		}
	}
	if _, err := fmt.Fprintln(w.w, headerRow); err != nil {
		return eris.Wrap(err, "write header")
	}
	return nil
}

// Write emits one record.
func (w *Writer) Write(c *variant.Call) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w.w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
		c.Locus.Contig, c.Locus.Start,
		orDot(c.ID),
		orDot(c.Ref),
		joinOrDot(c.Alts, ","),
		orDot(c.Qual),
		joinOrDot(c.Filters, ";"),
		encodeInfo(c))
	if err != nil {
		return eris.Wrapf(err, "write record %s", c.Locus)
	}
	return nil
}

// Flush drains buffered output to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return eris.Wrap(err, "flush output")
	}
	return nil
}

func orDot(s string) string {
	if s == "" {
		return "."
	}
	return s
}

func joinOrDot(parts []string, sep string) string {
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, sep)
}

// encodeInfo serializes the INFO map with sorted keys so output is stable
// across runs. Flag keys (empty value) are written bare.
func encodeInfo(c *variant.Call) string {
	keys := c.InfoKeys()
	if len(keys) == 0 {
		return "."
	}
	entries := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := c.Info[k]; v == "" {
			entries = append(entries, k)
		} else {
			entries = append(entries, k+"="+v)
		}
	}
	return strings.Join(entries, ";")
}

// BufferedSink collects records in memory. Shard walkers write to one sink
// each so their output can be drained to the shared Writer in shard order.
type BufferedSink struct {
	calls []*variant.Call
}

// Write appends one record.
func (s *BufferedSink) Write(c *variant.Call) error {
	s.calls = append(s.calls, c)
	return nil
}

// Len returns the number of buffered records.
func (s *BufferedSink) Len() int { return len(s.calls) }

// Drain writes every buffered record to w and empties the sink.
func (s *BufferedSink) Drain(w *Writer) error {
	for _, c := range s.calls {
		if err := w.Write(c); err != nil {
			return err
		}
	}
	s.calls = nil
	return nil
}
