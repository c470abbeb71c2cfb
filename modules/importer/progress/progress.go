// Package progress accumulates per-record import outcomes and renders them.
package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

type Category string

const (
	Created Category = "created"
	Updated Category = "updated"
	Skip    Category = "skip"
	Ignore  Category = "ignore"
	Warning Category = "warning"
	Failure Category = "failure"
)

// Categories lists every category in report order.
func Categories() []Category {
	return []Category{Created, Updated, Skip, Ignore, Warning, Failure}
}

var glyphs = map[Category]string{
	Created: ".",
	Updated: "u",
	Ignore:  "I",
	Warning: "W",
	Failure: "F",
}

const glyphsPerLine = 100

type Field struct {
	Key   string
	Value any
}

// Detail is one reported condition. Fields keep their insertion order.
type Detail struct {
	Kind    string
	Message string
	Fields  []Field
}

func NewDetail(kind, message string, kv ...any) Detail {
	d := Detail{Kind: kind, Message: message}
	for i := 0; i+1 < len(kv); i += 2 {
		d.Fields = append(d.Fields, Field{Key: fmt.Sprint(kv[i]), Value: kv[i+1]})
	}
	return d
}

// With returns a copy of d with the field appended.
func (d Detail) With(key string, value any) Detail {
	fields := make([]Field, len(d.Fields), len(d.Fields)+1)
	copy(fields, d.Fields)
	d.Fields = append(fields, Field{Key: key, Value: value})
	return d
}

func (d Detail) Get(key string) (any, bool) {
	for _, f := range d.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func (d Detail) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value any) error {
		var v yaml.Node
		if err := v.Encode(value); err != nil {
			return err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, &v)
		return nil
	}
	if err := add("kind", d.Kind); err != nil {
		return nil, err
	}
	if d.Message != "" {
		if err := add("message", d.Message); err != nil {
			return nil, err
		}
	}
	for _, f := range d.Fields {
		if err := add(f.Key, f.Value); err != nil {
			return nil, err
		}
	}
	return node, nil
}

type Counts map[Category]int

func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Reporter is safe for concurrent use, though the pipeline drives it from a
// single goroutine.
type Reporter struct {
	mu      sync.Mutex
	out     io.Writer
	written int
	counts  Counts
	details map[Category][]Detail
}

// NewReporter streams progress glyphs to out; pass nil to stay quiet.
func NewReporter(out io.Writer) *Reporter {
	if out == nil {
		out = io.Discard
	}
	return &Reporter{
		out:     out,
		counts:  make(Counts),
		details: make(map[Category][]Detail),
	}
}

func (r *Reporter) Skip() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[Skip]++
}

func (r *Reporter) Ignore(d Detail) { r.record(Ignore, &d) }
func (r *Reporter) Warn(d Detail)   { r.record(Warning, &d) }
func (r *Reporter) Fail(d Detail)   { r.record(Failure, &d) }

func (r *Reporter) Success(updated bool) {
	if updated {
		r.record(Updated, nil)
		return
	}
	r.record(Created, nil)
}

func (r *Reporter) record(c Category, d *Detail) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[c]++
	if d != nil {
		r.details[c] = append(r.details[c], *d)
	}
	_, _ = io.WriteString(r.out, glyphs[c])
	r.written++
	if r.written%glyphsPerLine == 0 {
		_, _ = io.WriteString(r.out, "\n")
	}
}

func (r *Reporter) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(Counts, len(Categories()))
	for _, c := range Categories() {
		out[c] = r.counts[c]
	}
	return out
}

func (r *Reporter) Details(c Category) []Detail {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Detail, len(r.details[c]))
	copy(out, r.details[c])
	return out
}

// WriteReport renders the legend, the tally and every detail in encounter order.
func (r *Reporter) WriteReport(w io.Writer) error {
	counts := r.Counts()
	r.mu.Lock()
	midLine := r.written%glyphsPerLine != 0
	r.mu.Unlock()

	var b strings.Builder
	if midLine {
		b.WriteString("\n")
	}
	b.WriteString("\nlegend: . created  u updated  I ignored  W warning  F failure\n\n")

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, c := range Categories() {
		fmt.Fprintf(tw, "%s\t%d\t\n", c, counts[c])
	}
	fmt.Fprintf(tw, "total\t%d\t\n", counts.Total())
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, c := range []Category{Ignore, Warning, Failure} {
		details := r.Details(c)
		if len(details) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s (%d):\n", c, len(details))
		for _, d := range details {
			fmt.Fprintf(&b, "  - %s", d.Kind)
			if d.Message != "" {
				fmt.Fprintf(&b, ": %s", d.Message)
			}
			b.WriteString("\n")
			for _, f := range d.Fields {
				fmt.Fprintf(&b, "      %s: %v\n", f.Key, f.Value)
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

type resultsLog struct {
	Counts   map[Category]int `yaml:"counts"`
	Ignored  []Detail         `yaml:"ignored,omitempty"`
	Warnings []Detail         `yaml:"warnings,omitempty"`
	Failures []Detail         `yaml:"failures,omitempty"`
}

// WriteResultsLog writes the counts and details as YAML to path.
func (r *Reporter) WriteResultsLog(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	err = enc.Encode(resultsLog{
		Counts:   r.Counts(),
		Ignored:  r.Details(Ignore),
		Warnings: r.Details(Warning),
		Failures: r.Details(Failure),
	})
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

type Summary struct {
	Status  string `json:"status"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Ignored int    `json:"ignored"`
	Warned  int    `json:"warnings"`
	Failed  int    `json:"failures"`
	Total   int    `json:"total"`
}

func (r *Reporter) Summary() Summary {
	c := r.Counts()
	return Summary{
		Status:  "ok",
		Created: c[Created],
		Updated: c[Updated],
		Skipped: c[Skip],
		Ignored: c[Ignore],
		Warned:  c[Warning],
		Failed:  c[Failure],
		Total:   c.Total(),
	}
}

func (s Summary) JSON() ([]byte, error) {
	return json.Marshal(s)
}
