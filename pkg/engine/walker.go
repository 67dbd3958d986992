package engine

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Field is one string-valued leaf extracted from a document: its gjson
// path and its unescaped text.
type Field struct {
	Path string
	Text string
}

// Walk extracts every string-valued leaf of doc in depth-first document
// order (key-insertion order for objects, index order for arrays).
// Non-string leaves (numbers, booleans, null) are skipped. Traversal is
// pure; doc is never modified.
//
// Nesting deeper than maxDepth fails with ErrStructureTooDeep.
func Walk(doc []byte, maxDepth int) ([]Field, error) {
	// gjson only checks JSON syntax; mis-encoded bytes inside strings
	// would otherwise flow through detection unseen.
	if !utf8.Valid(doc) {
		return nil, ErrPayloadDecode
	}
	if !gjson.ValidBytes(doc) {
		return nil, ErrPayloadDecode
	}
	w := walker{maxDepth: maxDepth}
	w.visit(gjson.ParseBytes(doc), "", 0)
	if w.err != nil {
		return nil, w.err
	}
	return w.fields, nil
}

type walker struct {
	maxDepth int
	fields   []Field
	err      error
}

func (w *walker) visit(v gjson.Result, path string, depth int) {
	if w.err != nil {
		return
	}
	if depth > w.maxDepth {
		w.err = ErrStructureTooDeep
		return
	}

	switch {
	case v.IsObject():
		v.ForEach(func(key, val gjson.Result) bool {
			w.visit(val, joinPath(path, escapeSegment(key.String())), depth+1)
			return w.err == nil
		})
	case v.IsArray():
		idx := 0
		v.ForEach(func(_, val gjson.Result) bool {
			w.visit(val, joinPath(path, strconv.Itoa(idx)), depth+1)
			idx++
			return w.err == nil
		})
	case v.Type == gjson.String:
		w.fields = append(w.fields, Field{Path: path, Text: v.String()})
	}
}

// joinPath appends one (already escaped) segment to a gjson path.
func joinPath(base, segment string) string {
	if base == "" {
		return segment
	}
	return base + "." + segment
}

// escapeSegment escapes gjson path metacharacters in a literal key, so a
// key like "service.name" round-trips through Walk and Apply unchanged.
func escapeSegment(key string) string {
	if !strings.ContainsAny(key, `\.*?|#@`) {
		return key
	}
	var b strings.Builder
	b.Grow(len(key) + 2)
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '\\', '.', '*', '?', '|', '#', '@':
			b.WriteByte('\\')
		}
		b.WriteByte(key[i])
	}
	return b.String()
}

// LastSegment returns the final key of a gjson path with escapes removed.
// Array indices come back as their decimal string.
func LastSegment(path string) string {
	end := len(path)
	start := 0
	for i := end - 1; i >= 0; i-- {
		if path[i] == '.' && (i == 0 || path[i-1] != '\\') {
			start = i + 1
			break
		}
	}
	return strings.NewReplacer(`\.`, ".", `\*`, "*", `\?`, "?", `\\`, `\`, `\|`, "|", `\#`, "#", `\@`, "@").Replace(path[start:end])
}

// Apply writes per-path replacement values back onto the original document
// and removes dropped paths, producing a new document. Everything outside
// the touched leaves (key order, numeric formatting, untouched values) is
// preserved byte-for-byte.
func Apply(doc []byte, replacements map[string]string, drops []string) ([]byte, error) {
	out := doc
	var err error
	for _, f := range sortedPaths(replacements) {
		out, err = sjson.SetBytes(out, f, replacements[f])
		if err != nil {
			return nil, err
		}
	}
	for _, p := range deleteOrder(drops) {
		out, err = sjson.DeleteBytes(out, p)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// sortedPaths returns map keys in lexical order so rewrites are
// deterministic across runs.
func sortedPaths(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// deleteOrder sorts drop paths so that within one array the highest index
// is deleted first. Deleting an element shifts every later index down, so
// draining from the tail keeps the remaining paths valid.
func deleteOrder(drops []string) []string {
	out := append([]string(nil), drops...)
	sort.Slice(out, func(i, j int) bool { return pathAfter(out[i], out[j]) })
	return out
}

// pathAfter orders paths descending, comparing segment-wise with numeric
// comparison when both segments are array indices.
func pathAfter(a, b string) bool {
	as, bs := splitPath(a), splitPath(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		ai, aerr := strconv.Atoi(as[i])
		bi, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			return ai > bi
		}
		return as[i] > bs[i]
	}
	return len(as) > len(bs)
}

// splitPath splits a gjson path on unescaped dots, keeping escapes intact.
func splitPath(p string) []string {
	var segs []string
	var cur strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '\\' && i+1 < len(p) {
			cur.WriteByte(c)
			i++
			cur.WriteByte(p[i])
			continue
		}
		if c == '.' {
			segs = append(segs, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	return append(segs, cur.String())
}
