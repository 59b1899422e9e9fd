package render

import (
	"bytes"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"
	"time"
)

// renderTable prints a slice as rows under an upper-case header, and a
// struct or map as key: value lines. Count maps inside a struct are
// flattened to parent.key lines. Styling is applied after alignment so
// escape codes never skew the columns.
func (r *Renderer) renderTable(data any) error {
	v := indirect(reflect.ValueOf(data))

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	header := false

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			_, err := fmt.Fprintln(r.out, "(no results)")
			return err
		}
		writeRows(tw, v)
		header = true
	case reflect.Struct:
		writeStruct(tw, v)
	case reflect.Map:
		for _, k := range sortedKeys(v) {
			fmt.Fprintf(tw, "%v:\t%s\n", k.Interface(), cell(v.MapIndex(k)))
		}
	default:
		fmt.Fprintf(tw, "%v\n", data)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	bold := r.style.NewStyle().Bold(true)
	faint := r.style.NewStyle().Faint(true)
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	for i, line := range lines {
		switch {
		case header && i == 0:
			line = bold.Render(line)
		case !header:
			if k, rest, ok := strings.Cut(line, ":"); ok {
				line = faint.Render(k+":") + rest
			}
		}
		if _, err := fmt.Fprintln(r.out, line); err != nil {
			return err
		}
	}
	return nil
}

func writeRows(tw *tabwriter.Writer, v reflect.Value) {
	first := indirect(v.Index(0))

	var names []string
	switch first.Kind() {
	case reflect.Struct:
		names = fieldNames(first.Type())
	case reflect.Map:
		for _, k := range sortedKeys(first) {
			names = append(names, fmt.Sprint(k.Interface()))
		}
	default:
		names = []string{"value"}
	}

	upper := make([]string, len(names))
	for i, n := range names {
		upper[i] = strings.ToUpper(n)
	}
	fmt.Fprintln(tw, strings.Join(upper, "\t"))

	for i := range v.Len() {
		row := indirect(v.Index(i))
		cells := make([]string, len(names))
		for j, name := range names {
			switch row.Kind() {
			case reflect.Struct:
				cells[j] = cell(row.Field(j))
			case reflect.Map:
				cells[j] = cell(row.MapIndex(reflect.ValueOf(name)))
			default:
				cells[j] = cell(row)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
}

func writeStruct(tw *tabwriter.Writer, v reflect.Value) {
	names := fieldNames(v.Type())
	for i, name := range names {
		f := v.Field(i)
		if f.Kind() == reflect.Map && f.Len() > 0 {
			for _, k := range sortedKeys(f) {
				fmt.Fprintf(tw, "%s.%v:\t%s\n", name, k.Interface(), cell(f.MapIndex(k)))
			}
			continue
		}
		fmt.Fprintf(tw, "%s:\t%s\n", name, cell(f))
	}
}

// fieldNames returns the json name of every field, falling back to the
// lower-cased Go name.
func fieldNames(t reflect.Type) []string {
	names := make([]string, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			name = strings.ToLower(f.Name)
		}
		names[i] = name
	}
	return names
}

func cell(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		if t, ok := v.Interface().(time.Time); ok {
			if t.IsZero() {
				return ""
			}
			return t.Format(time.RFC3339)
		}
		return "{...}"
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v.Interface())
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	return v
}

// sortedKeys returns map keys in string order.
func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
	})
	return keys
}
