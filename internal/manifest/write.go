package manifest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// WriteTables writes dir/table.manifest, one table per line.
func WriteTables(dir, header string, tables []TableSpec) error {
	lines := make([]string, 0, len(tables))
	for _, t := range tables {
		if t.SortHint != "" {
			lines = append(lines, t.Name+" "+t.SortHint)
			continue
		}
		lines = append(lines, t.Name)
	}
	return writeLines(filepath.Join(dir, TablesFile), header, lines)
}

// WriteFields writes dir/<table>.fields, one field per line.
func WriteFields(dir, table, header string, fields FieldList) error {
	return writeLines(FieldsPath(dir, table), header, fields)
}

func writeLines(path, header string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if header != "" {
		fmt.Fprintf(w, "# %s\n", header)
	}
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
