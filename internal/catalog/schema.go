package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tuannm99/heapdb/internal/record"
)

// TableDef is one parsed line of a schema file.
type TableDef struct {
	Name       string
	Schema     record.Schema
	PrimaryKey string
}

// ParseSchema reads table definitions, one per line:
//
//	name (field type [pk], field type [pk], ...)
//
// type is int or string, case-insensitive. At most one field may carry pk.
// Blank lines and lines starting with # are skipped.
func ParseSchema(r io.Reader) ([]TableDef, error) {
	var defs []TableDef
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		def, err := ParseTableDef(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		defs = append(defs, def)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return defs, nil
}

// ParseSchemaFile parses the schema file at path.
func ParseSchemaFile(path string) ([]TableDef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSchema(f)
}

// ParseTableDef parses a single "name (field type [pk], ...)" definition.
func ParseTableDef(line string) (TableDef, error) {
	open := strings.Index(line, "(")
	end := strings.LastIndex(line, ")")
	if open < 0 || end < open {
		return TableDef{}, fmt.Errorf("%w: expected name (fields): %q", record.ErrFormat, line)
	}
	name := strings.TrimSpace(line[:open])
	if name == "" || strings.ContainsAny(name, " \t") {
		return TableDef{}, fmt.Errorf("%w: bad table name %q", record.ErrFormat, name)
	}
	if rest := strings.TrimSpace(line[end+1:]); rest != "" {
		return TableDef{}, fmt.Errorf("%w: trailing text %q", record.ErrFormat, rest)
	}

	def := TableDef{Name: name}
	var (
		types []record.ColumnType
		names []string
	)
	for _, field := range strings.Split(line[open+1:end], ",") {
		parts := strings.Fields(field)
		if len(parts) < 2 || len(parts) > 3 {
			return TableDef{}, fmt.Errorf("%w: bad field %q in table %s", record.ErrFormat, strings.TrimSpace(field), name)
		}

		typ, err := record.ParseColumnType(parts[1])
		if err != nil {
			return TableDef{}, fmt.Errorf("%w: table %s: %w", record.ErrFormat, name, err)
		}

		if len(parts) == 3 {
			if !strings.EqualFold(parts[2], "pk") {
				return TableDef{}, fmt.Errorf("%w: unknown annotation %q in table %s", record.ErrFormat, parts[2], name)
			}
			if def.PrimaryKey != "" {
				return TableDef{}, fmt.Errorf("%w: table %s has more than one pk", record.ErrFormat, name)
			}
			def.PrimaryKey = parts[0]
		}

		types = append(types, typ)
		names = append(names, parts[0])
	}

	def.Schema = record.NewSchema(types, names)
	return def, nil
}
