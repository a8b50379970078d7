// Package diff extracts changed file paths from unified git diffs.
//
// Only the `diff --git a/<from> b/<to>` headers are interpreted; hunk bodies
// are carried opaquely through the pipeline.
package diff

import (
	"strings"
)

const headerPrefix = "diff --git "

// ChangedFiles returns the set of destination paths touched by a raw unified
// diff, in first-seen order. Renames contribute their destination path. An
// empty or blank diff yields an empty set.
func ChangedFiles(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var files []string

	for _, line := range strings.Split(raw, "\n") {
		if !strings.HasPrefix(line, headerPrefix) {
			continue
		}
		path := destinationPath(strings.TrimPrefix(line, headerPrefix))
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	return files
}

// destinationPath extracts the b/ path from the remainder of a diff --git
// header line ("a/<from> b/<to>", either side possibly quoted).
func destinationPath(rest string) string {
	rest = strings.TrimSpace(rest)

	// Quoted destination: git quotes paths containing spaces or escapes.
	if idx := strings.Index(rest, ` "b/`); idx >= 0 {
		quoted := rest[idx+2:]
		quoted = strings.TrimPrefix(quoted, `"`)
		quoted = strings.TrimSuffix(quoted, `"`)
		return strings.TrimPrefix(unescape(quoted), "b/")
	}

	// Unquoted: the destination starts after the last " b/" marker. Paths
	// containing spaces are quoted by git, so this split is unambiguous here.
	if idx := strings.LastIndex(rest, " b/"); idx >= 0 {
		return rest[idx+len(" b/"):]
	}

	return ""
}

// unescape undoes the C-style escaping git applies inside quoted paths.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
