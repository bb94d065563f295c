package vfs

import "strings"

// splitComponents breaks an absolute path into its non-empty components,
// collapsing consecutive '/' separators (spec.md §4.5). "/" itself yields
// no components.
func splitComponents(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitParent splits path at its last '/' into a parent path and the
// final component, for create/mkdir/unlink/rmdir (spec.md §4.5). The
// parent path is always absolute.
func splitParent(path string) (parent string, name string) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "/", path
	}
	name = path[idx+1:]
	parent = path[:idx]
	if parent == "" {
		parent = "/"
	}
	return parent, name
}
