package watcher

import (
	"path/filepath"
	"strings"

	"propsync/internal/model"
	"propsync/internal/util"

	"github.com/bmatcuk/doublestar/v4"
)

func filter(in <-chan model.FileEvent, root string, ignoreList []string) <-chan model.FileEvent {
	out := make(chan model.FileEvent, cap(in))

	go func() {
		defer close(out)

		for event := range in {
			if shouldIgnore(root, event.Path, ignoreList) {
				continue
			}
			out <- event
		}
	}()

	return out
}

// shouldIgnore drops paths outside root, dotfile segments, in-flight temp
// files and anything matching the ignore list, either per segment or as a
// whole relative path.
func shouldIgnore(root, path string, ignoreList []string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return true
	}
	if util.IsTemp(path) {
		return true
	}

	rel = filepath.ToSlash(rel)
	for _, pattern := range ignoreList {
		if doublestar.MatchUnvalidated(pattern, rel) {
			return true
		}
	}

	for part := range strings.SplitSeq(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
		for _, pattern := range ignoreList {
			if doublestar.MatchUnvalidated(pattern, part) {
				return true
			}
		}
	}

	return false
}
