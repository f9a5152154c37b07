// Package demo ships sample transcripts so the app can be tried without an export.
package demo

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
	"unicode"
)

//go:embed chats/*.txt
var chatFS embed.FS

// Entry describes one bundled transcript.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// List returns the bundled transcripts ordered by id.
func List() []Entry {
	files, err := fs.Glob(chatFS, "chats/*.txt")
	if err != nil {
		return nil
	}
	sort.Strings(files)

	entries := make([]Entry, 0, len(files))
	for _, f := range files {
		id := strings.TrimSuffix(path.Base(f), ".txt")
		entries = append(entries, Entry{ID: id, Name: DisplayName(id)})
	}
	return entries
}

// Load returns the raw export for id.
func Load(id string) ([]byte, bool) {
	if id == "" || strings.ContainsAny(id, "/\\.") {
		return nil, false
	}
	data, err := chatFS.ReadFile("chats/" + id + ".txt")
	if err != nil {
		return nil, false
	}
	return data, true
}

// DisplayName turns "work_discussion" into "Work Discussion".
func DisplayName(id string) string {
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
