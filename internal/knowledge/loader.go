package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// maxChunkChars bounds the size of one indexed chunk.
const maxChunkChars = 1200

// ProgressFunc is called after each file is read.
type ProgressFunc func(done, total int, name string)

// LoadFiles indexes every file under root matching one of the glob patterns
// (doublestar syntax, e.g. "policies/**/*.md"). It returns the number of
// files indexed. progress may be nil.
func (b *Base) LoadFiles(ctx context.Context, root string, patterns []string, progress ProgressFunc) (int, error) {
	fsys := os.DirFS(root)
	seen := map[string]bool{}
	var files []string
	for _, p := range patterns {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return 0, fmt.Errorf("expanding %q: %w", p, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)

	var (
		mu   sync.Mutex
		docs []Document
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, name := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := fs.ReadFile(fsys, name)
			if err != nil {
				return fmt.Errorf("reading %s: %w", name, err)
			}
			chunks := Chunk(string(data), maxChunkChars)
			mu.Lock()
			defer mu.Unlock()
			for i, c := range chunks {
				docs = append(docs, Document{
					ID:      fmt.Sprintf("%s#%d", name, i),
					Content: c,
					Source:  name,
					Chunk:   i,
				})
			}
			done++
			if progress != nil {
				progress(done, len(files), name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	if err := b.AddDocuments(ctx, docs); err != nil {
		return 0, fmt.Errorf("indexing documents: %w", err)
	}
	return len(files), nil
}

// Chunk splits text on blank lines and packs paragraphs into chunks of at
// most limit characters. A single longer paragraph becomes its own chunk.
func Chunk(text string, limit int) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(para)+2 > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return out
}
