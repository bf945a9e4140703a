package vaultpatch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
)

// DefaultSearchWindow is how many lines either side of the declared offset
// a hunk's pre-image may have drifted.
const DefaultSearchWindow = 40

// Item is one accepted file-patch changeset item.
type Item struct {
	ID          string
	FilePath    string
	UnifiedDiff string
}

type FileUpdate struct {
	FilePath    string `json:"file_path"`
	Content     string `json:"content"`
	ContentHash string `json:"content_hash"`
	Created     bool   `json:"created"`
}

type ApplyResult struct {
	AppliedItemIDs   []string     `json:"applied_item_ids"`
	VaultFileUpdates []FileUpdate `json:"vault_file_updates"`
	// Rollback restores every touched file to its pre-apply content, deleting
	// files the apply created. Safe to call more than once.
	Rollback func() error `json:"-"`
}

type Applier struct {
	FS           FS
	SearchWindow int
}

func NewApplier() *Applier {
	return &Applier{FS: OSFS{}, SearchWindow: DefaultSearchWindow}
}

// ApplyAcceptedFilePatchItems applies items to the vault at vaultRoot with
// the default filesystem and search window.
func ApplyAcceptedFilePatchItems(vaultRoot string, items []Item) (*ApplyResult, error) {
	return NewApplier().Apply(vaultRoot, items)
}

type filePatch struct {
	itemID string
	order  int
	hunk   Hunk
}

type fileWork struct {
	abs     string
	rel     string
	patches []filePatch

	existed  bool
	original []byte
	perm     os.FileMode
	updated  string
	// Directories this apply created for a new file, deepest first.
	createdDirs []string
}

// Apply validates and applies every item. Nothing is written until every
// hunk of every file has matched; a failed write rolls back the files
// already written before the error is returned.
func (a *Applier) Apply(vaultRoot string, items []Item) (*ApplyResult, error) {
	fsys := a.FS
	if fsys == nil {
		fsys = OSFS{}
	}
	window := a.SearchWindow
	if window <= 0 {
		window = DefaultSearchWindow
	}

	works := []*fileWork{}
	byPath := map[string]*fileWork{}
	for i, it := range items {
		hunks, err := ParseUnifiedDiff(it.UnifiedDiff)
		if err != nil {
			return nil, withItem(err, it)
		}
		if len(hunks) != 1 {
			return nil, apperr.Validation("multi_hunk_item",
				fmt.Sprintf("changeset item %s must contain exactly one hunk, found %d", it.ID, len(hunks)),
				map[string]any{"item_id": it.ID, "file_path": it.FilePath, "hunks": len(hunks)})
		}
		abs, rel, err := ResolveVaultPath(vaultRoot, it.FilePath)
		if err != nil {
			return nil, withItem(err, it)
		}
		w := byPath[abs]
		if w == nil {
			w = &fileWork{abs: abs, rel: rel}
			byPath[abs] = w
			works = append(works, w)
		}
		w.patches = append(w.patches, filePatch{itemID: it.ID, order: i, hunk: hunks[0]})
	}

	// Snapshot and compute everything before the first write.
	for _, w := range works {
		sort.SliceStable(w.patches, func(i, j int) bool {
			return w.patches[i].hunk.OldStart < w.patches[j].hunk.OldStart
		})
		if err := snapshot(fsys, w); err != nil {
			return nil, err
		}
		updated, err := patchContent(string(w.original), w, window)
		if err != nil {
			return nil, err
		}
		w.updated = updated
	}

	// Newest first, so a directory shared by two new files is empty by the
	// time the file that created it is restored.
	rollback := func(upTo int) error {
		var errs []error
		for i := min(upTo, len(works)) - 1; i >= 0; i-- {
			if err := restore(fsys, works[i]); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for i, w := range works {
		if !w.existed {
			w.createdDirs = missingDirs(fsys, filepath.Dir(w.abs))
			if err := fsys.MkdirAll(filepath.Dir(w.abs), 0o755); err != nil {
				removeDirs(fsys, w.createdDirs)
				_ = rollback(i)
				return nil, apperr.IO("vault_write_failed", fmt.Sprintf("create directory for %s", w.rel), err,
					map[string]any{"file_path": w.rel})
			}
		}
		if err := fsys.WriteFile(w.abs, []byte(w.updated), w.perm); err != nil {
			_ = rollback(i + 1)
			return nil, apperr.IO("vault_write_failed", fmt.Sprintf("write %s", w.rel), err,
				map[string]any{"file_path": w.rel})
		}
	}

	res := &ApplyResult{
		AppliedItemIDs:   make([]string, 0, len(items)),
		VaultFileUpdates: make([]FileUpdate, 0, len(works)),
		Rollback:         func() error { return rollback(len(works)) },
	}
	for _, it := range items {
		res.AppliedItemIDs = append(res.AppliedItemIDs, it.ID)
	}
	for _, w := range works {
		res.VaultFileUpdates = append(res.VaultFileUpdates, FileUpdate{
			FilePath:    w.rel,
			Content:     w.updated,
			ContentHash: ContentHash(w.updated),
			Created:     !w.existed,
		})
	}
	return res, nil
}

func snapshot(fsys FS, w *fileWork) error {
	data, err := fsys.ReadFile(w.abs)
	switch {
	case err == nil:
		w.existed = true
		w.original = data
		w.perm = 0o644
		if info, statErr := fsys.Stat(w.abs); statErr == nil {
			w.perm = info.Mode().Perm()
		}
		return nil
	case errors.Is(err, fs.ErrNotExist):
		// Only a hunk with an empty pre-image can create a file.
		for _, p := range w.patches {
			if len(p.hunk.Before()) > 0 {
				return apperr.Conflict("patch_target_missing",
					fmt.Sprintf("file %s does not exist", w.rel),
					map[string]any{"item_id": p.itemID, "file_path": w.rel})
			}
		}
		w.existed = false
		w.perm = 0o644
		return nil
	default:
		return apperr.IO("vault_read_failed", fmt.Sprintf("read %s", w.rel), err, map[string]any{"file_path": w.rel})
	}
}

func restore(fsys FS, w *fileWork) error {
	if w.existed {
		return fsys.WriteFile(w.abs, w.original, w.perm)
	}
	if err := fsys.Remove(w.abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	removeDirs(fsys, w.createdDirs)
	return nil
}

// missingDirs lists dir and each missing ancestor up to the first one that
// exists, deepest first.
func missingDirs(fsys FS, dir string) []string {
	var out []string
	for {
		if _, err := fsys.Stat(dir); !errors.Is(err, fs.ErrNotExist) {
			return out
		}
		out = append(out, dir)
		parent := filepath.Dir(dir)
		if parent == dir {
			return out
		}
		dir = parent
	}
}

// removeDirs is best effort: a directory that gained other entries stays.
func removeDirs(fsys FS, dirs []string) {
	for _, d := range dirs {
		if err := fsys.Remove(d); err != nil {
			return
		}
	}
}

func patchContent(content string, w *fileWork, window int) (string, error) {
	d := splitDoc(content)
	drift := 0
	for _, p := range w.patches {
		before, after := p.hunk.Before(), p.hunk.After()

		expected := p.hunk.OldStart - 1 + drift
		if len(before) == 0 {
			// "-N,0" inserts after line N.
			expected = p.hunk.OldStart + drift
		}
		expected = clamp(expected, 0, len(d.lines))

		pos := expected
		if len(before) > 0 {
			pos = findMatch(d.lines, before, expected, window)
			if pos < 0 {
				return "", apperr.Conflict("hunk_context_mismatch",
					fmt.Sprintf("hunk @@ -%d,%d @@ of item %s does not match %s within %d lines",
						p.hunk.OldStart, p.hunk.OldLines, p.itemID, w.rel, window),
					map[string]any{"item_id": p.itemID, "file_path": w.rel, "old_start": p.hunk.OldStart})
			}
		}

		next := make([]string, 0, len(d.lines)-len(before)+len(after))
		next = append(next, d.lines[:pos]...)
		next = append(next, after...)
		next = append(next, d.lines[pos+len(before):]...)
		d.lines = next
		drift += len(after) - len(before)
	}
	return d.join(), nil
}

// findMatch looks for want at expected, then at increasing distances up to
// window lines away, preferring the earlier position at equal distance.
func findMatch(lines, want []string, expected, window int) int {
	maxPos := len(lines) - len(want)
	if maxPos < 0 {
		return -1
	}
	if matchAt(lines, want, expected) {
		return expected
	}
	for dist := 1; dist <= window; dist++ {
		if p := expected - dist; p >= 0 && p <= maxPos && matchAt(lines, want, p) {
			return p
		}
		if p := expected + dist; p >= 0 && p <= maxPos && matchAt(lines, want, p) {
			return p
		}
	}
	return -1
}

func matchAt(lines, want []string, pos int) bool {
	if pos < 0 || pos+len(want) > len(lines) {
		return false
	}
	for i, w := range want {
		if lines[pos+i] != w {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type doc struct {
	lines    []string
	eol      string
	trailing bool
}

func splitDoc(content string) doc {
	d := doc{eol: "\n", trailing: true}
	if strings.Contains(content, "\r\n") {
		d.eol = "\r\n"
		content = strings.ReplaceAll(content, "\r\n", "\n")
	}
	if content == "" {
		return d
	}
	d.trailing = strings.HasSuffix(content, "\n")
	d.lines = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	return d
}

func (d doc) join() string {
	if len(d.lines) == 0 {
		return ""
	}
	s := strings.Join(d.lines, d.eol)
	if d.trailing {
		s += d.eol
	}
	return s
}

func withItem(err error, it Item) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		if e.Fields == nil {
			e.Fields = map[string]any{}
		}
		e.Fields["item_id"] = it.ID
		if _, ok := e.Fields["file_path"]; !ok {
			e.Fields["file_path"] = it.FilePath
		}
		e.Message = fmt.Sprintf("item %s: %s", it.ID, e.Message)
		return e
	}
	return fmt.Errorf("item %s: %w", it.ID, err)
}
