package client

import "sync"

// FileSet is the ordered file list of an open project with at most one selected file.
type FileSet struct {
	mu       sync.RWMutex
	files    []File
	selected int
}

func NewFileSet(files []File) *FileSet {
	fs := &FileSet{files: append([]File(nil), files...), selected: -1}
	if len(fs.files) > 0 {
		fs.selected = 0
	}
	return fs
}

func (fs *FileSet) Files() []File {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return append([]File(nil), fs.files...)
}

func (fs *FileSet) Len() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.files)
}

// Selected returns the selected file; ok is false in the empty state.
func (fs *FileSet) Selected() (f File, ok bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.selected < 0 {
		return File{}, false
	}
	return fs.files[fs.selected], true
}

func (fs *FileSet) indexOf(id string) int {
	for i := range fs.files {
		if fs.files[i].ID == id {
			return i
		}
	}
	return -1
}

// Select marks the file with id as selected and reports whether it exists.
func (fs *FileSet) Select(id string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	i := fs.indexOf(id)
	if i < 0 {
		return false
	}
	fs.selected = i
	return true
}

// Put replaces the file with the same ID, or appends and selects it.
func (fs *FileSet) Put(f File) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if i := fs.indexOf(f.ID); i >= 0 {
		fs.files[i] = f
		return
	}
	fs.files = append(fs.files, f)
	fs.selected = len(fs.files) - 1
}

// Remove drops the file with id. When it was selected, the file that took
// its place becomes selected, else the previous one, else nothing.
func (fs *FileSet) Remove(id string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	i := fs.indexOf(id)
	if i < 0 {
		return false
	}
	fs.files = append(fs.files[:i], fs.files[i+1:]...)

	switch {
	case len(fs.files) == 0:
		fs.selected = -1
	case fs.selected == i:
		if i >= len(fs.files) {
			i = len(fs.files) - 1
		}
		fs.selected = i
	case fs.selected > i:
		fs.selected--
	}
	return true
}
