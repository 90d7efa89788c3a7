package fs

import "bytes"
import "context"
import "fmt"
import "log/slog"
import "strings"
import "sync"

import "github.com/canliroc/CS371/defs"
import "github.com/canliroc/CS371/fdops"
import "github.com/canliroc/CS371/util"

import "github.com/viant/afs"
import "github.com/viant/afs/file"
import "github.com/viant/afs/url"

// a flat, byte-addressable file store rooted at an afs URL (file://, mem://,
// gs://, ...)
type Fs_t struct {
	// serializes read-modify-write cycles on file contents
	sync.Mutex
	afs  afs.Service
	root string
	Oc   *Opencount_t
}

func MkFs(fs afs.Service, root string) *Fs_t {
	ret := &Fs_t{afs: fs, root: strings.TrimRight(root, "/")}
	ret.Oc = MkOpencount(func(k Fkey_t) bool {
		if k.Store != ret.root {
			return false
		}
		return ret.Fs_remove(k.Path)
	})
	return ret
}

func (f *Fs_t) Storeid() string {
	return f.root
}

func (f *Fs_t) url(name string) string {
	return url.Join(f.root, name)
}

func (f *Fs_t) Key(name string) Fkey_t {
	return Fkey_t{Store: f.root, Path: name}
}

func badname(name string) bool {
	return name == "" || name == "." || strings.ContainsAny(name, "/\\") ||
		strings.Contains(name, "..")
}

// opens the named file, creating (or truncating) it if create is set. the
// returned handle holds a reference in the open-count registry. the
// reference is taken before the store is touched, so a file pending
// deletion is never truncated.
func (f *Fs_t) Fs_open(ctx context.Context, name string, create bool) (*File_t, defs.Err_t) {
	if badname(name) {
		return nil, -defs.EINVAL
	}
	k := f.Key(name)
	if !f.Oc.Openref(k) {
		return nil, -defs.ENOENT
	}
	if err := f._open(ctx, name, create); err != 0 {
		f.Oc.Closeref(k)
		return nil, err
	}
	return &File_t{fs: f, name: name}, 0
}

func (f *Fs_t) _open(ctx context.Context, name string, create bool) defs.Err_t {
	f.Lock()
	defer f.Unlock()
	URL := f.url(name)
	exists, err := f.afs.Exists(ctx, URL)
	if err != nil {
		slog.Warn("store lookup failed", "url", URL, "error", err)
		return -defs.ENOENT
	}
	if create {
		err = f.afs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(nil))
		if err != nil {
			slog.Warn("store create failed", "url", URL, "error", err)
			return -defs.ENOSPC
		}
	} else if !exists {
		return -defs.ENOENT
	}
	return 0
}

// marks the named file for removal; it disappears once no process has it
// open.
func (f *Fs_t) Fs_unlink(ctx context.Context, name string) defs.Err_t {
	if badname(name) {
		return -defs.EINVAL
	}
	exists, err := f.afs.Exists(ctx, f.url(name))
	if err != nil || !exists {
		return -defs.ENOENT
	}
	return f.Oc.Unlink(f.Key(name))
}

// physically deletes the named file. returns false if it could not be
// removed.
func (f *Fs_t) Fs_remove(name string) bool {
	f.Lock()
	defer f.Unlock()
	ctx := context.Background()
	URL := f.url(name)
	if ok, _ := f.afs.Exists(ctx, URL); !ok {
		return false
	}
	if err := f.afs.Delete(ctx, URL); err != nil {
		slog.Warn("store delete failed", "url", URL, "error", err)
		return false
	}
	return true
}

func (f *Fs_t) Fs_exists(ctx context.Context, name string) bool {
	ok, err := f.afs.Exists(ctx, f.url(name))
	return err == nil && ok
}

// writes a whole file, bypassing the open-count registry. used to install
// programs and configuration.
func (f *Fs_t) Fs_install(ctx context.Context, name string, data []uint8) error {
	if badname(name) {
		return fmt.Errorf("invalid file name %q", name)
	}
	f.Lock()
	defer f.Unlock()
	if err := f.afs.Upload(ctx, f.url(name), file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to install %s: %w", name, err)
	}
	return nil
}

func (f *Fs_t) _contents(name string) ([]uint8, error) {
	return f.afs.DownloadWithURL(context.Background(), f.url(name))
}

// an open file. each handle has its own position.
type File_t struct {
	fs     *Fs_t
	name   string
	pos    int
	closed bool
}

var _ fdops.Fdops_i = (*File_t)(nil)

func (fl *File_t) Name() string {
	return fl.name
}

func (fl *File_t) Storeid() string {
	return fl.fs.root
}

func (fl *File_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if fl.closed {
		return 0, -defs.EBADF
	}
	fl.fs.Lock()
	data, err := fl.fs._contents(fl.name)
	fl.fs.Unlock()
	if err != nil {
		slog.Warn("store read failed", "name", fl.name, "error", err)
		return 0, -defs.ENOENT
	}
	if fl.pos >= len(data) {
		return 0, 0
	}
	end := util.Min(len(data), fl.pos+dst.Remain())
	n, uerr := dst.Uiowrite(data[fl.pos:end])
	fl.pos += n
	if n == 0 && uerr != 0 {
		return 0, uerr
	}
	return n, 0
}

func (fl *File_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if fl.closed {
		return 0, -defs.EBADF
	}
	buf := make([]uint8, src.Remain())
	n, uerr := src.Uioread(buf)
	if n == 0 {
		return 0, uerr
	}
	buf = buf[:n]

	fl.fs.Lock()
	defer fl.fs.Unlock()
	data, err := fl.fs._contents(fl.name)
	if err != nil {
		slog.Warn("store read failed", "name", fl.name, "error", err)
		return 0, -defs.ENOENT
	}
	if end := fl.pos + n; end > len(data) {
		data = append(data, make([]uint8, end-len(data))...)
	}
	copy(data[fl.pos:], buf)
	err = fl.fs.afs.Upload(context.Background(), fl.fs.url(fl.name),
		file.DefaultFileOsMode, bytes.NewReader(data))
	if err != nil {
		slog.Warn("store write failed", "name", fl.name, "error", err)
		return 0, -defs.ENOSPC
	}
	fl.pos += n
	return n, 0
}

// releases the handle's registry reference, which may remove an unlinked
// file
func (fl *File_t) Close() defs.Err_t {
	if fl.closed {
		return -defs.EBADF
	}
	fl.closed = true
	fl.fs.Oc.Closeref(fl.fs.Key(fl.name))
	return 0
}
