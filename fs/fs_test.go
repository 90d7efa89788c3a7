package fs

import "context"
import "fmt"
import "strings"
import "sync"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/canliroc/CS371/defs"
import "github.com/canliroc/CS371/vm"

import "github.com/viant/afs"

func mkfs(t *testing.T) *Fs_t {
	root := "mem://localhost/fstest/" + strings.ReplaceAll(t.Name(), "/", "_")
	return MkFs(afs.New(), root)
}

func fwrite(t *testing.T, f *File_t, s string) {
	var fb vm.Fakeubuf_t
	fb.Fake_init([]uint8(s))
	n, err := f.Write(&fb)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, len(s), n)
}

func fread(t *testing.T, f *File_t, n int) string {
	buf := make([]uint8, n)
	var fb vm.Fakeubuf_t
	fb.Fake_init(buf)
	c, err := f.Read(&fb)
	require.Equal(t, defs.Err_t(0), err)
	return string(buf[:c])
}

func TestOpenMissing(t *testing.T) {
	fs := mkfs(t)
	_, err := fs.Fs_open(context.Background(), "nope", false)
	assert.Equal(t, -defs.ENOENT, err)
	for _, bad := range []string{"", "a/b", "..", "x\\y"} {
		_, err = fs.Fs_open(context.Background(), bad, true)
		assert.Equal(t, -defs.EINVAL, err, bad)
	}
}

func TestCreateReadWrite(t *testing.T) {
	ctx := context.Background()
	fs := mkfs(t)
	f, err := fs.Fs_open(ctx, "notes", true)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, "notes", f.Name())
	assert.Equal(t, fs.Storeid(), f.Storeid())
	fwrite(t, f, "hello ")
	fwrite(t, f, "world")
	require.Equal(t, defs.Err_t(0), f.Close())
	assert.Equal(t, -defs.EBADF, f.Close())

	g, err := fs.Fs_open(ctx, "notes", false)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, "hello", fread(t, g, 5))
	assert.Equal(t, " world", fread(t, g, 100))
	assert.Equal(t, "", fread(t, g, 100))
	g.Close()

	// create truncates
	h, err := fs.Fs_open(ctx, "notes", true)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, "", fread(t, h, 10))
	h.Close()
}

func TestHandlesHaveOwnPosition(t *testing.T) {
	ctx := context.Background()
	fs := mkfs(t)
	require.NoError(t, fs.Fs_install(ctx, "data", []uint8("abcdef")))
	a, _ := fs.Fs_open(ctx, "data", false)
	b, _ := fs.Fs_open(ctx, "data", false)
	assert.Equal(t, 2, fs.Oc.Count(fs.Key("data")))
	assert.Equal(t, "abc", fread(t, a, 3))
	assert.Equal(t, "ab", fread(t, b, 2))
	assert.Equal(t, "def", fread(t, a, 3))
	a.Close()
	b.Close()
	assert.Equal(t, 0, fs.Oc.Count(fs.Key("data")))
}

func TestUnlinkUnreferenced(t *testing.T) {
	ctx := context.Background()
	fs := mkfs(t)
	require.NoError(t, fs.Fs_install(ctx, "tmp", []uint8("x")))
	assert.Equal(t, defs.Err_t(0), fs.Fs_unlink(ctx, "tmp"))
	assert.False(t, fs.Fs_exists(ctx, "tmp"))
	assert.Equal(t, -defs.ENOENT, fs.Fs_unlink(ctx, "tmp"))
}

func TestUnlinkDeferredUntilLastClose(t *testing.T) {
	ctx := context.Background()
	fs := mkfs(t)
	require.NoError(t, fs.Fs_install(ctx, "shared", []uint8("data")))
	a, err := fs.Fs_open(ctx, "shared", false)
	require.Equal(t, defs.Err_t(0), err)
	b, err := fs.Fs_open(ctx, "shared", false)
	require.Equal(t, defs.Err_t(0), err)

	assert.Equal(t, defs.Err_t(0), fs.Fs_unlink(ctx, "shared"))
	assert.True(t, fs.Fs_exists(ctx, "shared"))
	assert.True(t, fs.Oc.Pending(fs.Key("shared")))

	// pending files cannot be opened or recreated
	_, err = fs.Fs_open(ctx, "shared", false)
	assert.Equal(t, -defs.ENOENT, err)
	_, err = fs.Fs_open(ctx, "shared", true)
	assert.Equal(t, -defs.ENOENT, err)

	// existing handles still work
	assert.Equal(t, "data", fread(t, a, 10))

	a.Close()
	assert.True(t, fs.Fs_exists(ctx, "shared"))
	b.Close()
	assert.False(t, fs.Fs_exists(ctx, "shared"))
	assert.Equal(t, int64(1), fs.Oc.Ndeferred.Get())
}

func TestFailedOpenDropsReference(t *testing.T) {
	fs := mkfs(t)
	ctx := context.Background()
	_, err := fs.Fs_open(ctx, "nope", false)
	assert.Equal(t, -defs.ENOENT, err)
	assert.Equal(t, 0, fs.Oc.Len())
	assert.Equal(t, 0, fs.Oc.Count(fs.Key("nope")))
}

// a create that loses the race with an unlink fails without truncating
func TestCreateRacingUnlink(t *testing.T) {
	fs := mkfs(t)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("f%d", i)
		require.NoError(t, fs.Fs_install(ctx, name, []uint8("keep")))
		h, err := fs.Fs_open(ctx, name, false)
		require.Equal(t, defs.Err_t(0), err)

		var wg sync.WaitGroup
		var c *File_t
		var cerr defs.Err_t
		wg.Add(2)
		go func() {
			defer wg.Done()
			c, cerr = fs.Fs_open(ctx, name, true)
		}()
		go func() {
			defer wg.Done()
			fs.Fs_unlink(ctx, name)
		}()
		wg.Wait()

		if cerr != 0 {
			data, derr := fs._contents(name)
			require.NoError(t, derr)
			assert.Equal(t, "keep", string(data), name)
		} else {
			c.Close()
		}
		h.Close()
		assert.False(t, fs.Fs_exists(ctx, name), name)
	}
	assert.Equal(t, 0, fs.Oc.Len())
}
