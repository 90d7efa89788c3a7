// Package coff parses the MIPS COFF executables run by user processes.
package coff

import "errors"
import "fmt"

import "github.com/canliroc/CS371/mem"
import "github.com/canliroc/CS371/util"

const (
	MAGIC = 0x0162
	// file header, a.out optional header, per-section header
	FILHSZ = 20
	AOUTSZ = 28
	SCNHSZ = 40
	// file header flags required of an executable
	F_EXEC = 0x0003
	MAXSCN = 10
)

// section types
const (
	STYP_TEXT  = 0x0020
	STYP_DATA  = 0x0040
	STYP_BSS   = 0x0080
	STYP_RDATA = 0x0100
)

var ErrBadMagic = errors.New("coff: bad magic")
var ErrTruncated = errors.New("coff: truncated image")
var ErrBadHeader = errors.New("coff: bad header")
var ErrBadSection = errors.New("coff: bad section")

type Section_t struct {
	Name  string
	Vaddr int
	Size  int
	Off   int
	Flags int
	// first virtual page and number of pages covered
	Firstvpn int
	Npages   int
	Readonly bool
	// bss has no contents in the image
	Initialized bool
	img         []uint8
}

// copies page spn of the section into dst, zero-filling whatever the section
// does not cover.
func (s *Section_t) Loadpage(spn int, dst []uint8) {
	if spn < 0 || spn >= s.Npages {
		panic("bad section page")
	}
	if len(dst) != mem.PGSIZE {
		panic("bad frame")
	}
	var c int
	if s.Initialized {
		start := spn * mem.PGSIZE
		end := util.Min(s.Size, start+mem.PGSIZE)
		c = copy(dst, s.img[s.Off+start:s.Off+end])
	}
	for i := c; i < len(dst); i++ {
		dst[i] = 0
	}
}

// an executable image
type Coff_t struct {
	Entry    int
	Sections []*Section_t
}

func (c *Coff_t) Nsections() int {
	return len(c.Sections)
}

func (c *Coff_t) Section(i int) *Section_t {
	return c.Sections[i]
}

func (c *Coff_t) Entrypoint() int {
	return c.Entry
}

// parses an executable. the returned image references img.
func Parse(img []uint8) (*Coff_t, error) {
	if len(img) < FILHSZ+AOUTSZ {
		return nil, ErrTruncated
	}
	if util.Readn(img, 2, 0) != MAGIC {
		return nil, ErrBadMagic
	}
	nscn := util.Readn(img, 2, 2)
	optsz := util.Readn(img, 2, 16)
	flags := util.Readn(img, 2, 18)
	if optsz != AOUTSZ || flags&F_EXEC != F_EXEC || nscn < 1 || nscn > MAXSCN {
		return nil, fmt.Errorf("%w: %d sections, optional header %d, flags %#x",
			ErrBadHeader, nscn, optsz, flags)
	}
	ret := &Coff_t{Entry: util.Readn(img, 4, FILHSZ+16)}
	shoff := FILHSZ + AOUTSZ
	if len(img) < shoff+nscn*SCNHSZ {
		return nil, ErrTruncated
	}
	for i := 0; i < nscn; i++ {
		s, err := section(img, shoff+i*SCNHSZ)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		ret.Sections = append(ret.Sections, s)
	}
	return ret, nil
}

func section(img []uint8, off int) (*Section_t, error) {
	h := img[off : off+SCNHSZ]
	nb := 0
	for nb < 8 && h[nb] != 0 {
		nb++
	}
	s := &Section_t{
		Name:  string(h[:nb]),
		Vaddr: util.Readn(h, 4, 12),
		Size:  util.Readn(h, 4, 16),
		Off:   util.Readn(h, 4, 20),
		Flags: util.Readn(h, 4, 36),
		img:   img,
	}
	nrel := util.Readn(h, 2, 32)
	if s.Vaddr < 0 || s.Vaddr%mem.PGSIZE != 0 || s.Size < 0 || nrel != 0 {
		return nil, fmt.Errorf("%w: %s vaddr %#x size %d", ErrBadSection,
			s.Name, s.Vaddr, s.Size)
	}
	switch s.Flags & 0x0fff {
	case STYP_TEXT, STYP_RDATA:
		s.Readonly = true
		s.Initialized = true
	case STYP_DATA:
		s.Initialized = true
	case STYP_BSS:
	default:
		return nil, fmt.Errorf("%w: %s flags %#x", ErrBadSection, s.Name,
			s.Flags)
	}
	if s.Initialized && (s.Off < 0 || s.Off+s.Size > len(img)) {
		return nil, ErrTruncated
	}
	s.Firstvpn = s.Vaddr / mem.PGSIZE
	s.Npages = util.Roundup(s.Size, mem.PGSIZE) / mem.PGSIZE
	return s, nil
}

// a section to be laid out by Build
type Secspec_t struct {
	Name  string
	Vaddr int
	Flags int
	Data  []uint8
	// size of a bss section
	Size int
}

// assembles an executable image. used to install user programs that were
// not produced by a MIPS toolchain.
func Build(entry int, secs []Secspec_t) []uint8 {
	hdrsz := FILHSZ + AOUTSZ + len(secs)*SCNHSZ
	img := make([]uint8, hdrsz)
	util.Writen(img, 2, 0, MAGIC)
	util.Writen(img, 2, 2, len(secs))
	util.Writen(img, 2, 16, AOUTSZ)
	util.Writen(img, 2, 18, F_EXEC)
	util.Writen(img, 2, FILHSZ, 0x0107)
	util.Writen(img, 4, FILHSZ+16, entry)
	for i, sec := range secs {
		h := img[FILHSZ+AOUTSZ+i*SCNHSZ:]
		copy(h[:8], sec.Name)
		sz := sec.Size
		var off int
		if sec.Flags&0x0fff != STYP_BSS {
			sz = len(sec.Data)
			off = len(img)
			img = append(img, sec.Data...)
			h = img[FILHSZ+AOUTSZ+i*SCNHSZ:]
		}
		util.Writen(h, 4, 8, sec.Vaddr)
		util.Writen(h, 4, 12, sec.Vaddr)
		util.Writen(h, 4, 16, sz)
		util.Writen(h, 4, 20, off)
		util.Writen(h, 4, 36, sec.Flags)
	}
	return img
}
