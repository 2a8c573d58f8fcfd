package peer

import (
    "io"
    "sync"
)

// Peer is one concrete duplex connection. R and W are owned by the holder of
// the Peer. Closing W shuts down the write direction only; the connection is
// released once both halves are closed.
type Peer struct {
    R io.ReadCloser
    W io.WriteCloser
}

func New(r io.ReadCloser, w io.WriteCloser) *Peer { return &Peer{R: r, W: w} }

// Close closes both halves and returns the first error.
func (p *Peer) Close() error {
    if p == nil { return nil }
    var err error
    if p.W != nil { err = p.W.Close() }
    if p.R != nil {
        if rerr := p.R.Close(); err == nil { err = rerr }
    }
    return err
}

// NopReadCloser is a reader whose Close does nothing.
func NopReadCloser(r io.Reader) io.ReadCloser { return io.NopCloser(r) }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NopWriteCloser is a writer whose Close does nothing.
func NopWriteCloser(w io.Writer) io.WriteCloser { return nopWriteCloser{w} }

// EOF returns a reader that is already at end of data.
func EOF() io.ReadCloser { return io.NopCloser(eofReader{}) }

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// Discard returns a writer that accepts and drops everything.
func Discard() io.WriteCloser { return nopWriteCloser{io.Discard} }

// Halves tracks the two halves of one underlying resource and calls release
// once both are closed. shutR/shutW, when set, are called on the respective
// half close before release.
type Halves struct {
    mu      sync.Mutex
    rClosed bool
    wClosed bool
    shutR   func() error
    shutW   func() error
    release func() error
}

func NewHalves(shutR, shutW, release func() error) *Halves {
    return &Halves{shutR: shutR, shutW: shutW, release: release}
}

func (h *Halves) CloseRead() error { return h.close(true) }
func (h *Halves) CloseWrite() error { return h.close(false) }

func (h *Halves) close(read bool) error {
    h.mu.Lock()
    if (read && h.rClosed) || (!read && h.wClosed) { h.mu.Unlock(); return nil }
    if read { h.rClosed = true } else { h.wClosed = true }
    both := h.rClosed && h.wClosed
    h.mu.Unlock()

    var err error
    if read && h.shutR != nil { err = h.shutR() }
    if !read && h.shutW != nil { err = h.shutW() }
    if both && h.release != nil {
        if rerr := h.release(); err == nil { err = rerr }
    }
    return err
}

type readHalf struct {
    io.Reader
    h *Halves
}

func (r readHalf) Close() error { return r.h.CloseRead() }

type writeHalf struct {
    io.Writer
    h *Halves
}

func (w writeHalf) Close() error { return w.h.CloseWrite() }

// Split builds a Peer over one read/write resource whose halves close
// independently through h.
func Split(r io.Reader, w io.Writer, h *Halves) *Peer {
    return &Peer{R: readHalf{Reader: r, h: h}, W: writeHalf{Writer: w, h: h}}
}
