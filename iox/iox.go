// Package iox provides I/O helpers for resource cleanup and byte accounting.
package iox

import (
	"errors"
	"io"
	"sync/atomic"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls (e.g. Sync) where errors are unactionable:
//
//	defer iox.DiscardErr(logger.Sync)
func DiscardErr(fn func() error) { _ = fn() }

// MultiReadCloser reads its readers sequentially like io.MultiReader and
// closes every closer on Close, joining their errors.
type MultiReadCloser struct {
	io.Reader
	closers []io.Closer
}

// NewMultiReadCloser concatenates readers. Closers are closed in order.
func NewMultiReadCloser(readers []io.Reader, closers []io.Closer) *MultiReadCloser {
	return &MultiReadCloser{Reader: io.MultiReader(readers...), closers: closers}
}

// Close closes every closer exactly once.
func (m *MultiReadCloser) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}

// CountingReader counts bytes read through it and calls OnRead, when set,
// after every read that returned data.
type CountingReader struct {
	R      io.Reader
	OnRead func(n int)
	n      atomic.Int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	if n > 0 {
		c.n.Add(int64(n))
		if c.OnRead != nil {
			c.OnRead(n)
		}
	}
	return n, err
}

// Count returns the number of bytes read so far.
func (c *CountingReader) Count() int64 { return c.n.Load() }
