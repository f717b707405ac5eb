package consensus

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Klingon-tech/ecashkit/pkg/block"
)

// medianTimeBlocks is the number of headers median time past is taken over.
const medianTimeBlocks = 11

// HeaderSource serves the headers of one branch by height.
type HeaderSource interface {
	// HeaderAt returns the header at height. Unknown heights yield an
	// error wrapping ErrAncestorUnavailable.
	HeaderAt(height uint32) (*block.Header, error)

	// BaseHeight is the lowest height whose header is held. Everything
	// below it is vouched for by a trusted checkpoint.
	BaseHeight() uint32
}

// ChainContext is a read-only view of the ancestors of one candidate header.
// It lives for a single validation call.
type ChainContext struct {
	src       HeaderSource
	candidate *block.Header
}

// NewChainContext scopes src to the ancestry of candidate.
func NewChainContext(src HeaderSource, candidate *block.Header) *ChainContext {
	return &ChainContext{src: src, candidate: candidate}
}

// Candidate returns the header being validated.
func (c *ChainContext) Candidate() *block.Header {
	return c.candidate
}

// BaseHeight returns the source's base height.
func (c *ChainContext) BaseHeight() uint32 {
	return c.src.BaseHeight()
}

// Previous returns the candidate's parent.
func (c *ChainContext) Previous() (*block.Header, error) {
	return c.Ancestor(1)
}

// Ancestor returns the header offset blocks before the candidate.
// Offset 0 is the candidate itself.
func (c *ChainContext) Ancestor(offset uint32) (*block.Header, error) {
	if offset > c.candidate.Height {
		return nil, fmt.Errorf("%w: offset %d from height %d is before genesis",
			ErrAncestorUnavailable, offset, c.candidate.Height)
	}
	return c.AncestorAt(c.candidate.Height - offset)
}

// AncestorAt returns the header at height on the candidate's branch.
func (c *ChainContext) AncestorAt(height uint32) (*block.Header, error) {
	switch {
	case height == c.candidate.Height:
		return c.candidate, nil
	case height > c.candidate.Height:
		return nil, fmt.Errorf("height %d is not an ancestor of %d", height, c.candidate.Height)
	case height < c.src.BaseHeight():
		return nil, &MissingAncestorError{Height: height}
	}

	h, err := c.src.HeaderAt(height)
	if err != nil {
		if errors.Is(err, ErrAncestorUnavailable) {
			return nil, &MissingAncestorError{Height: height}
		}
		return nil, fmt.Errorf("load header %d: %w", height, err)
	}
	if h.Height != height {
		return nil, fmt.Errorf("header source returned height %d for %d", h.Height, height)
	}
	return h, nil
}

// AncestorWhere walks backwards from the parent of from and returns the first
// header satisfying pred.
func (c *ChainContext) AncestorWhere(from *block.Header, pred func(*block.Header) bool) (*block.Header, error) {
	cur := from
	for cur.Height > 0 {
		prev, err := c.AncestorAt(cur.Height - 1)
		if err != nil {
			return nil, err
		}
		if pred(prev) {
			return prev, nil
		}
		cur = prev
	}
	return nil, fmt.Errorf("%w: no ancestor of %d matches", ErrAncestorUnavailable, from.Height)
}

// MedianTimePast returns the median timestamp of h and its ten predecessors.
// Near genesis fewer headers are available and all of them are used.
func (c *ChainContext) MedianTimePast(h *block.Header) (int64, error) {
	times := make([]int64, 0, medianTimeBlocks)
	cur := h
	for {
		times = append(times, cur.Time())
		if len(times) == medianTimeBlocks || cur.Height == 0 {
			break
		}
		prev, err := c.AncestorAt(cur.Height - 1)
		if err != nil {
			return 0, err
		}
		cur = prev
	}
	slices.Sort(times)
	return times[len(times)/2], nil
}
