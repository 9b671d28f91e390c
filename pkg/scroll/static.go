package scroll

import (
	"context"
	"strings"
	"unicode"
)

// Static is the scroll strategy for bulk actions on known documents: the
// query is the list of ids itself, separated by commas or whitespace.
type Static struct{}

// Open implements Service.
func (Static) Open(_ context.Context, req Request) (Cursor, error) {
	ids := strings.FieldsFunc(req.Query, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(ids) == 0 {
		return nil, &Error{Op: "Open", Err: ErrInvalidQuery, Msg: "no document ids"}
	}
	size := req.Size
	if size <= 0 {
		size = len(ids)
	}
	return &sliceCursor{ids: ids, size: size}, nil
}

type sliceCursor struct {
	ids    []string
	pos    int
	size   int
	closed bool
}

func (c *sliceCursor) HasNext() bool {
	return !c.closed && c.pos < len(c.ids)
}

func (c *sliceCursor) Next(context.Context) ([]string, error) {
	if c.closed {
		return nil, &Error{Op: "Next", Err: ErrCursorClosed}
	}
	end := min(c.pos+c.size, len(c.ids))
	batch := c.ids[c.pos:end]
	c.pos = end
	return batch, nil
}

func (c *sliceCursor) Close() error {
	c.closed = true
	return nil
}
