package poller

import "strconv"

// Cursor is the id of the last delivered update. The zero value means no
// update has been seen yet.
type Cursor struct {
	value int
	set   bool
}

// CursorAt returns a cursor positioned at updateID.
func CursorAt(updateID int) Cursor {
	return Cursor{value: updateID, set: true}
}

// Value returns the last delivered update id and whether one exists.
func (c Cursor) Value() (int, bool) {
	return c.value, c.set
}

// Advance moves the cursor to updateID unless that would move it backwards.
func (c Cursor) Advance(updateID int) Cursor {
	if c.set && updateID <= c.value {
		return c
	}

	return CursorAt(updateID)
}

// Covers reports whether updateID was already delivered.
func (c Cursor) Covers(updateID int) bool {
	return c.set && updateID <= c.value
}

// Offset is the getUpdates offset that acknowledges everything up to the
// cursor. It is 0 when no cursor is set, which asks for whatever the server has
// buffered.
func (c Cursor) Offset() int {
	if !c.set {
		return 0
	}

	return c.value + 1
}

func (c Cursor) String() string {
	if !c.set {
		return "none"
	}

	return strconv.Itoa(c.value)
}
