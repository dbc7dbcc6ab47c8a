package model

import "strconv"

// Each record has its own id type so that ids of different records are never
// mixed without an explicit conversion.
type (
	UserID           int64
	PlatformID       int64
	ProjectID        int64
	ProjectVersionID int64
	TaskID           int64
	AssignmentID     int64
	ResultID         int64
)

func (id UserID) String() string           { return strconv.FormatInt(int64(id), 10) }
func (id PlatformID) String() string       { return strconv.FormatInt(int64(id), 10) }
func (id ProjectID) String() string        { return strconv.FormatInt(int64(id), 10) }
func (id ProjectVersionID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id TaskID) String() string           { return strconv.FormatInt(int64(id), 10) }
func (id AssignmentID) String() string     { return strconv.FormatInt(int64(id), 10) }
func (id ResultID) String() string         { return strconv.FormatInt(int64(id), 10) }

// ParseID parses a decimal id of any record type.
func ParseID[ID ~int64](s string) (ID, error) {
	raw, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(raw), nil
}

// RawIDs converts typed ids to the int64 slice the database driver encodes as int8[].
func RawIDs[ID ~int64](ids []ID) []int64 {
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	return raw
}

// TypedIDs is the inverse of RawIDs.
func TypedIDs[ID ~int64](raw []int64) []ID {
	ids := make([]ID, len(raw))
	for i, r := range raw {
		ids[i] = ID(r)
	}
	return ids
}
