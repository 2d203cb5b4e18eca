// Package models defines the core data structures shared by the bridge:
// source changesets and their changes, target tree entries, and the commit
// metadata synthesized from a changeset.
package models

import (
	"strings"
	"time"
)

// ChangeType is a set of source change flags. Flags combine, e.g. a merged
// edit carries both ChangeMerge and ChangeEdit.
type ChangeType uint32

const (
	ChangeNone     ChangeType = 0
	ChangeAdd      ChangeType = 1 << 0
	ChangeEdit     ChangeType = 1 << 1
	ChangeEncoding ChangeType = 1 << 2
	ChangeRename   ChangeType = 1 << 3
	ChangeDelete   ChangeType = 1 << 4
	ChangeUndelete ChangeType = 1 << 5
	ChangeBranch   ChangeType = 1 << 6
	ChangeMerge    ChangeType = 1 << 7
	ChangeLock     ChangeType = 1 << 8
)

var changeTypeNames = []struct {
	flag ChangeType
	name string
}{
	{ChangeAdd, "add"},
	{ChangeEdit, "edit"},
	{ChangeEncoding, "encoding"},
	{ChangeRename, "rename"},
	{ChangeDelete, "delete"},
	{ChangeUndelete, "undelete"},
	{ChangeBranch, "branch"},
	{ChangeMerge, "merge"},
	{ChangeLock, "lock"},
}

// IncludesOneOf reports whether any of the given flags is set.
func (c ChangeType) IncludesOneOf(flags ...ChangeType) bool {
	for _, f := range flags {
		if c&f != 0 {
			return true
		}
	}
	return false
}

// String renders the flags as "edit, merge".
func (c ChangeType) String() string {
	if c == ChangeNone {
		return "none"
	}
	var parts []string
	for _, n := range changeTypeNames {
		if c&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ", ")
}

// ItemType distinguishes files from folders on the source side.
type ItemType int

const (
	ItemAny ItemType = iota
	ItemFile
	ItemFolder
)

// Recursion controls how deep an item listing goes.
type Recursion int

const (
	RecursionNone Recursion = iota
	RecursionOneLevel
	RecursionFull
)

// Item is a versioned source item referenced by a change or returned from a listing.
type Item struct {
	ServerItem  string   `json:"server_item"`
	ChangesetID int      `json:"changeset_id"`
	DeletionID  int      `json:"deletion_id,omitempty"` // non-zero when the item is a deletion marker
	ItemType    ItemType `json:"item_type"`
	ContentLen  int64    `json:"content_length,omitempty"`
}

// IsDeleted returns true if the item carries a deletion marker.
func (i *Item) IsDeleted() bool {
	return i.DeletionID != 0
}

// RawChange is one line item of a changeset.
type RawChange struct {
	ChangeType ChangeType `json:"change_type"`
	Item       Item       `json:"item"`
	// PreviousServerPath is the path the item had before a rename, when the
	// source reports it.
	PreviousServerPath string `json:"previous_server_path,omitempty"`
}

// ServerPath returns the path of the changed item.
func (c RawChange) ServerPath() string {
	return c.Item.ServerItem
}

// Changeset is an atomic, numbered set of changes in the source system.
type Changeset struct {
	ID           int         `json:"id"`
	CreationDate time.Time   `json:"creation_date"`
	Comment      string      `json:"comment"`
	Committer    string      `json:"committer"`
	Changes      []RawChange `json:"changes"`
}

// BaseChangesetID returns the changeset the projection assumes as the
// immediate predecessor state: the highest item version minus one.
func (c *Changeset) BaseChangesetID() int {
	maxID := 0
	for _, ch := range c.Changes {
		if ch.Item.ChangesetID > maxID {
			maxID = ch.Item.ChangesetID
		}
	}
	return maxID - 1
}
