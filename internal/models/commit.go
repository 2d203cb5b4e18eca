package models

import "time"

// LogEntry is the commit record synthesized from a source changeset.
// Names and emails are never blank.
type LogEntry struct {
	Date           time.Time `json:"date"`
	Log            string    `json:"log"`
	ChangesetID    int       `json:"changeset_id"`
	AuthorName     string    `json:"author_name"`
	AuthorEmail    string    `json:"author_email"`
	CommitterName  string    `json:"committer_name"`
	CommitterEmail string    `json:"committer_email"`
	RemoteID       string    `json:"remote_id"` // remote the entry was projected for
}

// Identity is what a directory lookup knows about a source user.
type Identity struct {
	DisplayName string `json:"display_name"`
	MailAddress string `json:"mail_address"`
}

// Author is an explicit mapping of a source user to a git identity.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ChangesetRecord links a projected changeset to the commit it produced.
type ChangesetRecord struct {
	ChangesetID int       `json:"changeset_id"`
	CommitHash  string    `json:"commit_hash"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	Message     string    `json:"message"`
	Date        time.Time `json:"date"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// ShortHash returns the first 7 characters of the commit hash.
func (r *ChangesetRecord) ShortHash() string {
	if len(r.CommitHash) > 7 {
		return r.CommitHash[:7]
	}
	return r.CommitHash
}
