package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kilupskalvis/tfsgit/internal/models"
	bolt "go.etcd.io/bbolt"
)

// Tip is the newest projected commit of a remote.
type Tip struct {
	RemoteID    string    `json:"remote_id"`
	ChangesetID int       `json:"changeset_id"`
	CommitHash  string    `json:"commit_hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ErrInvalidRemoteID is returned for remote ids that would collide in the
// changeset key space.
var ErrInvalidRemoteID = errors.New("remote id must be non-empty and must not contain ':'")

func checkRemoteID(remoteID string) error {
	if remoteID == "" || strings.Contains(remoteID, ":") {
		return fmt.Errorf("%q: %w", remoteID, ErrInvalidRemoteID)
	}
	return nil
}

// changesetKey sorts numerically within a remote.
func changesetKey(remoteID string, changesetID int) []byte {
	return []byte(fmt.Sprintf("%s:%010d", remoteID, changesetID))
}

// RecordChangeset stores the commit a changeset was projected to and moves
// the remote's tip to it.
func (s *Store) RecordChangeset(remoteID string, rec *models.ChangesetRecord) error {
	if err := checkRemoteID(remoteID); err != nil {
		return err
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketChangesets)
		if bucket == nil {
			return fmt.Errorf("changesets bucket not found")
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal changeset record: %w", err)
		}
		if err := bucket.Put(changesetKey(remoteID, rec.ChangesetID), data); err != nil {
			return err
		}
		return putTip(tx, &Tip{
			RemoteID:    remoteID,
			ChangesetID: rec.ChangesetID,
			CommitHash:  rec.CommitHash,
			UpdatedAt:   rec.RecordedAt,
		})
	})
}

// GetChangeset returns the record of a changeset on a remote. Returns
// (nil, nil) if not found.
func (s *Store) GetChangeset(remoteID string, changesetID int) (*models.ChangesetRecord, error) {
	var rec *models.ChangesetRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketChangesets)
		if bucket == nil {
			return nil
		}
		data := bucket.Get(changesetKey(remoteID, changesetID))
		if data == nil {
			return nil
		}
		rec = &models.ChangesetRecord{}
		return json.Unmarshal(data, rec)
	})
	return rec, err
}

// FindChangeset looks a changeset up on any remote. Returns ("", nil, nil)
// if no remote projected it.
func (s *Store) FindChangeset(changesetID int) (string, *models.ChangesetRecord, error) {
	var remoteID string
	var rec *models.ChangesetRecord
	suffix := []byte(fmt.Sprintf(":%010d", changesetID))

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketChangesets)
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !bytes.HasSuffix(k, suffix) {
				continue
			}
			rec = &models.ChangesetRecord{}
			if err := json.Unmarshal(v, rec); err != nil {
				return fmt.Errorf("unmarshal changeset record: %w", err)
			}
			remoteID = string(k[:len(k)-len(suffix)])
			return nil
		}
		return nil
	})
	return remoteID, rec, err
}

// ListChangesets returns the records of a remote, newest first. A limit of
// zero or less returns all of them.
func (s *Store) ListChangesets(remoteID string, limit int) ([]*models.ChangesetRecord, error) {
	var records []*models.ChangesetRecord
	prefix := []byte(remoteID + ":")

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketChangesets)
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()

		// position on the last key of the prefix, then walk backwards
		k, v := c.Seek(append(append([]byte(nil), prefix...), 0xff))
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Prev() {
			var rec models.ChangesetRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal changeset record: %w", err)
			}
			records = append(records, &rec)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	})
	return records, err
}

// GetTip returns the tip of a remote. Returns (nil, nil) if the remote has
// nothing projected yet.
func (s *Store) GetTip(remoteID string) (*Tip, error) {
	var tip *Tip
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTips)
		if bucket == nil {
			return nil
		}
		data := bucket.Get([]byte(remoteID))
		if data == nil {
			return nil
		}
		tip = &Tip{}
		return json.Unmarshal(data, tip)
	})
	return tip, err
}

// SetTip moves the tip of a remote.
func (s *Store) SetTip(tip *Tip) error {
	if err := checkRemoteID(tip.RemoteID); err != nil {
		return err
	}
	if tip.UpdatedAt.IsZero() {
		tip.UpdatedAt = time.Now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putTip(tx, tip)
	})
}

// ListTips returns the tips of all remotes sorted by remote id.
func (s *Store) ListTips() ([]*Tip, error) {
	var tips []*Tip
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTips)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var t Tip
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("unmarshal tip: %w", err)
			}
			tips = append(tips, &t)
			return nil
		})
	})
	return tips, err
}

func putTip(tx *bolt.Tx, tip *Tip) error {
	bucket := tx.Bucket(bucketTips)
	if bucket == nil {
		return fmt.Errorf("tips bucket not found")
	}
	data, err := json.Marshal(tip)
	if err != nil {
		return fmt.Errorf("marshal tip: %w", err)
	}
	return bucket.Put([]byte(tip.RemoteID), data)
}
