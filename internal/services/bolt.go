package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/levelup-hq/levelup/internal/models"
)

// BoltDB implements chat persistence using a BoltDB backend. Sessions are kept
// in one bucket per user, and every session owns a dedicated message bucket, so
// deleting a session drops its whole history in a single transaction.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB creates a new BoltDB instance with the specified file path. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}
	return BoltDB{db: db}, nil
}

// Close releases the underlying database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

const (
	sessionBucketPrefix = "sessions-"
	messageBucketPrefix = "messages-"
)

func sessionBucketName(userID string) []byte {
	return []byte(sessionBucketPrefix + userID)
}

func messageBucketName(sessionID string) []byte {
	return []byte(messageBucketPrefix + sessionID)
}

// Sessions retrieves all stored sessions for a user in reverse insertion order,
// so the newest session comes first.
func (b BoltDB) Sessions(_ context.Context, userID string) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(sessionBucketName(userID))
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(_, v []byte) error {
			var session models.ChatSession
			if err := json.Unmarshal(v, &session); err != nil {
				return fmt.Errorf("failed to unmarshal session: %w", err)
			}
			sessions = append(sessions, session)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(sessions)
	return sessions, nil
}

// AddSession stores a new session and creates its message bucket. The final ID
// combines a bucket sequence number with the client-supplied ID, and is
// returned so callers can correlate the stored session without guessing.
func (b BoltDB) AddSession(_ context.Context, userID string, session models.ChatSession) (string, error) {
	var newID string
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(sessionBucketName(userID))
		if err != nil {
			return fmt.Errorf("failed to create session bucket: %w", err)
		}

		seq, err := bkt.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		newID = fmt.Sprintf("%d-%s", seq, session.ID)
		session.ID = newID

		if _, err := tx.CreateBucketIfNotExists(messageBucketName(newID)); err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		v, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		return bkt.Put([]byte(newID), v)
	})

	return newID, err
}

// RenameSession updates the display name of an existing session. Renaming a
// session that doesn't exist is silently ignored.
func (b BoltDB) RenameSession(_ context.Context, userID, sessionID, name string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(sessionBucketName(userID))
		if bkt == nil {
			return nil
		}

		v := bkt.Get([]byte(sessionID))
		if v == nil {
			return nil
		}

		var session models.ChatSession
		if err := json.Unmarshal(v, &session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		session.Name = name

		v, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		return bkt.Put([]byte(sessionID), v)
	})
}

// UpdateSummary replaces the stored summary of an existing session.
func (b BoltDB) UpdateSummary(_ context.Context, userID, sessionID, summary string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(sessionBucketName(userID))
		if bkt == nil {
			return nil
		}

		v := bkt.Get([]byte(sessionID))
		if v == nil {
			return nil
		}

		var session models.ChatSession
		if err := json.Unmarshal(v, &session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		session.Summary = summary

		v, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		return bkt.Put([]byte(sessionID), v)
	})
}

// DeleteSession removes a session record together with its message bucket.
func (b BoltDB) DeleteSession(_ context.Context, userID, sessionID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(sessionBucketName(userID))
		if bkt == nil {
			return nil
		}

		if err := bkt.Delete([]byte(sessionID)); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}

		if err := tx.DeleteBucket(messageBucketName(sessionID)); err != nil &&
			!errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("failed to delete message bucket: %w", err)
		}

		return nil
	})
}

// Messages retrieves all messages for a session in insertion order.
func (b BoltDB) Messages(_ context.Context, sessionID string) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(messageBucketName(sessionID))
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(_, v []byte) error {
			var message models.Message
			if err := json.Unmarshal(v, &message); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, message)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// AddMessage appends a message to the session's bucket. Message keys are
// zero-padded sequence numbers so byte order equals insertion order. Appending
// to an unknown session is silently ignored.
func (b BoltDB) AddMessage(_ context.Context, sessionID string, message models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(messageBucketName(sessionID))
		if bkt == nil {
			return nil
		}

		seq, err := bkt.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return bkt.Put([]byte(fmt.Sprintf("%010d", seq)), v)
	})
}

// RepairStats reports what a Repair pass found (and, unless it ran dry,
// fixed).
type RepairStats struct {
	OrphanedBucketsRemoved int
	SessionsRenamed        int
}

// Repair scans the database for message buckets whose session record is gone
// and for sessions with an empty name. Orphaned buckets are dropped and
// unnamed sessions get the default name. With dryRun set, the database is left
// untouched and only the stats are reported.
func (b BoltDB) Repair(dryRun bool) (RepairStats, error) {
	var stats RepairStats
	err := b.db.Update(func(tx *bolt.Tx) error {
		knownSessions := make(map[string]struct{})
		var messageBuckets []string
		type unnamed struct {
			bucket []byte
			key    string
		}
		var unnamedSessions []unnamed

		err := tx.ForEach(func(name []byte, bkt *bolt.Bucket) error {
			switch {
			case strings.HasPrefix(string(name), sessionBucketPrefix):
				bucketName := append([]byte(nil), name...)
				return bkt.ForEach(func(k, v []byte) error {
					knownSessions[string(k)] = struct{}{}

					var session models.ChatSession
					if err := json.Unmarshal(v, &session); err != nil {
						return fmt.Errorf("failed to unmarshal session %s: %w", string(k), err)
					}
					if session.Name == "" {
						unnamedSessions = append(unnamedSessions, unnamed{bucket: bucketName, key: string(k)})
					}
					return nil
				})
			case strings.HasPrefix(string(name), messageBucketPrefix):
				messageBuckets = append(messageBuckets, string(name))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, name := range messageBuckets {
			sessionID := strings.TrimPrefix(name, messageBucketPrefix)
			if _, ok := knownSessions[sessionID]; ok {
				continue
			}
			stats.OrphanedBucketsRemoved++
			if dryRun {
				continue
			}
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return fmt.Errorf("failed to delete orphaned bucket %s: %w", name, err)
			}
		}

		for _, u := range unnamedSessions {
			stats.SessionsRenamed++
			if dryRun {
				continue
			}
			bkt := tx.Bucket(u.bucket)
			v := bkt.Get([]byte(u.key))

			var session models.ChatSession
			if err := json.Unmarshal(v, &session); err != nil {
				return fmt.Errorf("failed to unmarshal session %s: %w", u.key, err)
			}
			session.Name = models.DefaultSessionName

			nv, err := json.Marshal(session)
			if err != nil {
				return fmt.Errorf("failed to marshal session: %w", err)
			}
			if err := bkt.Put([]byte(u.key), nv); err != nil {
				return fmt.Errorf("failed to rename session %s: %w", u.key, err)
			}
		}

		return nil
	})

	return stats, err
}
