// Package sqljournal persists the blackboard hash chain through
// database/sql. The sqlite and postgres packages open the database and pick
// the dialect; everything else is shared.
package sqljournal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/storage"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	// Question uses ? placeholders (SQLite).
	Question Dialect = iota

	// Dollar uses $1, $2, ... placeholders (PostgreSQL).
	Dollar
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS blackboard_entries (
		seq BIGINT PRIMARY KEY,
		id TEXT NOT NULL,
		prev_hash TEXT NOT NULL,
		stub BOOLEAN NOT NULL DEFAULT FALSE,
		author TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '',
		confidence DOUBLE PRECISION NOT NULL DEFAULT 1,
		metadata TEXT NOT NULL DEFAULT '',
		supersedes TEXT NOT NULL DEFAULT '',
		evidence TEXT NOT NULL DEFAULT '',
		policy_audit TEXT NOT NULL DEFAULT '',
		created_epoch BIGINT NOT NULL DEFAULT 0,
		created_at_ns BIGINT NOT NULL DEFAULT 0,
		ttl_ns BIGINT NOT NULL DEFAULT 0,
		ttl_epochs BIGINT NOT NULL DEFAULT 0,
		tombstoned BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_blackboard_entries_id ON blackboard_entries(id)`,
	`CREATE TABLE IF NOT EXISTS blackboard_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

const (
	metaEpoch   = "epoch"
	metaSealSeq = "seal_seq"
	metaHead    = "head"
	metaAnchor  = "anchor"
)

// Journal implements storage.Journal.
type Journal struct {
	db      *sql.DB
	dialect Dialect
}

var _ storage.Journal = (*Journal)(nil)

// New wraps db and creates the tables if needed. The journal owns db and
// closes it on Close.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Journal, error) {
	j := &Journal{db: db, dialect: dialect}
	if err := j.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate journal schema: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders for the dialect.
func (j *Journal) rebind(query string) string {
	if j.dialect != Dollar {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (j *Journal) exec(ctx context.Context, query string, args ...any) error {
	_, err := j.db.ExecContext(ctx, j.rebind(query), args...)
	return err
}

func (j *Journal) Append(ctx context.Context, e *entry.Entry) error {
	metadata, err := encode(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	supersedes, err := encode(e.Supersedes)
	if err != nil {
		return fmt.Errorf("failed to encode supersedes: %w", err)
	}
	evidence, err := encode(e.Evidence)
	if err != nil {
		return fmt.Errorf("failed to encode evidence: %w", err)
	}
	audit, err := encode(e.PolicyAudit)
	if err != nil {
		return fmt.Errorf("failed to encode policy audit: %w", err)
	}

	err = j.exec(ctx, `INSERT INTO blackboard_entries (
		seq, id, prev_hash, stub, author, kind, tier, payload, confidence,
		metadata, supersedes, evidence, policy_audit,
		created_epoch, created_at_ns, ttl_ns, ttl_epochs, tombstoned
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(e.Seq), e.ID, e.PrevHash, false, e.Author, string(e.Kind), string(e.Tier), e.Payload, e.Confidence,
		metadata, supersedes, evidence, audit,
		int64(e.CreatedEpoch), e.CreatedAt.UnixNano(), int64(e.TTL), int64(e.TTLEpochs), e.Tombstoned,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry %d: %w", e.Seq, err)
	}
	return nil
}

func (j *Journal) Tombstone(ctx context.Context, seq uint64) error {
	return j.exec(ctx, `UPDATE blackboard_entries SET tombstoned = ? WHERE seq = ?`, true, int64(seq))
}

func (j *Journal) Stub(ctx context.Context, seq uint64) error {
	return j.exec(ctx, `UPDATE blackboard_entries
		SET stub = ?, payload = '', metadata = '', supersedes = '', evidence = '', policy_audit = ''
		WHERE seq = ?`, true, int64(seq))
}

func (j *Journal) Remove(ctx context.Context, seq uint64) error {
	return j.exec(ctx, `DELETE FROM blackboard_entries WHERE seq = ?`, int64(seq))
}

func (j *Journal) SaveMeta(ctx context.Context, epoch, sealSeq uint64, head, anchor string) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin meta transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert := j.rebind(`INSERT INTO blackboard_meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`)
	for key, value := range map[string]string{
		metaEpoch:   strconv.FormatUint(epoch, 10),
		metaSealSeq: strconv.FormatUint(sealSeq, 10),
		metaHead:    head,
		metaAnchor:  anchor,
	} {
		if _, err := tx.ExecContext(ctx, upsert, key, value); err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
	}

	return tx.Commit()
}

func (j *Journal) Reset(ctx context.Context) error {
	if err := j.exec(ctx, `DELETE FROM blackboard_entries`); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	if err := j.exec(ctx, `DELETE FROM blackboard_meta`); err != nil {
		return fmt.Errorf("failed to clear meta: %w", err)
	}
	return nil
}

// Load reads every link in seq order plus the saved metadata.
func (j *Journal) Load(ctx context.Context) (*storage.JournalState, error) {
	state := &storage.JournalState{Head: entry.GenesisHash, Anchor: entry.GenesisHash}

	if err := j.loadMeta(ctx, state); err != nil {
		return nil, err
	}

	rows, err := j.db.QueryContext(ctx, `SELECT
		seq, id, prev_hash, stub, author, kind, tier, payload, confidence,
		metadata, supersedes, evidence, policy_audit,
		created_epoch, created_at_ns, ttl_ns, ttl_epochs, tombstoned
		FROM blackboard_entries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                                      entry.Entry
			seq, createdEpoch, createdAt, ttl, ttlE int64
			stub                                   bool
			kind, tier                             string
			metadata, supersedes, evidence, audit  string
		)
		if err := rows.Scan(
			&seq, &e.ID, &e.PrevHash, &stub, &e.Author, &kind, &tier, &e.Payload, &e.Confidence,
			&metadata, &supersedes, &evidence, &audit,
			&createdEpoch, &createdAt, &ttl, &ttlE, &e.Tombstoned,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		if stub {
			state.Stubs = append(state.Stubs, storage.Stub{Seq: uint64(seq), ID: e.ID, PrevHash: e.PrevHash})
			continue
		}

		e.Seq = uint64(seq)
		e.Kind = entry.Kind(kind)
		e.Tier = entry.Tier(tier)
		e.CreatedEpoch = uint64(createdEpoch)
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		e.TTL = time.Duration(ttl)
		e.TTLEpochs = uint64(ttlE)

		if err := errors.Join(
			decode(metadata, &e.Metadata),
			decode(supersedes, &e.Supersedes),
			decode(evidence, &e.Evidence),
			decode(audit, &e.PolicyAudit),
		); err != nil {
			return nil, fmt.Errorf("failed to decode entry %d: %w", seq, err)
		}

		state.Entries = append(state.Entries, &e)
	}

	return state, rows.Err()
}

func (j *Journal) loadMeta(ctx context.Context, state *storage.JournalState) error {
	rows, err := j.db.QueryContext(ctx, `SELECT key, value FROM blackboard_meta`)
	if err != nil {
		return fmt.Errorf("failed to query meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("failed to scan meta: %w", err)
		}

		switch key {
		case metaEpoch:
			epoch, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid stored epoch %q: %w", value, err)
			}
			state.Epoch = epoch
		case metaSealSeq:
			seq, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid stored seal seq %q: %w", value, err)
			}
			state.SealSeq = seq
		case metaHead:
			state.Head = value
		case metaAnchor:
			state.Anchor = value
		}
	}

	return rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// encode stores nil and empty values as the empty string.
func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	switch s := string(data); s {
	case "null", "{}", "[]":
		return "", nil
	default:
		return s, nil
	}
}

func decode(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
