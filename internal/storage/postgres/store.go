package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paraScope/internal/model"
)

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS chains (
	url        TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	endpoint   TEXT NOT NULL,
	para_id    BIGINT,
	epoch      BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS blocks (
	url              TEXT PRIMARY KEY,
	chain_url        TEXT NOT NULL,
	number           BIGINT NOT NULL,
	hash             BYTEA NOT NULL,
	ts               BIGINT,
	parent_ts        BIGINT,
	epoch            BIGINT NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS extrinsics (
	url       TEXT PRIMARY KEY,
	block_url TEXT NOT NULL,
	pallet    TEXT NOT NULL,
	variant   TEXT NOT NULL,
	args      JSONB NOT NULL,
	raw       BYTEA NOT NULL,
	hash      BYTEA NOT NULL,
	signed    BOOLEAN NOT NULL,
	failed    BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	url              TEXT PRIMARY KEY,
	block_url        TEXT NOT NULL,
	pallet           TEXT NOT NULL,
	variant          TEXT NOT NULL,
	fields           JSONB NOT NULL,
	phase            TEXT NOT NULL,
	parent_extrinsic BIGINT,
	success          TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS links (
	key  TEXT NOT NULL,
	side TEXT NOT NULL,
	url  TEXT NOT NULL,
	kind TEXT NOT NULL,
	PRIMARY KEY (key, side, url)
);
CREATE TABLE IF NOT EXISTS decode_errors (
	url   TEXT NOT NULL,
	kind  TEXT NOT NULL,
	error TEXT NOT NULL,
	raw   BYTEA,
	PRIMARY KEY (url, kind)
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name               TEXT PRIMARY KEY,
	last_emitted_block BIGINT NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for decoded records.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// PutRecords upserts chains and blocks together with their extrinsics,
// events, links and decode errors in one batch.
func (s *Store) PutRecords(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		var err error
		switch {
		case rec.Chain != nil:
			queueChain(batch, rec.Epoch, rec.Chain)
		case rec.Block != nil:
			err = queueBlock(batch, rec.Epoch, rec.Block)
		}
		if err != nil {
			return err
		}
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return nil
}

func queueChain(batch *pgx.Batch, epoch uint64, c *model.ChainInfo) {
	batch.Queue(`
		INSERT INTO chains (url, name, endpoint, para_id, epoch, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (url)
		DO UPDATE SET
			name = EXCLUDED.name,
			endpoint = EXCLUDED.endpoint,
			para_id = EXCLUDED.para_id,
			epoch = EXCLUDED.epoch,
			updated_at = now()
	`,
		c.URL.String(),
		c.Name,
		c.Endpoint,
		optional(c.ParaID),
		int64(epoch),
	)
}

func queueBlock(batch *pgx.Batch, epoch uint64, b *model.Block) error {
	url := b.URL.String()
	var number int64
	if b.URL.Block != nil {
		number = int64(*b.URL.Block)
	}
	batch.Queue(`
		INSERT INTO blocks (url, chain_url, number, hash, ts, parent_ts, epoch, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (url)
		DO UPDATE SET
			hash = EXCLUDED.hash,
			ts = EXCLUDED.ts,
			parent_ts = COALESCE(EXCLUDED.parent_ts, blocks.parent_ts),
			epoch = EXCLUDED.epoch,
			updated_at = now()
	`,
		url,
		b.URL.Chain().String(),
		number,
		b.Hash.Bytes(),
		optional(b.Timestamp),
		optional(b.ParentTimestamp),
		int64(epoch),
	)

	for _, x := range b.Extrinsics {
		args, err := json.Marshal(x.Args)
		if err != nil {
			return fmt.Errorf("marshal args of %s: %w", x.URL, err)
		}
		batch.Queue(`
			INSERT INTO extrinsics (url, block_url, pallet, variant, args, raw, hash, signed, failed)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (url)
			DO UPDATE SET
				pallet = EXCLUDED.pallet,
				variant = EXCLUDED.variant,
				args = EXCLUDED.args,
				raw = EXCLUDED.raw,
				hash = EXCLUDED.hash,
				signed = EXCLUDED.signed,
				failed = EXCLUDED.failed
		`,
			x.URL.String(),
			url,
			x.Pallet,
			x.Variant,
			args,
			[]byte(x.Raw),
			x.Details.Hash.Bytes(),
			x.Details.Signed,
			x.Details.Failed,
		)
		queueLinks(batch, x.URL, x.StartLinks, x.EndLinks)
	}

	for _, ev := range b.Events {
		fields, err := json.Marshal(ev.Fields)
		if err != nil {
			return fmt.Errorf("marshal fields of %s: %w", ev.URL, err)
		}
		batch.Queue(`
			INSERT INTO events (url, block_url, pallet, variant, fields, phase, parent_extrinsic, success)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (url)
			DO UPDATE SET
				pallet = EXCLUDED.pallet,
				variant = EXCLUDED.variant,
				fields = EXCLUDED.fields,
				phase = EXCLUDED.phase,
				parent_extrinsic = EXCLUDED.parent_extrinsic,
				success = EXCLUDED.success
		`,
			ev.URL.String(),
			url,
			ev.Pallet,
			ev.Variant,
			fields,
			ev.Details.Phase,
			optional(ev.ParentExtrinsic),
			ev.Success.String(),
		)
		queueLinks(batch, ev.URL, ev.StartLinks, ev.EndLinks)
	}

	for _, e := range b.Errors {
		batch.Queue(`
			INSERT INTO decode_errors (url, kind, error, raw)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (url, kind)
			DO UPDATE SET error = EXCLUDED.error, raw = EXCLUDED.raw
		`,
			e.URL.String(),
			e.Kind,
			e.Error,
			[]byte(e.Raw),
		)
	}
	return nil
}

func queueLinks(batch *pgx.Batch, url model.DotUrl, start, end []model.Link) {
	for _, side := range []struct {
		name  string
		links []model.Link
	}{{"start", start}, {"end", end}} {
		for _, l := range side.links {
			batch.Queue(`
				INSERT INTO links (key, side, url, kind)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (key, side, url) DO UPDATE SET kind = EXCLUDED.kind
			`, l.Key, side.name, url.String(), l.Kind.String())
		}
	}
}

func optional[T uint32 | uint64](v *T) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

// Load returns the last emitted block for a chain.
func (s *Store) Load(ctx context.Context, chain string) (uint32, bool, error) {
	if chain == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var n int64
	row := s.pool.QueryRow(ctx, `SELECT last_emitted_block FROM indexer_state WHERE name=$1`, chain)
	if err := row.Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint32(n), true, nil
}

// Save upserts the last emitted block for a chain.
func (s *Store) Save(ctx context.Context, chain string, number uint32) error {
	if chain == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_emitted_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_emitted_block = EXCLUDED.last_emitted_block, updated_at = now()
	`, chain, int64(number))
	return err
}
