package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Ampplex/InfluencerFlow-sub001/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the contracts table and its listing indexes
const Schema = `
CREATE TABLE IF NOT EXISTS contracts (
	id            TEXT PRIMARY KEY,
	template_id   TEXT NOT NULL,
	influencer_id TEXT NOT NULL,
	brand_id      TEXT NOT NULL,
	status        TEXT NOT NULL CHECK (status IN ('DRAFT','PENDING_SIGNATURE','SIGNED','REJECTED')),
	contract_data JSONB NOT NULL,
	signed_by     TEXT,
	signed_at     TIMESTAMPTZ,
	signature_url TEXT,
	contract_url  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS contracts_brand_created_idx ON contracts (brand_id, created_at DESC);
CREATE INDEX IF NOT EXISTS contracts_influencer_created_idx ON contracts (influencer_id, created_at DESC);
`

const contractColumns = `id,template_id,influencer_id,brand_id,status,contract_data,signed_by,signed_at,signature_url,contract_url,created_at,updated_at`

// PostgresStore is the ContractRepository backed by a pgx pool
type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore { return &PostgresStore{DB: db} }

// Connect opens a pool for dsn and verifies it with a ping
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}

// Migrate applies Schema. It is safe to run repeatedly.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, c *model.Contract) error {
	data, err := json.Marshal(c.ContractData)
	if err != nil {
		return fmt.Errorf("failed to encode contract data: %w", err)
	}

	_, err = s.DB.Exec(ctx, `
INSERT INTO contracts(`+contractColumns+`)
VALUES($1,$2,$3,$4,$5,$6::jsonb,$7,$8,$9,$10,$11,$12)
`, c.ID, c.TemplateID, c.InfluencerID, c.BrandID, string(c.Status), string(data),
		c.SignedBy, c.SignedAt, c.SignatureURL, c.ContractURL, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrContractExists
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Contract, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id=$1`, id)
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContractNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) ListByParty(ctx context.Context, role model.Role, partyID string) ([]*model.Contract, error) {
	column := "influencer_id"
	if role == model.RoleBrand {
		column = "brand_id"
	}

	rows, err := s.DB.Query(ctx, `
SELECT `+contractColumns+`
FROM contracts
WHERE `+column+`=$1
ORDER BY created_at DESC, id DESC
`, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*model.Contract, 0)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *PostgresStore) SetContractURL(ctx context.Context, id, url string, updatedAt time.Time) error {
	tag, err := s.DB.Exec(ctx, `UPDATE contracts SET contract_url=$2, updated_at=$3 WHERE id=$1`, id, url, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContractNotFound
	}
	return nil
}

// MarkSigned performs the status transition as a single conditional update,
// so two concurrent signers cannot both succeed.
func (s *PostgresStore) MarkSigned(ctx context.Context, id string, signing model.Signing) (*model.Contract, error) {
	row := s.DB.QueryRow(ctx, `
UPDATE contracts
SET status=$2, signed_by=$3, signed_at=$4, signature_url=$5, contract_url=$6, updated_at=$4
WHERE id=$1 AND status=$7
RETURNING `+contractColumns,
		id, string(model.StatusSigned), signing.SignedBy, signing.SignedAt, signing.SignatureURL, signing.ContractURL,
		string(model.StatusPendingSignature))

	c, err := scanContract(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var status string
	err = s.DB.QueryRow(ctx, `SELECT status FROM contracts WHERE id=$1`, id).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrContractNotFound
	case err != nil:
		return nil, err
	case model.Status(status) == model.StatusSigned:
		return nil, ErrContractAlreadySigned
	default:
		return nil, ErrContractNotPending
	}
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM contracts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContractNotFound
	}
	return nil
}

func scanContract(row pgx.Row) (*model.Contract, error) {
	var (
		c      model.Contract
		status string
		data   []byte
	)
	err := row.Scan(&c.ID, &c.TemplateID, &c.InfluencerID, &c.BrandID, &status, &data,
		&c.SignedBy, &c.SignedAt, &c.SignatureURL, &c.ContractURL, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = model.Status(status)
	if err := json.Unmarshal(data, &c.ContractData); err != nil {
		return nil, fmt.Errorf("failed to decode contract data for %s: %w", c.ID, err)
	}
	return &c, nil
}
