package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dshills/tutormatch/pkg/types"
)

// Embedding operations

func validateSlot(key SlotKey) error {
	if err := key.Role.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	if err := key.Field.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	if key.Model == "" {
		return fmt.Errorf("%w: model name is required", ErrInvalidRow)
	}
	return nil
}

// upsertEmbeddingWithQuerier inserts or replaces the vector in a slot. The
// slot's creation time survives replacement.
func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, emb *Embedding) error {
	if err := validateSlot(emb.Key()); err != nil {
		return err
	}

	query := `
		INSERT INTO user_embeddings (user_id, entity_type, field_name, model_name, dimension, vector, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, entity_type, field_name, model_name) DO UPDATE SET
			dimension = excluded.dimension,
			vector = excluded.vector,
			updated_at = excluded.updated_at
		RETURNING id
	`
	ts := now()
	var id int64
	err := q.QueryRowContext(ctx, query,
		emb.UserID, string(emb.Role), string(emb.Field), emb.Model,
		len(emb.Vector), serializeVector(emb.Vector), ts, ts).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", mapConstraintError(err))
	}

	emb.ID = id
	emb.Dimension = len(emb.Vector)
	emb.UpdatedAt = ts
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), embedding)
}

const embeddingColumns = `id, user_id, entity_type, field_name, model_name, dimension, vector, created_at, updated_at`

func scanEmbedding(scan func(dest ...interface{}) error) (*Embedding, error) {
	var emb Embedding
	var role, field string
	var blob []byte
	if err := scan(&emb.ID, &emb.UserID, &role, &field, &emb.Model, &emb.Dimension, &blob, &emb.CreatedAt, &emb.UpdatedAt); err != nil {
		return nil, err
	}
	emb.Role = types.Role(role)
	emb.Field = types.Field(field)

	vector, err := deserializeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("embedding %d: %w", emb.ID, err)
	}
	emb.Vector = vector
	return &emb, nil
}

func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, key SlotKey) (*Embedding, error) {
	query := "SELECT " + embeddingColumns + ` FROM user_embeddings
		WHERE user_id = ? AND entity_type = ? AND field_name = ? AND model_name = ?`
	row := q.QueryRowContext(ctx, query, key.UserID, string(key.Role), string(key.Field), key.Model)
	emb, err := scanEmbedding(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return emb, nil
}

// GetEmbedding returns the vector in one slot, or ErrNotFound when empty
func (s *SQLiteStorage) GetEmbedding(ctx context.Context, key SlotKey) (*Embedding, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), key)
}

// listEmbeddingsWithQuerier returns all slots for role and model, limited to
// userIDs when it is non-nil
func (s *SQLiteStorage) listEmbeddingsWithQuerier(ctx context.Context, q querier, role types.Role, model string, userIDs []int64) ([]*Embedding, error) {
	base := "SELECT " + embeddingColumns + " FROM user_embeddings WHERE entity_type = ? AND model_name = ?"
	if userIDs == nil {
		return s.queryEmbeddings(ctx, q, base+" ORDER BY user_id, field_name", string(role), model)
	}

	var out []*Embedding
	for _, chunk := range chunkIDs(userIDs) {
		in, args := inClause(chunk)
		args = append([]interface{}{string(role), model}, args...)
		found, err := s.queryEmbeddings(ctx, q, base+" AND user_id IN "+in+" ORDER BY user_id, field_name", args...)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (s *SQLiteStorage) ListEmbeddings(ctx context.Context, role types.Role, model string, userIDs []int64) ([]*Embedding, error) {
	return s.listEmbeddingsWithQuerier(ctx, s.querier(), role, model, userIDs)
}

func (s *SQLiteStorage) queryEmbeddings(ctx context.Context, q querier, query string, args ...interface{}) ([]*Embedding, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Embedding
	for rows.Next() {
		emb, err := scanEmbedding(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, emb)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) deleteEmbeddingsWithQuerier(ctx context.Context, q querier, userID int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM user_embeddings WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return nil
}

// DeleteEmbeddings clears every slot of a user across roles and models
func (s *SQLiteStorage) DeleteEmbeddings(ctx context.Context, userID int64) error {
	return s.deleteEmbeddingsWithQuerier(ctx, s.querier(), userID)
}
