package document

import (
	"context"
	"errors"
	"fmt"

	"escrowflow/access"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the parent contract or milestone is missing or not visible.
	ErrNotFound = errors.New("document: parent not found")
	// ErrUnknownParent signals a Parent value with no backing table.
	ErrUnknownParent = errors.New("document: unknown parent kind")
)

type parentTable struct {
	table string
	fk    string
	// from reaches the parent row and its contract, aliased c.
	from  string
	idCol string
}

var parents = map[Parent]parentTable{
	ParentContract: {
		table: "contract_documents",
		fk:    "contract_id",
		from:  "contracts c",
		idCol: "c.id",
	},
	ParentMilestone: {
		table: "milestone_documents",
		fk:    "milestone_id",
		from:  "milestones m JOIN contracts c ON c.id = m.contract_id",
		idCol: "m.id",
	},
}

// Repository stores document metadata in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CheckParent returns ErrNotFound unless the parent exists and caller may see it.
func (r *Repository) CheckParent(ctx context.Context, caller access.Caller, parent Parent, parentID string) error {
	pt, ok := parents[parent]
	if !ok {
		return ErrUnknownParent
	}
	query := `SELECT EXISTS (SELECT 1 FROM ` + pt.from + ` WHERE ` + pt.idCol + ` = $1 AND ` + caller.ContractPredicate("c", 2) + `)`
	args := append([]any{parentID}, caller.Args()...)

	var exists bool
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		if isMalformed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("document: check parent: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// Insert records d under a parent visible to caller, with caller as uploader.
func (r *Repository) Insert(ctx context.Context, caller access.Caller, d Document) (Document, error) {
	pt, ok := parents[d.Parent]
	if !ok {
		return Document{}, ErrUnknownParent
	}
	query := `
		INSERT INTO ` + pt.table + ` AS d (` + pt.fk + `, title, object_key, file_name, content_type, size_bytes, uploaded_by)
		SELECT ` + pt.idCol + `, $4::text, $5::text, $6::text, $7::text, $8::bigint, $3::uuid
		FROM ` + pt.from + `
		WHERE ` + pt.idCol + ` = $1 AND ` + caller.ContractPredicate("c", 2) + `
		RETURNING d.id, d.` + pt.fk + `, d.title, d.object_key, d.file_name, d.content_type, d.size_bytes, d.uploaded_by::text, d.uploaded_at`

	args := append([]any{d.ParentID}, caller.Args()...)
	args = append(args, d.Title, d.ObjectKey, d.FileName, d.ContentType, d.Size)

	out, err := scanDocument(r.pool.QueryRow(ctx, query, args...), d.Parent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isMalformed(err) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("document: insert: %w", err)
	}
	return out, nil
}

// List returns the documents of a visible parent, newest first.
func (r *Repository) List(ctx context.Context, caller access.Caller, parent Parent, parentID string) ([]Document, error) {
	if err := r.CheckParent(ctx, caller, parent, parentID); err != nil {
		return nil, err
	}
	pt := parents[parent]

	rows, err := r.pool.Query(ctx, `
		SELECT d.id, d.`+pt.fk+`, d.title, d.object_key, d.file_name, d.content_type, d.size_bytes, d.uploaded_by::text, d.uploaded_at
		FROM `+pt.table+` d
		WHERE d.`+pt.fk+` = $1
		ORDER BY d.uploaded_at DESC, d.id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("document: list: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows, parent)
		if err != nil {
			return nil, fmt.Errorf("document: scan: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("document: iterate: %w", err)
	}
	return docs, nil
}

func scanDocument(row pgx.Row, parent Parent) (Document, error) {
	d := Document{Parent: parent}
	err := row.Scan(&d.ID, &d.ParentID, &d.Title, &d.ObjectKey, &d.FileName, &d.ContentType, &d.Size, &d.UploadedBy, &d.UploadedAt)
	return d, err
}

func isMalformed(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
