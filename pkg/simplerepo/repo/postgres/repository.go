// Package postgres provides a PostgreSQL repository implementation on
// top of pgx. Descriptive metadata (creators, titles, identifiers, ACL)
// is stored as JSONB; a side table maps every identifier value onto the
// owning resource for lookups.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-repo/pkg/simplerepo"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplerepo.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) simplerepo.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) simplerepo.Repository {
	return &Repository{db: pool}
}

// handlePostgresError maps database errors onto the service sentinels.
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", simplerepo.ErrResourceAlreadyExists, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: referenced record", simplerepo.ErrResourceNotFound)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: required field %s is missing", simplerepo.ErrBadArgument, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return simplerepo.ErrResourceNotFound
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// resourceRow is the JSONB-encoded shape of a data resource row.
type resourceRow struct {
	identifier           []byte
	alternateIdentifiers []byte
	creators             []byte
	titles               []byte
	resourceType         []byte
	acls                 []byte
}

func encodeResource(resource *simplerepo.DataResource) (*resourceRow, error) {
	row := &resourceRow{}
	var err error
	if row.identifier, err = json.Marshal(resource.Identifier); err != nil {
		return nil, err
	}
	if row.alternateIdentifiers, err = json.Marshal(resource.AlternateIdentifiers); err != nil {
		return nil, err
	}
	if row.creators, err = json.Marshal(resource.Creators); err != nil {
		return nil, err
	}
	if row.titles, err = json.Marshal(resource.Titles); err != nil {
		return nil, err
	}
	if row.resourceType, err = json.Marshal(resource.ResourceType); err != nil {
		return nil, err
	}
	if row.acls, err = json.Marshal(resource.ACL); err != nil {
		return nil, err
	}
	return row, nil
}

func decodeResource(resource *simplerepo.DataResource, row *resourceRow) error {
	if err := json.Unmarshal(row.identifier, &resource.Identifier); err != nil {
		return err
	}
	if err := json.Unmarshal(row.alternateIdentifiers, &resource.AlternateIdentifiers); err != nil {
		return err
	}
	if err := json.Unmarshal(row.creators, &resource.Creators); err != nil {
		return err
	}
	if err := json.Unmarshal(row.titles, &resource.Titles); err != nil {
		return err
	}
	if err := json.Unmarshal(row.resourceType, &resource.ResourceType); err != nil {
		return err
	}
	return json.Unmarshal(row.acls, &resource.ACL)
}

const resourceColumns = `
	internal_id, id, identifier, alternate_identifiers, creators, titles,
	publisher, publication_year, resource_type, state, acls,
	created_at, last_update`

func scanResource(row pgx.Row) (*simplerepo.DataResource, error) {
	var resource simplerepo.DataResource
	var internalID string
	var encoded resourceRow
	err := row.Scan(
		&internalID, &resource.ID,
		&encoded.identifier, &encoded.alternateIdentifiers,
		&encoded.creators, &encoded.titles,
		&resource.Publisher, &resource.PublicationYear,
		&encoded.resourceType, &resource.State, &encoded.acls,
		&resource.CreatedAt, &resource.LastUpdate)
	if err != nil {
		return nil, err
	}
	if err := decodeResource(&resource, &encoded); err != nil {
		return nil, err
	}
	return &resource, nil
}

// beginner is satisfied by *pgxpool.Pool and *pgx.Conn but not by a
// transaction, which cannot open a nested one.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func (r *Repository) CreateResource(ctx context.Context, resource *simplerepo.DataResource) error {
	if db, ok := r.db.(beginner); ok {
		return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
			return r.createResource(ctx, tx, resource)
		})
	}
	return r.createResource(ctx, r.db, resource)
}

// createResource runs the existence check and the inserts on db, which is
// a transaction whenever the underlying connection can open one. Without
// the transaction a concurrent create reusing an identifier could leave
// an orphaned data_resource row behind the identifier conflict.
func (r *Repository) createResource(ctx context.Context, db DBTX, resource *simplerepo.DataResource) error {
	internal := resource.InternalIdentifier()
	if internal == "" {
		return fmt.Errorf("%w: resource has no internal identifier", simplerepo.ErrBadArgument)
	}
	ids := resource.Identifiers()

	var taken bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM resource_identifier WHERE value = ANY($1))`,
		ids).Scan(&taken)
	if err != nil {
		return r.handlePostgresError("create resource", err)
	}
	if taken {
		return fmt.Errorf("%w: %s", simplerepo.ErrResourceAlreadyExists, resource.ID)
	}

	encoded, err := encodeResource(resource)
	if err != nil {
		return fmt.Errorf("encode resource: %w", err)
	}
	query := `
		INSERT INTO data_resource (` + resourceColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = db.Exec(ctx, query,
		internal, resource.ID,
		encoded.identifier, encoded.alternateIdentifiers,
		encoded.creators, encoded.titles,
		resource.Publisher, resource.PublicationYear,
		encoded.resourceType, resource.State, encoded.acls,
		resource.CreatedAt, resource.LastUpdate)
	if err != nil {
		return r.handlePostgresError("create resource", err)
	}

	for _, id := range ids {
		_, err = db.Exec(ctx,
			`INSERT INTO resource_identifier (value, internal_id) VALUES ($1, $2)`,
			id, internal)
		if err != nil {
			return r.handlePostgresError("create resource", err)
		}
	}
	return nil
}

func (r *Repository) GetResource(ctx context.Context, id string) (*simplerepo.DataResource, error) {
	query := `
		SELECT ` + resourceColumns + `
		FROM data_resource
		WHERE internal_id = (SELECT internal_id FROM resource_identifier WHERE value = $1)`

	resource, err := scanResource(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", simplerepo.ErrResourceNotFound, id)
		}
		return nil, r.handlePostgresError("get resource", err)
	}
	return resource, nil
}

func (r *Repository) UpdateResource(ctx context.Context, resource *simplerepo.DataResource) error {
	internal := resource.InternalIdentifier()
	encoded, err := encodeResource(resource)
	if err != nil {
		return fmt.Errorf("encode resource: %w", err)
	}
	query := `
		UPDATE data_resource SET
			id = $2, identifier = $3, alternate_identifiers = $4,
			creators = $5, titles = $6, publisher = $7,
			publication_year = $8, resource_type = $9, state = $10,
			acls = $11, last_update = $12
		WHERE internal_id = $1`
	tag, err := r.db.Exec(ctx, query,
		internal, resource.ID,
		encoded.identifier, encoded.alternateIdentifiers,
		encoded.creators, encoded.titles,
		resource.Publisher, resource.PublicationYear,
		encoded.resourceType, resource.State, encoded.acls,
		resource.LastUpdate)
	if err != nil {
		return r.handlePostgresError("update resource", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", simplerepo.ErrResourceNotFound, resource.ID)
	}

	for _, id := range resource.Identifiers() {
		_, err = r.db.Exec(ctx,
			`INSERT INTO resource_identifier (value, internal_id) VALUES ($1, $2)
			 ON CONFLICT (value) DO NOTHING`,
			id, internal)
		if err != nil {
			return r.handlePostgresError("update resource", err)
		}
	}
	return nil
}

func (r *Repository) ListResources(ctx context.Context, filter simplerepo.ListResourcesFilter) ([]*simplerepo.DataResource, error) {
	var conditions []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.IncludeRevoked {
		conditions = append(conditions, fmt.Sprintf("state <> %s", arg(string(simplerepo.StateRevoked))))
	}
	if filter.UpdatedAfter != nil {
		conditions = append(conditions, fmt.Sprintf("last_update > %s", arg(*filter.UpdatedAfter)))
	}
	if filter.UpdatedBefore != nil {
		conditions = append(conditions, fmt.Sprintf("last_update < %s", arg(*filter.UpdatedBefore)))
	}
	if !filter.Unfiltered {
		// ACL entries are matched by identity and by permission name; a
		// permission at or above the requested one qualifies.
		conditions = append(conditions, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM jsonb_array_elements(acls) AS entry
			WHERE entry->>'sid' = ANY(%s) AND entry->>'permission' = ANY(%s))`,
			arg(filter.Identities), arg(permissionNamesAtLeast(filter.Permission))))
	}

	query := `SELECT ` + resourceColumns + ` FROM data_resource`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %s", arg(filter.Limit))
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %s", arg(filter.Offset))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list resources", err)
	}
	defer rows.Close()

	var resources []*simplerepo.DataResource
	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, r.handlePostgresError("list resources", err)
		}
		resources = append(resources, resource)
	}
	return resources, rows.Err()
}

// permissionNamesAtLeast returns the names of all permissions at or above
// the given one, for use in ACL filter queries.
func permissionNamesAtLeast(p simplerepo.Permission) []string {
	var names []string
	for _, candidate := range []simplerepo.Permission{
		simplerepo.PermissionRead,
		simplerepo.PermissionWrite,
		simplerepo.PermissionAdministrate,
	} {
		if candidate.AtLeast(p) {
			names = append(names, candidate.String())
		}
	}
	return names
}

func (r *Repository) CreateContentInformation(ctx context.Context, info *simplerepo.ContentInformation) error {
	if info.ID == uuid.Nil {
		info.ID = uuid.New()
	}
	now := time.Now().UTC()
	if info.CreatedAt.IsZero() {
		info.CreatedAt = now
	}
	info.UpdatedAt = now

	query := `
		INSERT INTO content_information (
			id, resource_id, relative_path, version, checksum, size,
			media_type, content_uri, versioning_service, uploaded_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx, query,
		info.ID, info.ResourceID, info.RelativePath, info.Version,
		info.Checksum, info.Size, info.MediaType, info.ContentURI,
		info.VersioningService, info.UploadedBy,
		info.CreatedAt, info.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create content information", err)
	}
	return nil
}

const contentColumns = `
	id, resource_id, relative_path, version, checksum, size,
	media_type, content_uri, versioning_service, uploaded_by,
	created_at, updated_at`

func scanContent(row pgx.Row) (*simplerepo.ContentInformation, error) {
	var info simplerepo.ContentInformation
	err := row.Scan(
		&info.ID, &info.ResourceID, &info.RelativePath, &info.Version,
		&info.Checksum, &info.Size, &info.MediaType, &info.ContentURI,
		&info.VersioningService, &info.UploadedBy,
		&info.CreatedAt, &info.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *Repository) GetContentInformation(ctx context.Context, resourceID, relativePath string, version int) (*simplerepo.ContentInformation, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM content_information
		WHERE resource_id = $1 AND relative_path = $2`
	args := []interface{}{resourceID, relativePath}
	if version > 0 {
		query += " AND version = $3"
		args = append(args, version)
	} else {
		query += " ORDER BY version DESC LIMIT 1"
	}

	info, err := scanContent(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s at %s", simplerepo.ErrResourceNotFound, resourceID, relativePath)
		}
		return nil, r.handlePostgresError("get content information", err)
	}
	return info, nil
}

func (r *Repository) ListContentInformation(ctx context.Context, resourceID, pathPrefix string) ([]*simplerepo.ContentInformation, error) {
	query := `
		SELECT DISTINCT ON (relative_path) ` + contentColumns + `
		FROM content_information
		WHERE resource_id = $1 AND relative_path LIKE $2 || '%'
		ORDER BY relative_path, version DESC`

	rows, err := r.db.Query(ctx, query, resourceID, pathPrefix)
	if err != nil {
		return nil, r.handlePostgresError("list content information", err)
	}
	defer rows.Close()

	var infos []*simplerepo.ContentInformation
	for rows.Next() {
		info, err := scanContent(rows)
		if err != nil {
			return nil, r.handlePostgresError("list content information", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (r *Repository) ListContentVersions(ctx context.Context, resourceID, relativePath string) ([]*simplerepo.ContentInformation, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM content_information
		WHERE resource_id = $1 AND relative_path = $2
		ORDER BY version DESC`

	rows, err := r.db.Query(ctx, query, resourceID, relativePath)
	if err != nil {
		return nil, r.handlePostgresError("list content versions", err)
	}
	defer rows.Close()

	var infos []*simplerepo.ContentInformation
	for rows.Next() {
		info, err := scanContent(rows)
		if err != nil {
			return nil, r.handlePostgresError("list content versions", err)
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: %s at %s", simplerepo.ErrResourceNotFound, resourceID, relativePath)
	}
	return infos, rows.Err()
}
