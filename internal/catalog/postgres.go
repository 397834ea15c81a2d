// Package catalog resolves project references (projectId on a draft) against
// the source-of-truth catalogue database, with an optional Redis read-through
// cache. Catalogue ingestion is someone else's job; this is lookup only.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Project is the catalogue record a draft points at.
type Project struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Images []string `json:"images"`
}

// ErrNotFound is returned when a projectId does not resolve. Callers treat a
// dangling reference as skip-this-slot, never fatal.
var ErrNotFound = errors.New("project not found")

// Source resolves a project by id.
type Source interface {
	Project(ctx context.Context, id string) (Project, error)
}

// Open connects to the catalogue database.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping catalog db: %w", err)
	}
	return db, nil
}

// PostgresSource reads projects from the catalogue database.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Project(ctx context.Context, id string) (Project, error) {
	project := Project{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT title FROM projects WHERE id = $1`, id).Scan(&project.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("query project %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM project_images WHERE project_id = $1 ORDER BY position`, id)
	if err != nil {
		return Project{}, fmt.Errorf("query project images %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var imageURL string
		if err := rows.Scan(&imageURL); err != nil {
			return Project{}, fmt.Errorf("scan project image: %w", err)
		}
		project.Images = append(project.Images, imageURL)
	}
	if err := rows.Err(); err != nil {
		return Project{}, fmt.Errorf("iterate project images: %w", err)
	}
	return project, nil
}

func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
