package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/domain"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/repository"
)

const defaultListLimit = 100

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ repository.CardRepository = (*Repository)(nil)

// CreateCard inserts a card and fills its generated fields.
func (r *Repository) CreateCard(ctx context.Context, card *domain.Card) error {
	if card == nil {
		return fmt.Errorf("card required")
	}
	const query = `INSERT INTO cards (name, author, github_url, description, overview, tools, price, configs, docker_image, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	tags := card.Tags
	if tags == nil {
		tags = []string{}
	}
	err := r.pool.QueryRow(ctx, query,
		card.Name,
		card.Author,
		card.GitHubURL,
		card.Description,
		card.Overview,
		card.Tools,
		card.Price,
		card.Configs,
		card.DockerImage,
		tags,
	).Scan(&card.ID, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return repository.ErrConflict
			case "23514", "22P02":
				return repository.ErrInvalidArgument
			}
		}
		return err
	}
	return nil
}

// GetCard fetches a card by identifier.
func (r *Repository) GetCard(ctx context.Context, id int64) (*domain.Card, error) {
	const query = `SELECT id, name, author, github_url, description, overview, tools, price, configs, docker_image, tags, created_at, updated_at
		FROM cards WHERE id = $1`
	card, err := scanCard(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return card, nil
}

// ListCards returns cards newest first.
func (r *Repository) ListCards(ctx context.Context, limit, offset int) ([]domain.Card, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT id, name, author, github_url, description, overview, tools, price, configs, docker_image, tags, created_at, updated_at
		FROM cards ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := make([]domain.Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *card)
	}
	return cards, rows.Err()
}

func scanCard(row pgx.Row) (*domain.Card, error) {
	var card domain.Card
	if err := row.Scan(
		&card.ID,
		&card.Name,
		&card.Author,
		&card.GitHubURL,
		&card.Description,
		&card.Overview,
		&card.Tools,
		&card.Price,
		&card.Configs,
		&card.DockerImage,
		&card.Tags,
		&card.CreatedAt,
		&card.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &card, nil
}
