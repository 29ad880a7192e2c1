package repository

import (
	"context"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/domain"
)

// CardRepository persists catalog cards.
type CardRepository interface {
	CreateCard(ctx context.Context, card *domain.Card) error
	GetCard(ctx context.Context, id int64) (*domain.Card, error)
	ListCards(ctx context.Context, limit, offset int) ([]domain.Card, error)
}
