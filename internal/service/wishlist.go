package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/validator"
)

// MaxWishlistItems caps the number of saved products per owner.
const MaxWishlistItems = 200

// AddWishlistInput holds the product reference to save.
type AddWishlistInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Handle    string `json:"handle" validate:"omitempty,max=255"`
	Title     string `json:"title" validate:"required,max=500"`
	Price     int64  `json:"price" validate:"gte=0"`
	Image     string `json:"image" validate:"omitempty,url"`
}

// WishlistService implements the business logic for wishlists.
type WishlistService struct {
	repo   repository.WishlistRepository
	logger *slog.Logger
}

// NewWishlistService creates a new wishlist service.
func NewWishlistService(repo repository.WishlistRepository, logger *slog.Logger) *WishlistService {
	return &WishlistService{repo: repo, logger: logger}
}

// List returns the wishlist of owner, oldest entry first.
func (s *WishlistService) List(ctx context.Context, owner string) (*domain.Wishlist, error) {
	if owner == "" {
		return nil, apperrors.InvalidInput("owner is required")
	}

	items, err := s.repo.List(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list wishlist: %w", err)
	}

	w := &domain.Wishlist{Owner: owner, Items: items}
	w.SortByAddedAt()
	return w, nil
}

// Add saves a product. Saving a product that is already present leaves the
// wishlist unchanged.
func (s *WishlistService) Add(ctx context.Context, owner string, input AddWishlistInput) (*domain.Wishlist, error) {
	if owner == "" {
		return nil, apperrors.InvalidInput("owner is required")
	}
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	current, err := s.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	if current.Contains(input.ProductID) {
		return current, nil
	}
	if len(current.Items) >= MaxWishlistItems {
		return nil, apperrors.InvalidInput(fmt.Sprintf("wishlist must not contain more than %d items", MaxWishlistItems))
	}

	added, err := s.repo.Add(ctx, owner, domain.WishlistItem{
		ProductID: input.ProductID,
		Handle:    input.Handle,
		Title:     input.Title,
		Price:     input.Price,
		Image:     input.Image,
		AddedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("add wishlist item: %w", err)
	}
	if added {
		s.logger.InfoContext(ctx, "product saved to wishlist",
			slog.String("owner", owner),
			slog.String("product_id", input.ProductID),
		)
	}

	return s.List(ctx, owner)
}

// Remove deletes a product. Removing an absent product leaves the wishlist
// unchanged.
func (s *WishlistService) Remove(ctx context.Context, owner, productID string) (*domain.Wishlist, error) {
	if owner == "" {
		return nil, apperrors.InvalidInput("owner is required")
	}
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	removed, err := s.repo.Remove(ctx, owner, productID)
	if err != nil {
		return nil, fmt.Errorf("remove wishlist item: %w", err)
	}
	if removed {
		s.logger.InfoContext(ctx, "product removed from wishlist",
			slog.String("owner", owner),
			slog.String("product_id", productID),
		)
	}

	return s.List(ctx, owner)
}

// Contains reports whether productID is saved by owner.
func (s *WishlistService) Contains(ctx context.Context, owner, productID string) (bool, error) {
	if owner == "" || productID == "" {
		return false, apperrors.InvalidInput("owner and product id are required")
	}

	ok, err := s.repo.Contains(ctx, owner, productID)
	if err != nil {
		return false, fmt.Errorf("wishlist contains: %w", err)
	}
	return ok, nil
}
