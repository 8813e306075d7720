package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Cart operation upper-bound limits to prevent abuse.
const (
	// MaxQuantityPerItem is the maximum quantity allowed for a single cart line.
	MaxQuantityPerItem = 100
	// MaxItemsPerCart is the maximum number of distinct variants in a cart.
	MaxItemsPerCart = 50
)

// AddItemInput holds the parameters for adding a variant to the cart. Stock
// is the ceiling the product page saw when the shopper pressed add.
type AddItemInput struct {
	VariantID string `json:"variant_id" validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
	Title     string `json:"title" validate:"required,max=500"`
	Price     int64  `json:"price" validate:"gte=0"`
	Quantity  int    `json:"quantity" validate:"required,gte=1,lte=100"`
	Image     string `json:"image" validate:"omitempty,url"`
	Stock     int    `json:"stock" validate:"gte=0"`
}

// SetQuantityInput holds the parameters for changing a line's quantity.
// A nil Stock falls back to the ceiling stored when the line was added.
type SetQuantityInput struct {
	Quantity int  `json:"quantity" validate:"gte=0"`
	Stock    *int `json:"stock" validate:"omitempty,gte=0"`
}

// CartService implements the business logic for cart operations.
type CartService struct {
	repo        repository.CartRepository
	stock       StockReader
	currency    string
	concurrency int
	logger      *slog.Logger
}

// NewCartService creates a new cart service. concurrency bounds the live
// stock lookups of CartWithStock.
func NewCartService(repo repository.CartRepository, stock StockReader, currency string, concurrency int, logger *slog.Logger) *CartService {
	return &CartService{
		repo:        repo,
		stock:       stock,
		currency:    currency,
		concurrency: concurrency,
		logger:      logger,
	}
}

// GetCart retrieves the cart of owner. If no cart exists, returns an empty cart.
func (s *CartService) GetCart(ctx context.Context, owner string) (*domain.Cart, error) {
	if owner == "" {
		return nil, apperrors.InvalidInput("owner is required")
	}

	cart, err := s.repo.Get(ctx, owner)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.NewCart(owner, s.currency), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// AddItem adds a variant to the cart, merging with an existing line for the
// same variant. The resulting quantity must not exceed input.Stock.
func (s *CartService) AddItem(ctx context.Context, owner string, input AddItemInput) (*domain.Cart, error) {
	if owner == "" {
		return nil, apperrors.InvalidInput("owner is required")
	}
	if input.VariantID == "" {
		return nil, apperrors.InvalidInput("variant id is required")
	}
	if input.Quantity <= 0 {
		return nil, apperrors.InvalidInput("quantity must be greater than 0")
	}
	if input.Price < 0 {
		return nil, apperrors.InvalidInput("price must not be negative")
	}

	cart, err := s.repo.Update(ctx, owner, func(cart *domain.Cart) error {
		s.ensureCurrency(cart)

		idx := cart.FindItem(input.VariantID)
		qty := input.Quantity
		if idx >= 0 {
			qty += cart.Items[idx].Quantity
		}
		if qty > input.Stock {
			return insufficientStock(input.Stock)
		}
		if qty > MaxQuantityPerItem {
			return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
		}

		if idx >= 0 {
			item := &cart.Items[idx]
			item.Quantity = qty
			item.ProductID = input.ProductID
			item.Title = input.Title
			item.Price = input.Price
			item.Image = input.Image
			item.Stock = input.Stock
			return nil
		}

		if len(cart.Items) >= MaxItemsPerCart {
			return apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d items", MaxItemsPerCart))
		}
		cart.Items = append(cart.Items, domain.CartItem{
			VariantID: input.VariantID,
			ProductID: input.ProductID,
			Title:     input.Title,
			Price:     input.Price,
			Quantity:  qty,
			Image:     input.Image,
			Stock:     input.Stock,
			AddedAt:   time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("owner", owner),
		slog.String("variant_id", input.VariantID),
		slog.Int("quantity", input.Quantity),
	)
	return cart, nil
}

// SetQuantity sets a line's quantity, clamped to [0, ceiling]. The ceiling is
// input.Stock when given, otherwise the stock stored at add time. A
// resulting quantity of 0 removes the line.
func (s *CartService) SetQuantity(ctx context.Context, owner, variantID string, input SetQuantityInput) (*domain.Cart, error) {
	if owner == "" {
		return nil, apperrors.InvalidInput("owner is required")
	}
	if variantID == "" {
		return nil, apperrors.InvalidInput("variant id is required")
	}

	var applied int
	cart, err := s.repo.Update(ctx, owner, func(cart *domain.Cart) error {
		s.ensureCurrency(cart)

		idx := cart.FindItem(variantID)
		if idx < 0 {
			return apperrors.NotFound("cart item", variantID)
		}

		item := &cart.Items[idx]
		if input.Stock != nil {
			item.Stock = *input.Stock
		}
		applied = domain.ClampQuantity(min(input.Quantity, MaxQuantityPerItem), item.Stock)
		if applied == 0 {
			cart.RemoveAt(idx)
			return nil
		}
		item.Quantity = applied
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set cart item quantity: %w", err)
	}

	s.logger.InfoContext(ctx, "cart item quantity updated",
		slog.String("owner", owner),
		slog.String("variant_id", variantID),
		slog.Int("requested", input.Quantity),
		slog.Int("quantity", applied),
	)
	return cart, nil
}

// RemoveItem removes the line for variantID. Removing an absent variant
// leaves the cart unchanged.
func (s *CartService) RemoveItem(ctx context.Context, owner, variantID string) (*domain.Cart, error) {
	if owner == "" {
		return nil, apperrors.InvalidInput("owner is required")
	}
	if variantID == "" {
		return nil, apperrors.InvalidInput("variant id is required")
	}

	cart, err := s.repo.Update(ctx, owner, func(cart *domain.Cart) error {
		s.ensureCurrency(cart)
		if idx := cart.FindItem(variantID); idx >= 0 {
			cart.RemoveAt(idx)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove cart item: %w", err)
	}

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("owner", owner),
		slog.String("variant_id", variantID),
	)
	return cart, nil
}

// ClearCart removes every line from the cart of owner.
func (s *CartService) ClearCart(ctx context.Context, owner string) error {
	if owner == "" {
		return apperrors.InvalidInput("owner is required")
	}

	if err := s.repo.Delete(ctx, owner); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}

	s.logger.InfoContext(ctx, "cart cleared", slog.String("owner", owner))
	return nil
}

// CartWithStock returns the cart with live availability for every line.
// Lookups run concurrently; a variant the platform no longer knows reads as
// out of stock.
func (s *CartService) CartWithStock(ctx context.Context, owner string) (*domain.CartWithStock, error) {
	cart, err := s.GetCart(ctx, owner)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(cart.Items))
	for i, item := range cart.Items {
		ids[i] = item.VariantID
	}
	stock, err := fetchStock(ctx, s.stock, ids, s.concurrency)
	if err != nil {
		return nil, fmt.Errorf("cart stock: %w", err)
	}

	out := &domain.CartWithStock{
		Owner:    cart.Owner,
		Items:    make([]domain.CartItemStock, len(cart.Items)),
		Currency: cart.Currency,
		Total:    cart.TotalAmount(),
	}
	for i, item := range cart.Items {
		st := stock[i]
		out.Items[i] = domain.CartItemStock{
			CartItem:     item,
			Available:    st.QuantityAvailable,
			InStock:      st.Available && st.QuantityAvailable > 0,
			ExceedsStock: item.Quantity > st.QuantityAvailable,
		}
	}
	return out, nil
}

func (s *CartService) ensureCurrency(cart *domain.Cart) {
	if cart.Currency == "" {
		cart.Currency = s.currency
	}
}

func insufficientStock(ceiling int) error {
	return apperrors.Conflict("INSUFFICIENT_STOCK", fmt.Sprintf("only %d left in stock", max(ceiling, 0)))
}
