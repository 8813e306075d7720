package domain

import (
	"sort"
	"time"
)

// Wishlist is the set of products an owner has saved.
type Wishlist struct {
	Owner string         `json:"owner"`
	Items []WishlistItem `json:"items"`
}

// WishlistItem is a saved product reference.
type WishlistItem struct {
	ProductID string    `json:"product_id"`
	Handle    string    `json:"handle,omitempty"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	Image     string    `json:"image,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

// SortByAddedAt orders the items oldest first, breaking ties by product id.
func (w *Wishlist) SortByAddedAt() {
	sort.Slice(w.Items, func(i, j int) bool {
		a, b := w.Items[i], w.Items[j]
		if a.AddedAt.Equal(b.AddedAt) {
			return a.ProductID < b.ProductID
		}
		return a.AddedAt.Before(b.AddedAt)
	})
}

// Contains reports whether productID is saved.
func (w *Wishlist) Contains(productID string) bool {
	for _, item := range w.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}
