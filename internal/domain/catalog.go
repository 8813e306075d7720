package domain

// Product is the storefront view of a catalog product.
type Product struct {
	ID          string    `json:"id"`
	Handle      string    `json:"handle"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Vendor      string    `json:"vendor,omitempty"`
	ProductType string    `json:"product_type,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Images      []Image   `json:"images"`
	Options     []Option  `json:"options,omitempty"`
	Variants    []Variant `json:"variants"`
	PriceMin    int64     `json:"price_min"`
	PriceMax    int64     `json:"price_max"`
	Currency    string    `json:"currency"`
	Available   bool      `json:"available"`
}

// Image is a product image.
type Image struct {
	URL     string `json:"url"`
	AltText string `json:"alt_text,omitempty"`
}

// Option is a product option such as size or colour.
type Option struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Variant is a purchasable product variant.
type Variant struct {
	ID                string            `json:"id"`
	ProductID         string            `json:"product_id,omitempty"`
	Title             string            `json:"title"`
	SKU               string            `json:"sku,omitempty"`
	Price             int64             `json:"price"`
	CompareAtPrice    int64             `json:"compare_at_price,omitempty"`
	Available         bool              `json:"available"`
	QuantityAvailable int               `json:"quantity_available"`
	SelectedOptions   map[string]string `json:"selected_options,omitempty"`
	Image             string            `json:"image,omitempty"`
}

// VariantStock is the live availability of one variant.
type VariantStock struct {
	VariantID         string `json:"variant_id"`
	Available         bool   `json:"available"`
	QuantityAvailable int    `json:"quantity_available"`
}

// ProductSort keys accepted by the product listing.
var ProductSort = map[string]string{
	"":           "RELEVANCE",
	"relevance":  "RELEVANCE",
	"newest":     "CREATED_AT",
	"price_asc":  "PRICE",
	"price_desc": "PRICE",
	"title":      "TITLE",
	"bestseller": "BEST_SELLING",
}
