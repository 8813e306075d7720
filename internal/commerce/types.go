package commerce

import (
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/pagination"
)

// Wire shapes of the commerce platform GraphQL APIs and their conversion
// into view models.

type money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// minor converts a decimal amount to minor units. Absent amounts are zero.
func (m *money) minor() int64 {
	if m == nil || m.Amount == "" {
		return 0
	}
	v, err := domain.ParseAmount(m.Amount)
	if err != nil {
		return 0
	}
	return v
}

type moneyBag struct {
	ShopMoney money `json:"shopMoney"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

func (p pageInfo) toDomain() pagination.PageInfo {
	return pagination.PageInfo{HasNextPage: p.HasNextPage, EndCursor: p.EndCursor}
}

type gqlImage struct {
	URL     string `json:"url"`
	AltText string `json:"altText"`
}

type gqlVariant struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	SKU               string    `json:"sku"`
	AvailableForSale  bool      `json:"availableForSale"`
	QuantityAvailable *int      `json:"quantityAvailable"`
	Price             money     `json:"price"`
	CompareAtPrice    *money    `json:"compareAtPrice"`
	Image             *gqlImage `json:"image"`
	SelectedOptions   []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"selectedOptions"`
}

type gqlProduct struct {
	ID               string   `json:"id"`
	Handle           string   `json:"handle"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Vendor           string   `json:"vendor"`
	ProductType      string   `json:"productType"`
	Tags             []string `json:"tags"`
	AvailableForSale bool     `json:"availableForSale"`
	PriceRange       struct {
		MinVariantPrice money `json:"minVariantPrice"`
		MaxVariantPrice money `json:"maxVariantPrice"`
	} `json:"priceRange"`
	Images struct {
		Nodes []gqlImage `json:"nodes"`
	} `json:"images"`
	Options []struct {
		Name   string   `json:"name"`
		Values []string `json:"values"`
	} `json:"options"`
	Variants struct {
		Nodes []gqlVariant `json:"nodes"`
	} `json:"variants"`
}

type productConnection struct {
	Nodes    []gqlProduct `json:"nodes"`
	PageInfo pageInfo     `json:"pageInfo"`
}

func (c productConnection) toDomain() pagination.Result[domain.Product] {
	items := make([]domain.Product, 0, len(c.Nodes))
	for i := range c.Nodes {
		items = append(items, c.Nodes[i].toDomain())
	}
	return pagination.NewResult(items, c.PageInfo.toDomain())
}

func (p *gqlProduct) toDomain() domain.Product {
	out := domain.Product{
		ID:          p.ID,
		Handle:      p.Handle,
		Title:       p.Title,
		Description: p.Description,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Tags:        p.Tags,
		Images:      make([]domain.Image, 0, len(p.Images.Nodes)),
		Variants:    make([]domain.Variant, 0, len(p.Variants.Nodes)),
		PriceMin:    p.PriceRange.MinVariantPrice.minor(),
		PriceMax:    p.PriceRange.MaxVariantPrice.minor(),
		Currency:    p.PriceRange.MinVariantPrice.CurrencyCode,
		Available:   p.AvailableForSale,
	}
	for _, img := range p.Images.Nodes {
		out.Images = append(out.Images, domain.Image{URL: img.URL, AltText: img.AltText})
	}
	for _, o := range p.Options {
		out.Options = append(out.Options, domain.Option{Name: o.Name, Values: o.Values})
	}
	for i := range p.Variants.Nodes {
		v := p.Variants.Nodes[i].toDomain()
		v.ProductID = p.ID
		out.Variants = append(out.Variants, v)
	}
	return out
}

func (v *gqlVariant) toDomain() domain.Variant {
	out := domain.Variant{
		ID:             v.ID,
		Title:          v.Title,
		SKU:            v.SKU,
		Price:          v.Price.minor(),
		CompareAtPrice: v.CompareAtPrice.minor(),
		Available:      v.AvailableForSale,
	}
	if v.QuantityAvailable != nil {
		out.QuantityAvailable = *v.QuantityAvailable
	}
	if v.Image != nil {
		out.Image = v.Image.URL
	}
	if len(v.SelectedOptions) > 0 {
		out.SelectedOptions = make(map[string]string, len(v.SelectedOptions))
		for _, o := range v.SelectedOptions {
			out.SelectedOptions[o.Name] = o.Value
		}
	}
	return out
}

type gqlAddress struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
	City      string `json:"city"`
	Province  string `json:"province"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

func (a *gqlAddress) toDomain() *domain.Address {
	if a == nil {
		return nil
	}
	return &domain.Address{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Address1:  a.Address1,
		Address2:  a.Address2,
		City:      a.City,
		Province:  a.Province,
		Zip:       a.Zip,
		Country:   a.Country,
		Phone:     a.Phone,
	}
}

// mailingAddressInput is the MailingAddressInput shape shared by the
// customer address mutations and orderCreate.
func mailingAddressInput(a domain.Address) map[string]any {
	in := map[string]any{
		"firstName": a.FirstName,
		"lastName":  a.LastName,
		"address1":  a.Address1,
		"city":      a.City,
		"province":  a.Province,
		"zip":       a.Zip,
		"country":   a.Country,
	}
	if a.Address2 != "" {
		in["address2"] = a.Address2
	}
	if a.Phone != "" {
		in["phone"] = a.Phone
	}
	return in
}

type gqlCustomer struct {
	ID               string `json:"id"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	AcceptsMarketing bool   `json:"acceptsMarketing"`
	DefaultAddress   *struct {
		ID string `json:"id"`
	} `json:"defaultAddress"`
	Addresses struct {
		Nodes []gqlAddress `json:"nodes"`
	} `json:"addresses"`
}

func (c *gqlCustomer) toDomain() *domain.Customer {
	out := &domain.Customer{
		ID:               c.ID,
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		Email:            c.Email,
		Phone:            c.Phone,
		AcceptsMarketing: c.AcceptsMarketing,
		Addresses:        make([]domain.Address, 0, len(c.Addresses.Nodes)),
	}
	if c.DefaultAddress != nil {
		out.DefaultAddressID = c.DefaultAddress.ID
	}
	for i := range c.Addresses.Nodes {
		out.Addresses = append(out.Addresses, *c.Addresses.Nodes[i].toDomain())
	}
	return out
}

type gqlAccessToken struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (t *gqlAccessToken) toDomain() *domain.AccessToken {
	if t == nil {
		return nil
	}
	return &domain.AccessToken{Token: t.AccessToken, ExpiresAt: t.ExpiresAt}
}

// customerOrder is an order as seen through the Storefront API.
type customerOrder struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	OrderNumber       int64       `json:"orderNumber"`
	Email             string      `json:"email"`
	ProcessedAt       time.Time   `json:"processedAt"`
	FinancialStatus   string      `json:"financialStatus"`
	FulfillmentStatus string      `json:"fulfillmentStatus"`
	TotalPrice        money       `json:"totalPrice"`
	ShippingAddress   *gqlAddress `json:"shippingAddress"`
	LineItems         struct {
		Nodes []struct {
			Title    string `json:"title"`
			Quantity int    `json:"quantity"`
			Variant  *struct {
				ID    string    `json:"id"`
				Price money     `json:"price"`
				Image *gqlImage `json:"image"`
			} `json:"variant"`
		} `json:"nodes"`
	} `json:"lineItems"`
}

func (o *customerOrder) toDomain() domain.Order {
	out := domain.Order{
		ID:                o.ID,
		Name:              o.Name,
		OrderNumber:       o.OrderNumber,
		Email:             o.Email,
		CreatedAt:         o.ProcessedAt,
		FinancialStatus:   o.FinancialStatus,
		FulfillmentStatus: o.FulfillmentStatus,
		Total:             o.TotalPrice.minor(),
		Currency:          o.TotalPrice.CurrencyCode,
		Lines:             make([]domain.OrderItem, 0, len(o.LineItems.Nodes)),
		ShippingAddress:   o.ShippingAddress.toDomain(),
	}
	for _, li := range o.LineItems.Nodes {
		item := domain.OrderItem{Title: li.Title, Quantity: li.Quantity}
		if li.Variant != nil {
			item.VariantID = li.Variant.ID
			item.Price = li.Variant.Price.minor()
			if li.Variant.Image != nil {
				item.Image = li.Variant.Image.URL
			}
		}
		out.Lines = append(out.Lines, item)
	}
	return out
}

// adminOrder is an order as seen through the Admin API.
type adminOrder struct {
	ID                       string      `json:"id"`
	Name                     string      `json:"name"`
	Email                    string      `json:"email"`
	CreatedAt                time.Time   `json:"createdAt"`
	DisplayFinancialStatus   string      `json:"displayFinancialStatus"`
	DisplayFulfillmentStatus string      `json:"displayFulfillmentStatus"`
	TotalPriceSet            moneyBag    `json:"totalPriceSet"`
	ShippingAddress          *gqlAddress `json:"shippingAddress"`
	LineItems                struct {
		Nodes []struct {
			Title                string   `json:"title"`
			Quantity             int      `json:"quantity"`
			OriginalUnitPriceSet moneyBag `json:"originalUnitPriceSet"`
			Variant              *struct {
				ID string `json:"id"`
			} `json:"variant"`
			Image *gqlImage `json:"image"`
		} `json:"nodes"`
	} `json:"lineItems"`
}

func (o *adminOrder) toDomain() *domain.Order {
	out := &domain.Order{
		ID:                o.ID,
		Name:              o.Name,
		OrderNumber:       orderNumberFromName(o.Name),
		Email:             o.Email,
		CreatedAt:         o.CreatedAt,
		FinancialStatus:   o.DisplayFinancialStatus,
		FulfillmentStatus: o.DisplayFulfillmentStatus,
		Total:             o.TotalPriceSet.ShopMoney.minor(),
		Currency:          o.TotalPriceSet.ShopMoney.CurrencyCode,
		Lines:             make([]domain.OrderItem, 0, len(o.LineItems.Nodes)),
		ShippingAddress:   o.ShippingAddress.toDomain(),
	}
	for _, li := range o.LineItems.Nodes {
		item := domain.OrderItem{
			Title:    li.Title,
			Quantity: li.Quantity,
			Price:    li.OriginalUnitPriceSet.ShopMoney.minor(),
		}
		if li.Variant != nil {
			item.VariantID = li.Variant.ID
		}
		if li.Image != nil {
			item.Image = li.Image.URL
		}
		out.Lines = append(out.Lines, item)
	}
	return out
}

// orderNumberFromName extracts 1042 from a display name such as "#1042".
// Names that do not end in digits yield 0.
func orderNumberFromName(name string) int64 {
	var n int64
	for _, r := range name {
		switch {
		case r >= '0' && r <= '9':
			n = n*10 + int64(r-'0')
		case n > 0:
			return 0
		}
	}
	return n
}
