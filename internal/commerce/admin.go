package commerce

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// AdminTokenHeader authenticates Admin API calls.
const AdminTokenHeader = "X-Shopify-Access-Token"

// AdminPath returns the Admin GraphQL path for an API version.
func AdminPath(version string) string {
	return "/admin/api/" + version + "/graphql.json"
}

// PaymentTag is the order tag that links a platform order to the gateway
// payment that paid for it.
func PaymentTag(paymentID string) string {
	return "payment:" + paymentID
}

// orderGIDPrefix is the global id prefix of platform orders.
const orderGIDPrefix = "gid://shopify/Order/"

// OrderGID accepts a numeric order id or a full global id and returns the
// global id. It reports false for anything else.
func OrderGID(id string) (string, bool) {
	num := strings.TrimPrefix(id, orderGIDPrefix)
	if num == "" {
		return "", false
	}
	for _, r := range num {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return orderGIDPrefix + num, true
}

const (
	orderCreateMutation = `
mutation OrderCreate($order: OrderCreateOrderInput!, $options: OrderCreateOptionsInput) {
  orderCreate(order: $order, options: $options) {
    order { id name }
    userErrors { field message }
  }
}`

	ordersByTagQuery = `
query OrdersByTag($query: String!) {
  orders(first: 1, query: $query) {
    nodes { id name }
  }
}`

	orderQuery = `
query Order($id: ID!) {
  order(id: $id) {
    id name email createdAt displayFinancialStatus displayFulfillmentStatus
    totalPriceSet { shopMoney { amount currencyCode } }
    shippingAddress { firstName lastName address1 address2 city province zip country phone }
    lineItems(first: 100) {
      nodes {
        title quantity
        originalUnitPriceSet { shopMoney { amount } }
        variant { id }
        image { url }
      }
    }
  }
}`
)

// Admin is the back-office side of the commerce platform, used to record
// paid orders and read them back.
type Admin struct {
	gql     *GraphQLClient
	gateway string
}

// NewAdmin creates an Admin API client. gateway is the payment gateway name
// recorded on order transactions.
func NewAdmin(doer Doer, storeDomain, apiVersion, token, gateway string, logger *slog.Logger) *Admin {
	endpoint := Endpoint(storeDomain, AdminPath(apiVersion))
	return &Admin{
		gql:     NewGraphQLClient(doer, endpoint, AdminTokenHeader, token, "commerce-admin", logger),
		gateway: gateway,
	}
}

// CreateOrder records a paid order. The order is tagged with the payment id
// and carries one successful sale transaction authorized by that payment.
func (a *Admin) CreateOrder(ctx context.Context, order domain.CheckoutOrder) (domain.PlacedOrder, error) {
	currency := order.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	lines := make([]map[string]any, 0, len(order.Items))
	for _, it := range order.Items {
		lines = append(lines, map[string]any{
			"variantId": it.VariantID,
			"quantity":  it.Quantity,
		})
	}

	input := map[string]any{
		"email":           order.Email,
		"currency":        currency,
		"financialStatus": "PAID",
		"lineItems":       lines,
		"shippingAddress": mailingAddressInput(order.ShippingAddress),
		"tags":            []string{PaymentTag(order.PaymentID)},
		"note":            fmt.Sprintf("Gateway order %s, payment %s", order.GatewayOrderID, order.PaymentID),
		"transactions": []map[string]any{{
			"kind":              "SALE",
			"status":            "SUCCESS",
			"gateway":           a.gateway,
			"authorizationCode": order.PaymentID,
			"amountSet": map[string]any{
				"shopMoney": map[string]any{
					"amount":       domain.FormatAmount(order.Total()),
					"currencyCode": currency,
				},
			},
		}},
	}
	if order.Phone != "" {
		input["phone"] = order.Phone
	}

	vars := map[string]any{
		"order":   input,
		"options": map[string]any{"sendReceipt": true, "inventoryBehaviour": "DECREMENT_OBEYING_POLICY"},
	}

	var out struct {
		Payload struct {
			Order *struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"order"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"orderCreate"`
	}
	if err := a.gql.Mutate(ctx, "OrderCreate", orderCreateMutation, vars, &out); err != nil {
		return domain.PlacedOrder{}, err
	}
	if err := userErrors("order create", out.Payload.UserErrors); err != nil {
		return domain.PlacedOrder{}, err
	}
	if out.Payload.Order == nil {
		return domain.PlacedOrder{}, apperrors.BadGateway("commerce-admin", "order was not created", nil)
	}
	return domain.PlacedOrder{ID: out.Payload.Order.ID, OrderNumber: out.Payload.Order.Name}, nil
}

// FindOrderByPaymentID returns the order tagged with paymentID, if any.
func (a *Admin) FindOrderByPaymentID(ctx context.Context, paymentID string) (*domain.PlacedOrder, error) {
	vars := map[string]any{"query": fmt.Sprintf("tag:%q", PaymentTag(paymentID))}

	var out struct {
		Orders struct {
			Nodes []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"nodes"`
		} `json:"orders"`
	}
	if err := a.gql.Query(ctx, "OrdersByTag", ordersByTagQuery, vars, &out); err != nil {
		return nil, err
	}
	if len(out.Orders.Nodes) == 0 {
		return nil, nil
	}
	n := out.Orders.Nodes[0]
	return &domain.PlacedOrder{ID: n.ID, OrderNumber: n.Name}, nil
}

// Order returns the order with id.
func (a *Admin) Order(ctx context.Context, id string) (*domain.Order, error) {
	var out struct {
		Order *adminOrder `json:"order"`
	}
	if err := a.gql.Query(ctx, "Order", orderQuery, map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}
	if out.Order == nil {
		return nil, apperrors.NotFound("order", id)
	}
	return out.Order.toDomain(), nil
}
