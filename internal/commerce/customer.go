package commerce

import (
	"context"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

const customerUserErrorFields = `customerUserErrors { code field message }`

const addressFields = `id firstName lastName address1 address2 city province zip country phone`

const customerFields = `
  id firstName lastName email phone acceptsMarketing
  defaultAddress { id }
  addresses(first: 50) { nodes { ` + addressFields + ` } }`

const (
	accessTokenCreateMutation = `
mutation CustomerAccessTokenCreate($input: CustomerAccessTokenCreateInput!) {
  customerAccessTokenCreate(input: $input) {
    customerAccessToken { accessToken expiresAt }
    ` + customerUserErrorFields + `
  }
}`

	accessTokenDeleteMutation = `
mutation CustomerAccessTokenDelete($token: String!) {
  customerAccessTokenDelete(customerAccessToken: $token) {
    deletedAccessToken
    userErrors { field message }
  }
}`

	customerCreateMutation = `
mutation CustomerCreate($input: CustomerCreateInput!) {
  customerCreate(input: $input) {
    customer { id }
    ` + customerUserErrorFields + `
  }
}`

	customerRecoverMutation = `
mutation CustomerRecover($email: String!) {
  customerRecover(email: $email) {
    ` + customerUserErrorFields + `
  }
}`

	customerQuery = `
query Customer($token: String!) {
  customer(customerAccessToken: $token) {` + customerFields + `
  }
}`

	customerUpdateMutation = `
mutation CustomerUpdate($token: String!, $customer: CustomerUpdateInput!) {
  customerUpdate(customerAccessToken: $token, customer: $customer) {
    customer {` + customerFields + `
    }
    customerAccessToken { accessToken expiresAt }
    ` + customerUserErrorFields + `
  }
}`

	addressCreateMutation = `
mutation CustomerAddressCreate($token: String!, $address: MailingAddressInput!) {
  customerAddressCreate(customerAccessToken: $token, address: $address) {
    customerAddress { ` + addressFields + ` }
    ` + customerUserErrorFields + `
  }
}`

	addressUpdateMutation = `
mutation CustomerAddressUpdate($token: String!, $id: ID!, $address: MailingAddressInput!) {
  customerAddressUpdate(customerAccessToken: $token, id: $id, address: $address) {
    customerAddress { ` + addressFields + ` }
    ` + customerUserErrorFields + `
  }
}`

	addressDeleteMutation = `
mutation CustomerAddressDelete($token: String!, $id: ID!) {
  customerAddressDelete(customerAccessToken: $token, id: $id) {
    deletedCustomerAddressId
    ` + customerUserErrorFields + `
  }
}`

	defaultAddressMutation = `
mutation CustomerDefaultAddressUpdate($token: String!, $addressId: ID!) {
  customerDefaultAddressUpdate(customerAccessToken: $token, addressId: $addressId) {
    customer { id }
    ` + customerUserErrorFields + `
  }
}`

	customerOrdersQuery = `
query CustomerOrders($token: String!, $first: Int!, $after: String) {
  customer(customerAccessToken: $token) {
    orders(first: $first, after: $after, sortKey: PROCESSED_AT, reverse: true) {
      nodes {
        id name orderNumber email processedAt financialStatus fulfillmentStatus
        totalPrice { amount currencyCode }
        shippingAddress { ` + addressFields + ` }
        lineItems(first: 50) {
          nodes {
            title quantity
            variant { id price { amount } image { url } }
          }
        }
      }
      pageInfo { hasNextPage endCursor }
    }
  }
}`
)

// CreateAccessToken exchanges credentials for a customer access token.
func (s *Storefront) CreateAccessToken(ctx context.Context, email, password string) (*domain.AccessToken, error) {
	vars := map[string]any{"input": map[string]any{"email": email, "password": password}}

	var out struct {
		Payload struct {
			Token      *gqlAccessToken `json:"customerAccessToken"`
			UserErrors []UserError     `json:"customerUserErrors"`
		} `json:"customerAccessTokenCreate"`
	}
	if err := s.gql.Mutate(ctx, "CustomerAccessTokenCreate", accessTokenCreateMutation, vars, &out); err != nil {
		return nil, err
	}
	if err := userErrors("login", out.Payload.UserErrors); err != nil {
		return nil, err
	}
	if out.Payload.Token == nil {
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	return out.Payload.Token.toDomain(), nil
}

// DeleteAccessToken revokes a customer access token.
func (s *Storefront) DeleteAccessToken(ctx context.Context, token string) error {
	var out struct {
		Payload struct {
			UserErrors []UserError `json:"userErrors"`
		} `json:"customerAccessTokenDelete"`
	}
	if err := s.gql.Mutate(ctx, "CustomerAccessTokenDelete", accessTokenDeleteMutation, map[string]any{"token": token}, &out); err != nil {
		return err
	}
	return userErrors("logout", out.Payload.UserErrors)
}

// CreateCustomer registers a customer account.
func (s *Storefront) CreateCustomer(ctx context.Context, in domain.NewCustomer) (string, error) {
	input := map[string]any{
		"firstName":        in.FirstName,
		"lastName":         in.LastName,
		"email":            in.Email,
		"password":         in.Password,
		"acceptsMarketing": in.AcceptsMarketing,
	}
	if in.Phone != "" {
		input["phone"] = in.Phone
	}

	var out struct {
		Payload struct {
			Customer *struct {
				ID string `json:"id"`
			} `json:"customer"`
			UserErrors []UserError `json:"customerUserErrors"`
		} `json:"customerCreate"`
	}
	if err := s.gql.Mutate(ctx, "CustomerCreate", customerCreateMutation, map[string]any{"input": input}, &out); err != nil {
		return "", err
	}
	if err := userErrors("registration", out.Payload.UserErrors); err != nil {
		return "", err
	}
	if out.Payload.Customer == nil {
		return "", apperrors.BadGateway("commerce-storefront", "customer was not created", nil)
	}
	return out.Payload.Customer.ID, nil
}

// Recover sends a password reset email.
func (s *Storefront) Recover(ctx context.Context, email string) error {
	var out struct {
		Payload struct {
			UserErrors []UserError `json:"customerUserErrors"`
		} `json:"customerRecover"`
	}
	if err := s.gql.Mutate(ctx, "CustomerRecover", customerRecoverMutation, map[string]any{"email": email}, &out); err != nil {
		return err
	}
	return userErrors("password recovery", out.Payload.UserErrors)
}

// Customer returns the customer that owns token.
func (s *Storefront) Customer(ctx context.Context, token string) (*domain.Customer, error) {
	var out struct {
		Customer *gqlCustomer `json:"customer"`
	}
	if err := s.gql.Query(ctx, "Customer", customerQuery, map[string]any{"token": token}, &out); err != nil {
		return nil, err
	}
	if out.Customer == nil {
		return nil, apperrors.Unauthorized("session expired")
	}
	return out.Customer.toDomain(), nil
}

// UpdateCustomer applies a partial profile update. When the password changes
// the platform rotates the access token and the new one is returned.
func (s *Storefront) UpdateCustomer(ctx context.Context, token string, upd domain.CustomerUpdate) (*domain.Customer, *domain.AccessToken, error) {
	input := map[string]any{}
	if upd.FirstName != nil {
		input["firstName"] = *upd.FirstName
	}
	if upd.LastName != nil {
		input["lastName"] = *upd.LastName
	}
	if upd.Phone != nil {
		input["phone"] = *upd.Phone
	}
	if upd.Password != nil {
		input["password"] = *upd.Password
	}
	if len(input) == 0 {
		return nil, nil, apperrors.InvalidInput("nothing to update")
	}

	var out struct {
		Payload struct {
			Customer   *gqlCustomer    `json:"customer"`
			Token      *gqlAccessToken `json:"customerAccessToken"`
			UserErrors []UserError     `json:"customerUserErrors"`
		} `json:"customerUpdate"`
	}
	vars := map[string]any{"token": token, "customer": input}
	if err := s.gql.Mutate(ctx, "CustomerUpdate", customerUpdateMutation, vars, &out); err != nil {
		return nil, nil, err
	}
	if err := userErrors("profile update", out.Payload.UserErrors); err != nil {
		return nil, nil, err
	}
	if out.Payload.Customer == nil {
		return nil, nil, apperrors.Unauthorized("session expired")
	}
	return out.Payload.Customer.toDomain(), out.Payload.Token.toDomain(), nil
}

type addressPayload struct {
	Address    *gqlAddress `json:"customerAddress"`
	UserErrors []UserError `json:"customerUserErrors"`
}

// CreateAddress adds an address to the customer's address book.
func (s *Storefront) CreateAddress(ctx context.Context, token string, addr domain.Address) (*domain.Address, error) {
	var out struct {
		Payload addressPayload `json:"customerAddressCreate"`
	}
	vars := map[string]any{"token": token, "address": mailingAddressInput(addr)}
	if err := s.gql.Mutate(ctx, "CustomerAddressCreate", addressCreateMutation, vars, &out); err != nil {
		return nil, err
	}
	return out.Payload.result("address create", "")
}

// UpdateAddress replaces the address with id.
func (s *Storefront) UpdateAddress(ctx context.Context, token, id string, addr domain.Address) (*domain.Address, error) {
	var out struct {
		Payload addressPayload `json:"customerAddressUpdate"`
	}
	vars := map[string]any{"token": token, "id": id, "address": mailingAddressInput(addr)}
	if err := s.gql.Mutate(ctx, "CustomerAddressUpdate", addressUpdateMutation, vars, &out); err != nil {
		return nil, err
	}
	return out.Payload.result("address update", id)
}

func (p addressPayload) result(op, id string) (*domain.Address, error) {
	if err := addressUserErrors(op, id, p.UserErrors); err != nil {
		return nil, err
	}
	if p.Address == nil {
		return nil, apperrors.NotFound("address", id)
	}
	return p.Address.toDomain(), nil
}

// DeleteAddress removes the address with id.
func (s *Storefront) DeleteAddress(ctx context.Context, token, id string) error {
	var out struct {
		Payload struct {
			DeletedID  *string     `json:"deletedCustomerAddressId"`
			UserErrors []UserError `json:"customerUserErrors"`
		} `json:"customerAddressDelete"`
	}
	vars := map[string]any{"token": token, "id": id}
	if err := s.gql.Mutate(ctx, "CustomerAddressDelete", addressDeleteMutation, vars, &out); err != nil {
		return err
	}
	if err := addressUserErrors("address delete", id, out.Payload.UserErrors); err != nil {
		return err
	}
	if out.Payload.DeletedID == nil {
		return apperrors.NotFound("address", id)
	}
	return nil
}

// SetDefaultAddress marks the address with id as the customer's default.
func (s *Storefront) SetDefaultAddress(ctx context.Context, token, id string) error {
	var out struct {
		Payload struct {
			UserErrors []UserError `json:"customerUserErrors"`
		} `json:"customerDefaultAddressUpdate"`
	}
	vars := map[string]any{"token": token, "addressId": id}
	if err := s.gql.Mutate(ctx, "CustomerDefaultAddressUpdate", defaultAddressMutation, vars, &out); err != nil {
		return err
	}
	return addressUserErrors("default address", id, out.Payload.UserErrors)
}

// addressUserErrors reports an unknown address id as 404 instead of a
// field error.
func addressUserErrors(op, id string, errs []UserError) error {
	for _, e := range errs {
		if e.Code == "NOT_FOUND" || (id != "" && e.Code == "INVALID" && fieldName(e.Field) == "id") {
			return apperrors.NotFound("address", id)
		}
	}
	return userErrors(op, errs)
}

// CustomerOrders lists the orders of the customer that owns token, newest first.
func (s *Storefront) CustomerOrders(ctx context.Context, token string, page pagination.Params) (pagination.Result[domain.Order], error) {
	vars := map[string]any{"token": token, "first": page.First}
	if page.After != "" {
		vars["after"] = page.After
	}

	var out struct {
		Customer *struct {
			Orders struct {
				Nodes    []customerOrder `json:"nodes"`
				PageInfo pageInfo        `json:"pageInfo"`
			} `json:"orders"`
		} `json:"customer"`
	}
	if err := s.gql.Query(ctx, "CustomerOrders", customerOrdersQuery, vars, &out); err != nil {
		return pagination.Result[domain.Order]{}, err
	}
	if out.Customer == nil {
		return pagination.Result[domain.Order]{}, apperrors.Unauthorized("session expired")
	}

	orders := make([]domain.Order, 0, len(out.Customer.Orders.Nodes))
	for i := range out.Customer.Orders.Nodes {
		orders = append(orders, out.Customer.Orders.Nodes[i].toDomain())
	}
	return pagination.NewResult(orders, out.Customer.Orders.PageInfo.toDomain()), nil
}
