package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// SubscriptionLine is one line to create on a Stripe subscription.
type SubscriptionLine struct {
	PriceID  string
	Quantity int64
}

// IntentResult carries what the client needs to confirm an intent.
type IntentResult struct {
	ID           string
	ClientSecret string
}

// SubscriptionResult is the serverside summary of a created subscription.
type SubscriptionResult struct {
	ID      string
	Status  string
	ItemIDs map[string]string // price id -> subscription item id
}

// StripeGateway is the only way services reach Stripe. Webhook signature
// verification lives in the handler; everything else goes through here so
// tests can stub it.
type StripeGateway interface {
	CreateCustomer(ctx context.Context, name, email string) (string, error)
	CreateSetupIntent(ctx context.Context, customerID string) (IntentResult, error)
	CreatePaymentIntent(ctx context.Context, customerID, currency string, amount decimal.Decimal) (IntentResult, error)
	CreateSubscription(ctx context.Context, customerID, paymentMethodID string, lines []SubscriptionLine) (SubscriptionResult, error)
}

type stripeGateway struct {
	api *client.API
}

// NewStripeGateway builds the real gateway over the Stripe SDK.
func NewStripeGateway(secretKey string) StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &stripeGateway{api: api}
}

func (g *stripeGateway) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	params := &stripe.CustomerParams{
		Name:  stripe.String(name),
		Email: stripe.String(email),
	}
	params.Context = ctx
	customer, err := g.api.Customers.New(params)
	if err != nil {
		return "", err
	}
	return customer.ID, nil
}

func (g *stripeGateway) CreateSetupIntent(ctx context.Context, customerID string) (IntentResult, error) {
	params := &stripe.SetupIntentParams{
		Customer: stripe.String(customerID),
		Usage:    stripe.String("off_session"),
	}
	params.Context = ctx
	intent, err := g.api.SetupIntents.New(params)
	if err != nil {
		return IntentResult{}, err
	}
	return IntentResult{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (g *stripeGateway) CreatePaymentIntent(ctx context.Context, customerID, currency string, amount decimal.Decimal) (IntentResult, error) {
	cents := amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	params := &stripe.PaymentIntentParams{
		Customer:           stripe.String(customerID),
		Amount:             stripe.Int64(cents),
		Currency:           stripe.String(currency),
		SetupFutureUsage:   stripe.String("off_session"),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return IntentResult{}, err
	}
	return IntentResult{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (g *stripeGateway) CreateSubscription(ctx context.Context, customerID, paymentMethodID string, lines []SubscriptionLine) (SubscriptionResult, error) {
	items := make([]*stripe.SubscriptionItemsParams, 0, len(lines))
	for _, line := range lines {
		items = append(items, &stripe.SubscriptionItemsParams{
			Price:    stripe.String(line.PriceID),
			Quantity: stripe.Int64(line.Quantity),
		})
	}
	params := &stripe.SubscriptionParams{
		Customer:             stripe.String(customerID),
		DefaultPaymentMethod: stripe.String(paymentMethodID),
		Items:                items,
	}
	params.Context = ctx
	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return SubscriptionResult{}, err
	}

	result := SubscriptionResult{
		ID:      sub.ID,
		Status:  string(sub.Status),
		ItemIDs: make(map[string]string),
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price != nil {
				result.ItemIDs[item.Price.ID] = item.ID
			}
		}
	}
	return result, nil
}
