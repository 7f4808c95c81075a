// Package payment creates billable customers at the payment provider.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// CustomerRequest describes the customer to create.
type CustomerRequest struct {
	Email     string
	Name      string
	SubjectID string // messaging identity, stored as provider metadata
}

// Customer is the provider-side customer record.
type Customer struct {
	ID string
}

// Provisioner creates payment customers. CreateCustomer is not idempotent and
// must not be retried by callers.
type Provisioner interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (Customer, error)
}

// OmiseProvisioner creates customers through the Omise API.
type OmiseProvisioner struct {
	create func(*omise.Customer, *operations.CreateCustomer) error
}

// NewOmiseProvisioner builds a provisioner from the account keys.
func NewOmiseProvisioner(publicKey, secretKey string) (*OmiseProvisioner, error) {
	client, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	return &OmiseProvisioner{
		create: func(c *omise.Customer, op *operations.CreateCustomer) error {
			return client.Do(c, op)
		},
	}, nil
}

func (p *OmiseProvisioner) CreateCustomer(ctx context.Context, req CustomerRequest) (Customer, error) {
	if err := ctx.Err(); err != nil {
		return Customer{}, err
	}
	op := &operations.CreateCustomer{
		Email:       req.Email,
		Description: strings.TrimSpace(req.Name),
		Metadata:    map[string]interface{}{"subject_id": req.SubjectID},
	}
	var c omise.Customer
	if err := p.create(&c, op); err != nil {
		var oe *omise.Error
		if errors.As(err, &oe) {
			return Customer{}, fmt.Errorf("omise %s (status %d): %s", oe.Code, oe.StatusCode, oe.Message)
		}
		return Customer{}, fmt.Errorf("omise create customer: %w", err)
	}
	if c.ID == "" {
		return Customer{}, errors.New("omise create customer: empty customer id")
	}
	return Customer{ID: c.ID}, nil
}

// LocalProvisioner mints fake customer ids. Used in development when no
// provider keys are configured.
type LocalProvisioner struct{}

func (LocalProvisioner) CreateCustomer(ctx context.Context, _ CustomerRequest) (Customer, error) {
	if err := ctx.Err(); err != nil {
		return Customer{}, err
	}
	return Customer{ID: "cust_local_" + uuid.NewString()}, nil
}
