package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/natashamaes/concierge/domain/entities"
	"github.com/natashamaes/concierge/domain/repositories"
)

const customersCollection = "customers"

// CustomerRepository stores CRM customers keyed by normalized phone number
type CustomerRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

// NewCustomerRepository creates a new MongoDB customer repository
func NewCustomerRepository(db *mongo.Database, logger *zap.Logger) *CustomerRepository {
	return &CustomerRepository{
		collection: db.Collection(customersCollection),
		logger:     logger,
	}
}

// EnsureIndexes creates the unique phone index
func (r *CustomerRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "phone", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create phone index: %w", err)
	}
	return nil
}

// GetByPhone implements repositories.CustomerRepository
func (r *CustomerRepository) GetByPhone(ctx context.Context, phone string) (*entities.Customer, error) {
	clean := entities.NormalizePhone(phone)
	if clean == "" {
		return nil, nil
	}

	var customer entities.Customer
	err := r.collection.FindOne(ctx, bson.M{"phone": clean}).Decode(&customer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get customer %s: %w", clean, err)
	}

	return &customer, nil
}

// Upsert implements repositories.CustomerRepository. Empty fields never
// overwrite stored values.
func (r *CustomerRepository) Upsert(ctx context.Context, customer *entities.Customer) error {
	if customer == nil {
		return errors.New("customer cannot be nil")
	}

	clean := entities.NormalizePhone(customer.Phone)
	if clean == "" {
		return errors.New("customer phone cannot be empty")
	}

	now := time.Now()
	set := bson.M{"phone": clean, "updated_at": now}
	for key, value := range map[string]string{
		"name":                customer.Name,
		"email":               customer.Email,
		"last_payment_amount": customer.LastPaymentAmount,
		"last_payment_date":   customer.LastPaymentDate,
		"event_type":          customer.EventType,
		"venue":               customer.Venue,
		"event_date":          customer.EventDate,
		"notes":               customer.Notes,
	} {
		if value != "" {
			set[key] = value
		}
	}

	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"phone": clean}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert customer %s: %w", clean, err)
	}

	r.logger.Debug("Customer upserted", zap.String("phone", clean))
	return nil
}
