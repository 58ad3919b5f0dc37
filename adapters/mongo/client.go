package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// CRM owns the connection to the caller-history database
type CRM struct {
	client    *mongo.Client
	db        *mongo.Database
	customers *CustomerRepository
	logger    *zap.Logger
}

// OpenCRM connects to uri, selects dbName and makes sure the customer
// collection is indexed before any webhook touches it.
func OpenCRM(ctx context.Context, uri, dbName string, logger *zap.Logger) (*CRM, error) {
	switch {
	case uri == "":
		return nil, fmt.Errorf("mongo: uri is required")
	case dbName == "":
		return nil, fmt.Errorf("mongo: database name is required")
	}

	// Webhooks are low volume; a small pool is plenty.
	opts := options.Client().
		ApplyURI(uri).
		SetAppName("natashamaes-concierge").
		SetMaxPoolSize(5).
		SetServerSelectionTimeout(5 * time.Second)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(dbName)
	customers := NewCustomerRepository(db, logger)
	if err := customers.EnsureIndexes(connectCtx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("CRM connected", zap.String("database", dbName))
	return &CRM{client: client, db: db, customers: customers, logger: logger}, nil
}

// Customers returns the indexed customer repository
func (c *CRM) Customers() *CustomerRepository {
	return c.customers
}

// Drop removes the whole database. Tests only.
func (c *CRM) Drop(ctx context.Context) error {
	return c.db.Drop(ctx)
}

func (c *CRM) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		c.logger.Warn("CRM disconnect failed", zap.Error(err))
		return err
	}
	return nil
}
