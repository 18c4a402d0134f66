package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sahaana/coopvault/backend/internal/domain"
)

const (
	transactionsCollection = "transactions"
	usersCollection        = "users"
)

// MongoOptions configures the MongoDB-backed store.
type MongoOptions struct {
	URI      string
	Database string
}

// ErrMissingURI indicates the Mongo connection string is not provided.
var ErrMissingURI = errors.New("mongo URI is required")

// MongoStore implements Store on top of MongoDB collections.
type MongoStore struct {
	client       *mongo.Client
	transactions *mongo.Collection
	users        *mongo.Collection
}

// NewMongoStore connects to MongoDB and verifies reachability before
// returning the store.
func NewMongoStore(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("verify mongo connectivity: %w", err)
	}

	db := client.Database(opts.Database)
	return &MongoStore{
		client:       client,
		transactions: db.Collection(transactionsCollection),
		users:        db.Collection(usersCollection),
	}, nil
}

func (s *MongoStore) FindTransactionByID(ctx context.Context, id string) (domain.Transaction, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// A reference that is not a valid object id cannot match an internal id.
		return domain.Transaction{}, ErrNotFound
	}
	return s.findTransaction(ctx, bson.M{"_id": oid})
}

func (s *MongoStore) FindTransactionByExternalID(ctx context.Context, externalID string) (domain.Transaction, error) {
	if externalID == "" {
		return domain.Transaction{}, ErrNotFound
	}
	return s.findTransaction(ctx, bson.M{"transactionId": externalID})
}

func (s *MongoStore) findTransaction(ctx context.Context, filter bson.M) (domain.Transaction, error) {
	var doc transactionDoc
	err := s.transactions.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Transaction{}, ErrNotFound
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("find transaction: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *MongoStore) CreateTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	now := time.Now().UTC()
	doc := transactionDocFrom(tx)
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if _, err := s.transactions.InsertOne(ctx, doc); err != nil {
		return domain.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *MongoStore) SaveTransaction(ctx context.Context, tx domain.Transaction) error {
	oid, err := primitive.ObjectIDFromHex(tx.ID)
	if err != nil {
		return fmt.Errorf("save transaction: invalid id %q", tx.ID)
	}

	doc := transactionDocFrom(tx)
	doc.ID = oid
	doc.UpdatedAt = time.Now().UTC()

	res, err := s.transactions.ReplaceOne(ctx, bson.M{"_id": oid}, doc)
	if err != nil {
		return fmt.Errorf("save transaction %s: %w", tx.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListTransactions(ctx context.Context, opts ListOptions) ([]domain.Transaction, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = opts.Status
	}
	if opts.UserID != "" {
		filter["userId"] = opts.UserID
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cursor, err := s.transactions.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var txs []domain.Transaction
	for cursor.Next(ctx) {
		var doc transactionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
		txs = append(txs, doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("list transactions cursor: %w", err)
	}
	return txs, nil
}

func (s *MongoStore) FindUserByID(ctx context.Context, id string) (domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.User{}, ErrNotFound
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return domain.User{}, ErrNotFound
	}
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (domain.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *MongoStore) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	now := time.Now().UTC()
	doc := userDocFrom(user)
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	doc.Email = strings.TrimSpace(strings.ToLower(doc.Email))
	doc.Version = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return doc.toDomain(), nil
}

// SaveUser overwrites the user record if and only if the stored version still
// matches the version the caller read. A lost race yields ErrVersionConflict.
func (s *MongoStore) SaveUser(ctx context.Context, user domain.User) error {
	oid, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		return fmt.Errorf("save user: invalid id %q", user.ID)
	}

	update := bson.M{
		"$set": bson.M{
			"name":                 user.Name,
			"email":                strings.TrimSpace(strings.ToLower(user.Email)),
			"savingsBalanceUSD":    user.SavingsBalanceUSD,
			"collateralBalanceUSD": user.CollateralBalanceUSD,
			"isMember":             user.IsMember,
			"membershipPaidAmount": user.MembershipPaidAmount,
			"membershipPaidAt":     user.MembershipPaidAt,
			"membershipExpiresAt":  user.MembershipExpiresAt,
			"updatedAt":            time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}

	res, err := s.users.UpdateOne(ctx, bson.M{"_id": oid, "version": user.Version}, update)
	if err != nil {
		return fmt.Errorf("save user %s: %w", user.ID, err)
	}
	if res.MatchedCount == 0 {
		count, err := s.users.CountDocuments(ctx, bson.M{"_id": oid})
		if err != nil {
			return fmt.Errorf("save user %s: %w", user.ID, err)
		}
		if count > 0 {
			return ErrVersionConflict
		}
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type transactionDoc struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	TransactionID     string             `bson:"transactionId,omitempty"`
	Type              string             `bson:"type"`
	Amount            float64            `bson:"amount"`
	Currency          string             `bson:"currency"`
	Status            string             `bson:"status"`
	Timestamp         time.Time          `bson:"timestamp"`
	UserID            string             `bson:"userId,omitempty"`
	UserName          string             `bson:"userName,omitempty"`
	UserEmail         string             `bson:"userEmail,omitempty"`
	Description       string             `bson:"description,omitempty"`
	CollateralBTC     float64            `bson:"collateralBTC"`
	LoanAmount        float64            `bson:"loanAmount"`
	AppliedToBalances bool               `bson:"appliedToBalances"`
	CreatedAt         time.Time          `bson:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt"`
}

func transactionDocFrom(tx domain.Transaction) transactionDoc {
	doc := transactionDoc{
		TransactionID:     tx.ExternalID,
		Type:              tx.Type,
		Amount:            tx.Amount,
		Currency:          tx.Currency,
		Status:            tx.Status,
		Timestamp:         tx.Timestamp,
		UserID:            tx.UserID,
		UserName:          tx.UserName,
		UserEmail:         tx.UserEmail,
		Description:       tx.Description,
		CollateralBTC:     tx.CollateralBTC,
		LoanAmount:        tx.LoanAmount,
		AppliedToBalances: tx.AppliedToBalances,
		CreatedAt:         tx.CreatedAt,
		UpdatedAt:         tx.UpdatedAt,
	}
	if tx.ID != "" {
		if oid, err := primitive.ObjectIDFromHex(tx.ID); err == nil {
			doc.ID = oid
		}
	}
	return doc
}

func (d transactionDoc) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:                d.ID.Hex(),
		ExternalID:        d.TransactionID,
		Type:              d.Type,
		Amount:            d.Amount,
		Currency:          d.Currency,
		Status:            d.Status,
		Timestamp:         d.Timestamp,
		UserID:            d.UserID,
		UserName:          d.UserName,
		UserEmail:         d.UserEmail,
		Description:       d.Description,
		CollateralBTC:     d.CollateralBTC,
		LoanAmount:        d.LoanAmount,
		AppliedToBalances: d.AppliedToBalances,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

type userDoc struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty"`
	Name                 string             `bson:"name"`
	Email                string             `bson:"email"`
	SavingsBalanceUSD    float64            `bson:"savingsBalanceUSD"`
	CollateralBalanceUSD float64            `bson:"collateralBalanceUSD"`
	IsMember             bool               `bson:"isMember"`
	MembershipPaidAmount float64            `bson:"membershipPaidAmount"`
	MembershipPaidAt     *time.Time         `bson:"membershipPaidAt,omitempty"`
	MembershipExpiresAt  *time.Time         `bson:"membershipExpiresAt,omitempty"`
	Version              int64              `bson:"version"`
	CreatedAt            time.Time          `bson:"createdAt"`
	UpdatedAt            time.Time          `bson:"updatedAt"`
}

func userDocFrom(user domain.User) userDoc {
	doc := userDoc{
		Name:                 user.Name,
		Email:                user.Email,
		SavingsBalanceUSD:    user.SavingsBalanceUSD,
		CollateralBalanceUSD: user.CollateralBalanceUSD,
		IsMember:             user.IsMember,
		MembershipPaidAmount: user.MembershipPaidAmount,
		MembershipPaidAt:     user.MembershipPaidAt,
		MembershipExpiresAt:  user.MembershipExpiresAt,
		Version:              user.Version,
		CreatedAt:            user.CreatedAt,
		UpdatedAt:            user.UpdatedAt,
	}
	if user.ID != "" {
		if oid, err := primitive.ObjectIDFromHex(user.ID); err == nil {
			doc.ID = oid
		}
	}
	return doc
}

func (d userDoc) toDomain() domain.User {
	return domain.User{
		ID:                   d.ID.Hex(),
		Name:                 d.Name,
		Email:                d.Email,
		SavingsBalanceUSD:    d.SavingsBalanceUSD,
		CollateralBalanceUSD: d.CollateralBalanceUSD,
		IsMember:             d.IsMember,
		MembershipPaidAmount: d.MembershipPaidAmount,
		MembershipPaidAt:     d.MembershipPaidAt,
		MembershipExpiresAt:  d.MembershipExpiresAt,
		Version:              d.Version,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}
