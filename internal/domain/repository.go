package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrAlreadyRegistered is returned when a slack user id or synapse user id
	// collides with an existing registration.
	ErrAlreadyRegistered = errors.New("chat user is already registered")
	// ErrNotFound is returned when no registration exists for the lookup key.
	ErrNotFound = errors.New("registered user not found")
)

type userCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// UserRepository persists and retrieves registered users in MongoDB.
type UserRepository struct {
	collection userCollection
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(collection userCollection) *UserRepository {
	return &UserRepository{collection: collection}
}

// Create inserts a registration with populated timestamps. A duplicate slack
// or synapse user id fails with ErrAlreadyRegistered; the row is never
// silently overwritten.
func (r *UserRepository) Create(ctx context.Context, user RegisteredUser) (RegisteredUser, error) {
	if r == nil || r.collection == nil {
		return RegisteredUser{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return RegisteredUser{}, errors.New("context is required")
	}
	if user.ChatUserID == "" {
		return RegisteredUser{}, errors.New("chat_user_id is required")
	}
	if user.RemoteUserID == "" {
		return RegisteredUser{}, errors.New("remote_user_id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return RegisteredUser{}, ErrAlreadyRegistered
		}
		return RegisteredUser{}, fmt.Errorf("insert registered user: %w", err)
	}

	return user, nil
}

// GetByChatUserID fetches a registration by slack user id. Absence is
// ErrNotFound, not a failure.
func (r *UserRepository) GetByChatUserID(ctx context.Context, chatUserID string) (RegisteredUser, error) {
	if r == nil || r.collection == nil {
		return RegisteredUser{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return RegisteredUser{}, errors.New("context is required")
	}
	if chatUserID == "" {
		return RegisteredUser{}, errors.New("chat_user_id is required")
	}

	result := r.collection.FindOne(ctx, bson.M{"chat_user_id": chatUserID})
	if result == nil {
		return RegisteredUser{}, errors.New("find registered user returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return RegisteredUser{}, ErrNotFound
		}
		return RegisteredUser{}, fmt.Errorf("find registered user: %w", err)
	}

	var user RegisteredUser
	if err := result.Decode(&user); err != nil {
		return RegisteredUser{}, fmt.Errorf("decode registered user: %w", err)
	}

	return user, nil
}

// AttachNodes records the debit and savings node ids once bank accounts are
// linked. The registration row is otherwise immutable.
func (r *UserRepository) AttachNodes(ctx context.Context, chatUserID, debitNodeID, savingsNodeID string) error {
	if r == nil || r.collection == nil {
		return errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if chatUserID == "" {
		return errors.New("chat_user_id is required")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"chat_user_id": chatUserID},
		bson.M{"$set": bson.M{
			"debit_node_id":   debitNodeID,
			"savings_node_id": savingsNodeID,
			"updated_at":      now,
		}},
	)
	if err != nil {
		return fmt.Errorf("attach nodes: %w", err)
	}
	if result != nil && result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}

type insertCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// recurringDoc is the bson projection of a RecurringTransaction. The amount is
// stored as a decimal string so no precision is lost in transit.
type recurringDoc struct {
	ID          string    `bson:"_id"`
	Amount      string    `bson:"amount"`
	Periodicity int       `bson:"periodicity"`
	ChatUserID  string    `bson:"chat_user_id"`
	CreatedAt   time.Time `bson:"created_at"`
}

// RecurringTransactionRepository persists recurring transfer intents.
type RecurringTransactionRepository struct {
	collection insertCollection
}

// NewRecurringTransactionRepository constructs a RecurringTransactionRepository.
func NewRecurringTransactionRepository(collection insertCollection) *RecurringTransactionRepository {
	return &RecurringTransactionRepository{collection: collection}
}

// Create inserts a recurring transaction with a fresh surrogate id. Amount and
// periodicity must be positive.
func (r *RecurringTransactionRepository) Create(ctx context.Context, trans RecurringTransaction) (RecurringTransaction, error) {
	if r == nil || r.collection == nil {
		return RecurringTransaction{}, errors.New("recurring transaction repository is not initialized")
	}
	if ctx == nil {
		return RecurringTransaction{}, errors.New("context is required")
	}
	if trans.ChatUserID == "" {
		return RecurringTransaction{}, errors.New("chat_user_id is required")
	}
	if !trans.Amount.IsPositive() {
		return RecurringTransaction{}, errors.New("amount must be positive")
	}
	if trans.Periodicity <= 0 {
		return RecurringTransaction{}, errors.New("periodicity must be positive")
	}

	if trans.ID == "" {
		trans.ID = uuid.NewString()
	}
	if trans.CreatedAt.IsZero() {
		trans.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	doc := recurringDoc{
		ID:          trans.ID,
		Amount:      trans.Amount.String(),
		Periodicity: trans.Periodicity,
		ChatUserID:  trans.ChatUserID,
		CreatedAt:   trans.CreatedAt,
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return RecurringTransaction{}, fmt.Errorf("insert recurring transaction: %w", err)
	}

	return trans, nil
}

// ListByChatUserID returns all recurring transactions owned by a slack user.
func (r *RecurringTransactionRepository) ListByChatUserID(ctx context.Context, chatUserID string) ([]RecurringTransaction, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("recurring transaction repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if chatUserID == "" {
		return nil, errors.New("chat_user_id is required")
	}

	cursor, err := r.collection.Find(ctx, bson.M{"chat_user_id": chatUserID})
	if err != nil {
		return nil, fmt.Errorf("find recurring transactions: %w", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var docs []recurringDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode recurring transactions: %w", err)
	}

	out := make([]RecurringTransaction, 0, len(docs))
	for _, doc := range docs {
		amount, parseErr := decimal.NewFromString(doc.Amount)
		if parseErr != nil {
			return nil, fmt.Errorf("parse stored amount %q: %w", doc.Amount, parseErr)
		}
		out = append(out, RecurringTransaction{
			ID:          doc.ID,
			Amount:      amount,
			Periodicity: doc.Periodicity,
			ChatUserID:  doc.ChatUserID,
			CreatedAt:   doc.CreatedAt,
		})
	}

	return out, nil
}
