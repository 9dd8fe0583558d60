/*
Package mongodb persists the leave ledger in MongoDB.

COLLECTIONS:
  transactions     ledger movements, sparse unique index on idempotency_key
  employees        employee directory
  leave_types      policy, limits and attachment rules embedded
  entitlements     unique (employee_id, leave_type_id); counters are Decimal128
  leave_requests   approval flow embedded
  adjustments, delegations, holidays, blocked_periods, batch_runs

ATOMICITY:
  IncrementEntitlement is a single $inc through FindOneAndUpdate, so
  concurrent writers never lose an update. SetEntitlementDerived sets
  only the derived fields and clamps a negative pending with a filtered
  update. AppendBatch inserts ordered and
  removes the inserted prefix when a later document fails.

Every operation runs under the store's per-call timeout.
*/
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const (
	colTransactions = "transactions"
	colEmployees    = "employees"
	colLeaveTypes   = "leave_types"
	colEntitlements = "entitlements"
	colRequests     = "leave_requests"
	colAdjustments  = "adjustments"
	colDelegations  = "delegations"
	colHolidays     = "holidays"
	colBlocked      = "blocked_periods"
	colRuns         = "batch_runs"
)

const (
	defaultDatabase = "leave"
	defaultTimeout  = 10 * time.Second
	connectTimeout  = 10 * time.Second
)

type Config struct {
	URI      string
	Database string
	Timeout  time.Duration // per operation
}

type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

// New connects, pings the primary and ensures indexes.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongodb uri is required")
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s, err := Open(ctx, client, cfg.Database, cfg.Timeout)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// Open uses an existing client.
func Open(ctx context.Context, client *mongo.Client, database string, timeout time.Duration) (*Store, error) {
	if database == "" {
		database = defaultDatabase
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s := &Store{client: client, db: client.Database(database), timeout: timeout}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		colTransactions: {
			{Keys: bson.D{{Key: "idempotency_key", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "entity_id", Value: 1}, {Key: "policy_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colEntitlements: {
			{Keys: bson.D{{Key: "employee_id", Value: 1}, {Key: "leave_type_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colRequests: {
			{Keys: bson.D{{Key: "employee_id", Value: 1}, {Key: "from", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colAdjustments: {
			{Keys: bson.D{{Key: "entitlement_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colDelegations: {
			{Keys: bson.D{{Key: "manager_id", Value: 1}, {Key: "from", Value: 1}}},
		},
		colRuns: {
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "started_at", Value: -1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

func (s *Store) col(name string) *mongo.Collection { return s.db.Collection(name) }

// =============================================================================
// TRANSACTION STORE (generic.Store interface)
// =============================================================================

type txDoc struct {
	ID             string               `bson:"_id"`
	EntityID       string               `bson:"entity_id"`
	PolicyID       string               `bson:"policy_id"`
	EntitlementID  string               `bson:"entitlement_id"`
	Type           string               `bson:"tx_type"`
	Field          string               `bson:"field"`
	Delta          primitive.Decimal128 `bson:"delta"`
	ReferenceID    string               `bson:"reference_id,omitempty"`
	Reason         string               `bson:"reason,omitempty"`
	IdempotencyKey string               `bson:"idempotency_key,omitempty"`
	CreatedBy      string               `bson:"created_by"`
	CreatedAt      time.Time            `bson:"created_at"`
}

func toTxDoc(tx generic.Transaction) (txDoc, error) {
	delta, err := toDecimal128(tx.Delta)
	if err != nil {
		return txDoc{}, err
	}
	return txDoc{
		ID:             string(tx.ID),
		EntityID:       string(tx.EntityID),
		PolicyID:       string(tx.PolicyID),
		EntitlementID:  tx.EntitlementID,
		Type:           string(tx.Type),
		Field:          string(tx.Field),
		Delta:          delta,
		ReferenceID:    tx.ReferenceID,
		Reason:         tx.Reason,
		IdempotencyKey: tx.IdempotencyKey,
		CreatedBy:      tx.CreatedBy,
		CreatedAt:      tx.CreatedAt.UTC(),
	}, nil
}

func (d txDoc) transaction() (generic.Transaction, error) {
	delta, err := fromDecimal128(d.Delta)
	if err != nil {
		return generic.Transaction{}, fmt.Errorf("transaction %s delta: %w", d.ID, err)
	}
	return generic.Transaction{
		ID:             generic.TransactionID(d.ID),
		EntityID:       generic.EntityID(d.EntityID),
		PolicyID:       generic.PolicyID(d.PolicyID),
		EntitlementID:  d.EntitlementID,
		Type:           generic.TransactionType(d.Type),
		Field:          generic.Field(d.Field),
		Delta:          delta,
		ReferenceID:    d.ReferenceID,
		Reason:         d.Reason,
		IdempotencyKey: d.IdempotencyKey,
		CreatedBy:      d.CreatedBy,
		CreatedAt:      d.CreatedAt.UTC(),
	}, nil
}

func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	doc, err := toTxDoc(tx)
	if err != nil {
		return err
	}
	if _, err := s.col(colTransactions).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// AppendBatch inserts txs in order. When an insert fails, the documents
// already written by this call are deleted before returning.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	keys := make(map[string]bool)
	docs := make([]any, 0, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if keys[tx.IdempotencyKey] {
				return generic.ErrDuplicateIdempotencyKey
			}
			keys[tx.IdempotencyKey] = true
		}
		doc, err := toTxDoc(tx)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	res, err := s.col(colTransactions).InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err == nil {
		return nil
	}
	if res != nil && len(res.InsertedIDs) > 0 {
		if _, derr := s.col(colTransactions).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": res.InsertedIDs}}); derr != nil {
			err = errors.Join(err, fmt.Errorf("undo partial batch: %w", derr))
		}
	}
	if mongo.IsDuplicateKeyError(err) {
		return generic.ErrDuplicateIdempotencyKey
	}
	return fmt.Errorf("failed to append batch: %w", err)
}

func (s *Store) Load(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID) ([]generic.Transaction, error) {
	return s.loadTransactions(ctx, bson.M{"entity_id": string(entityID), "policy_id": string(policyID)})
}

func (s *Store) LoadRange(ctx context.Context, entityID generic.EntityID, policyID generic.PolicyID, from, to time.Time) ([]generic.Transaction, error) {
	return s.loadTransactions(ctx, bson.M{
		"entity_id":  string(entityID),
		"policy_id":  string(policyID),
		"created_at": bson.M{"$gte": from.UTC(), "$lte": to.UTC()},
	})
}

func (s *Store) loadTransactions(ctx context.Context, filter bson.M) ([]generic.Transaction, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	// Ids are ObjectIDs, so _id breaks created_at ties in insertion order.
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	var docs []txDoc
	if err := findAll(ctx, s.col(colTransactions), filter, opts, &docs); err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	result := make([]generic.Transaction, 0, len(docs))
	for _, d := range docs {
		tx, err := d.transaction()
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, nil
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	n, err := s.col(colTransactions).CountDocuments(ctx, bson.M{"idempotency_key": idempotencyKey}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return n > 0, nil
}

// =============================================================================
// BATCH RUNS (generic.RunStore interface)
// =============================================================================

type runDoc struct {
	ID          string     `bson:"_id"`
	Kind        string     `bson:"kind"`
	LeaveTypeID string     `bson:"leave_type_id,omitempty"`
	Status      string     `bson:"status"`
	Succeeded   int        `bson:"succeeded"`
	Skipped     int        `bson:"skipped"`
	Failed      int        `bson:"failed"`
	Error       string     `bson:"error,omitempty"`
	StartedAt   time.Time  `bson:"started_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
}

func (s *Store) SaveRun(ctx context.Context, run generic.BatchRun) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	doc := runDoc{
		ID:          run.ID,
		Kind:        run.Kind,
		LeaveTypeID: run.LeaveTypeID,
		Status:      string(run.Status),
		Succeeded:   run.Succeeded,
		Skipped:     run.Skipped,
		Failed:      run.Failed,
		Error:       run.Error,
		StartedAt:   run.StartedAt.UTC(),
		CompletedAt: utcPtr(run.CompletedAt),
	}
	_, err := s.col(colRuns).ReplaceOne(ctx, bson.M{"_id": run.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs first. An empty kind matches all.
func (s *Store) ListRuns(ctx context.Context, kind string, limit int) ([]generic.BatchRun, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	filter := bson.M{}
	if kind != "" {
		filter["kind"] = kind
	}
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	var docs []runDoc
	if err := findAll(ctx, s.col(colRuns), filter, opts, &docs); err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	result := make([]generic.BatchRun, 0, len(docs))
	for _, d := range docs {
		result = append(result, generic.BatchRun{
			ID:          d.ID,
			Kind:        d.Kind,
			LeaveTypeID: d.LeaveTypeID,
			Status:      generic.RunStatus(d.Status),
			Succeeded:   d.Succeeded,
			Skipped:     d.Skipped,
			Failed:      d.Failed,
			Error:       d.Error,
			StartedAt:   d.StartedAt.UTC(),
			CompletedAt: utcPtr(d.CompletedAt),
		})
	}
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func findAll(ctx context.Context, col *mongo.Collection, filter any, opts *options.FindOptions, out any) error {
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, out)
}

func findOne(ctx context.Context, col *mongo.Collection, filter any, kind, id string, out any) error {
	err := col.FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound(kind, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return nil
}

// replace overwrites an existing document. Unknown ids are NotFound.
func replace(ctx context.Context, col *mongo.Collection, id string, doc any, kind string) error {
	res, err := col.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}
	if res.MatchedCount == 0 {
		return notFound(kind, id)
	}
	return nil
}

func upsert(ctx context.Context, col *mongo.Collection, id string, doc any, kind string) error {
	if _, err := col.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to save %s: %w", kind, err)
	}
	return nil
}

func deleteByID(ctx context.Context, col *mongo.Collection, id, kind string) error {
	res, err := col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if res.DeletedCount == 0 {
		return notFound(kind, id)
	}
	return nil
}

func notFound(kind, id string) error { return &generic.NotFoundError{Kind: kind, ID: id} }

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("decimal %s: %w", d, err)
	}
	return v, nil
}

// fromDecimal128 treats the zero value (field never written) as 0.
func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	if v == (primitive.Decimal128{}) {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v.String())
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Compile-time interface checks.
var (
	_ leave.Store         = (*Store)(nil)
	_ leave.CalendarStore = (*Store)(nil)
	_ generic.Store       = (*Store)(nil)
	_ generic.RunStore    = (*Store)(nil)
)
