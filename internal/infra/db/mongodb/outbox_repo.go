package mongodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	sharedDomain "github.com/davicafu/orderflow/internal/shared/domain"
)

// OutboxRepoMongoDB implementa la interfaz sharedDomain.OutboxRepository
// para despliegues sobre document store.
type OutboxRepoMongoDB struct {
	outboxColl *mongo.Collection
}

func NewOutboxRepoMongoDB(client *mongo.Client, dbName string) *OutboxRepoMongoDB {
	outboxColl := client.Database(dbName).Collection("outbox")
	return &OutboxRepoMongoDB{outboxColl: outboxColl}
}

// mongoOutboxRecord es un helper para mapear documentos a struct.
type mongoOutboxRecord struct {
	ID             uuid.UUID         `bson:"_id"`
	AggregateType  string            `bson:"aggregateType"`
	AggregateID    string            `bson:"aggregateId"`
	EventType      string            `bson:"eventType"`
	Payload        string            `bson:"payload"`
	Metadata       map[string]string `bson:"eventMetadata"`
	IdempotencyKey string            `bson:"idempotencyKey"`
	Processed      bool              `bson:"processed"`
	ProcessedAt    *time.Time        `bson:"processedAt,omitempty"`
	CreatedAt      time.Time         `bson:"createdAt"`
}

// InsertBatch escribe el lote en una única llamada InsertMany. Si el scope es
// una mongo.SessionContext del llamante, la escritura participa en su sesión.
func (r *OutboxRepoMongoDB) InsertBatch(ctx context.Context, scope sharedDomain.TxScope, records []sharedDomain.OutboxRecord) error {
	if len(records) == 0 {
		return nil
	}

	if sc, ok := scope.(mongo.SessionContext); ok && sc != nil {
		ctx = sc
	}

	docs := make([]interface{}, 0, len(records))
	for _, rec := range records {
		docs = append(docs, toMongoOutboxRecord(rec))
	}

	_, err := r.outboxColl.InsertMany(ctx, docs)
	return err
}

// FetchPending obtiene los registros no procesados de la colección outbox.
func (r *OutboxRepoMongoDB) FetchPending(ctx context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	filter := bson.M{"processed": false}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.outboxColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []sharedDomain.OutboxRecord
	for cursor.Next(ctx) {
		var mo mongoOutboxRecord
		if err := cursor.Decode(&mo); err != nil {
			return nil, err
		}
		records = append(records, fromMongoOutboxRecord(&mo))
	}

	return records, cursor.Err()
}

// MarkProcessed marca el registro como publicado.
func (r *OutboxRepoMongoDB) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	filter := bson.M{"_id": id, "processed": false}
	update := bson.M{"$set": bson.M{"processed": true, "processedAt": at}}

	res, err := r.outboxColl.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("outbox record not found or already processed: %s", id)
	}

	return nil
}

func toMongoOutboxRecord(rec sharedDomain.OutboxRecord) mongoOutboxRecord {
	return mongoOutboxRecord{
		ID:             rec.ID,
		AggregateType:  rec.AggregateType,
		AggregateID:    rec.AggregateID,
		EventType:      rec.EventType,
		Payload:        string(rec.Payload),
		Metadata:       rec.Metadata,
		IdempotencyKey: rec.IdempotencyKey,
		Processed:      rec.Processed,
		ProcessedAt:    rec.ProcessedAt,
		CreatedAt:      rec.CreatedAt,
	}
}

func fromMongoOutboxRecord(mo *mongoOutboxRecord) sharedDomain.OutboxRecord {
	return sharedDomain.OutboxRecord{
		ID:             mo.ID,
		AggregateType:  mo.AggregateType,
		AggregateID:    mo.AggregateID,
		EventType:      mo.EventType,
		Payload:        json.RawMessage(mo.Payload),
		Metadata:       mo.Metadata,
		IdempotencyKey: mo.IdempotencyKey,
		Processed:      mo.Processed,
		ProcessedAt:    mo.ProcessedAt,
		CreatedAt:      mo.CreatedAt,
	}
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoMongoDB)(nil)
