package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// OrphanRecord — объект в хранилище, на который больше не ссылается ни одна
// запись, но удалить который не получилось. Реестр делает такие утечки
// находимыми: их можно вычистить вручную или фоновым скриптом.
type OrphanRecord struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FileURL    string             `bson:"file_url" json:"file_url"`
	Reason     string             `bson:"reason" json:"reason"`
	RecordedAt time.Time          `bson:"recorded_at" json:"recorded_at"`
}

type OrphanRegistry interface {
	Record(ctx context.Context, fileURL, reason string) error
	List(ctx context.Context) ([]OrphanRecord, error)
}

type mongoOrphanRegistry struct {
	collection *mongo.Collection
}

func NewOrphanRegistry(collection *mongo.Collection) OrphanRegistry {
	return &mongoOrphanRegistry{collection: collection}
}

func (r *mongoOrphanRegistry) Record(ctx context.Context, fileURL, reason string) error {
	_, err := r.collection.InsertOne(ctx, OrphanRecord{
		FileURL:    fileURL,
		Reason:     reason,
		RecordedAt: time.Now().UTC(),
	})
	return err
}

func (r *mongoOrphanRegistry) List(ctx context.Context) ([]OrphanRecord, error) {
	cur, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var records []OrphanRecord
	for cur.Next(ctx) {
		var rec OrphanRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
