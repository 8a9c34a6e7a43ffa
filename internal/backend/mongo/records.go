// Package mongo binds the Records contract to MongoDB. Numeric record ids
// come from a counters collection so creation order is preserved, and every
// successful write is pushed to the change feed, which is how subscribers
// learn to re-fetch.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Gamma101/web-chat/internal/apperr"
	"github.com/Gamma101/web-chat/internal/backend"
)

const countersColl = "counters"

type Records struct {
	db    *mongo.Database
	notif backend.Notifier
}

func NewRecords(db *mongo.Database, notif backend.Notifier) *Records {
	return &Records{db: db, notif: notif}
}

func (r *Records) notify(ctx context.Context, collection string) {
	if r.notif != nil {
		r.notif.Notify(ctx, collection)
	}
}

// nextID increments the per-collection sequence, creating it on first use.
func (r *Records) nextID(ctx context.Context, collection string) (int64, error) {
	res := r.db.Collection(countersColl).FindOneAndUpdate(ctx,
		bson.M{"_id": collection},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var out struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&out); err != nil {
		return 0, fmt.Errorf("next id for %s: %w", collection, err)
	}
	return out.Seq, nil
}

func (r *Records) Insert(ctx context.Context, collection string, doc backend.Doc) (backend.Doc, error) {
	d := make(backend.Doc, len(doc)+2)
	for k, v := range doc {
		d[k] = v
	}
	if _, ok := d["id"]; !ok {
		id, err := r.nextID(ctx, collection)
		if err != nil {
			return nil, err
		}
		d["id"] = id
	}
	if _, ok := d["created_at"]; !ok {
		d["created_at"] = time.Now().UTC()
	}
	if _, err := r.db.Collection(collection).InsertOne(ctx, bson.M(d)); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}
	r.notify(ctx, collection)
	return d, nil
}

func (r *Records) Update(ctx context.Context, collection string, filter backend.Filter, patch backend.Doc) error {
	_, err := r.db.Collection(collection).UpdateMany(ctx, filterToBson(filter), bson.M{"$set": bson.M(patch)})
	if err != nil {
		return fmt.Errorf("update %s: %w", collection, err)
	}
	r.notify(ctx, collection)
	return nil
}

func (r *Records) Delete(ctx context.Context, collection string, filter backend.Filter) error {
	_, err := r.db.Collection(collection).DeleteMany(ctx, filterToBson(filter))
	if err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	r.notify(ctx, collection)
	return nil
}

func (r *Records) Select(ctx context.Context, collection string, filter backend.Filter, orderBy string) ([]backend.Doc, error) {
	opts := options.Find()
	if orderBy != "" {
		opts.SetSort(bson.D{{Key: orderBy, Value: 1}})
	}
	cur, err := r.db.Collection(collection).Find(ctx, filterToBson(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", collection, err)
	}
	defer cur.Close(ctx)
	var out []backend.Doc
	for cur.Next(ctx) {
		var d bson.M
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, backend.Doc(d))
	}
	return out, cur.Err()
}

func (r *Records) SelectOne(ctx context.Context, collection string, filter backend.Filter) (backend.Doc, error) {
	var d bson.M
	err := r.db.Collection(collection).FindOne(ctx, filterToBson(filter)).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select one from %s: %w", collection, err)
	}
	return backend.Doc(d), nil
}

// filterToBson renders the equality/OR-of-AND filter as a mongo query.
func filterToBson(f backend.Filter) bson.M {
	if len(f.Any) == 0 {
		return bson.M{}
	}
	if len(f.Any) == 1 {
		return groupToBson(f.Any[0])
	}
	or := make([]bson.M, 0, len(f.Any))
	for _, g := range f.Any {
		or = append(or, groupToBson(g))
	}
	return bson.M{"$or": or}
}

func groupToBson(conds []backend.Cond) bson.M {
	m := bson.M{}
	for _, c := range conds {
		m[c.Field] = c.Value
	}
	return m
}
