package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"notesdb/internal/domain"
)

// MongoStore implements Backend on MongoDB, one collection per entity.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

type mongoRecord struct {
	ID           string         `bson:"_id"`
	DataSourceID string         `bson:"dataSourceId"`
	Title        string         `bson:"title"`
	Properties   map[string]any `bson:"properties"`
	Position     int64          `bson:"position"`
}

// Settings are stored as their JSON text so rule values keep their
// single-or-list form.
type mongoView struct {
	ID           string    `bson:"_id"`
	DataSourceID string    `bson:"dataSourceId"`
	Name         string    `bson:"name"`
	SettingsJSON string    `bson:"settingsJson"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

// settingsRetries bounds compare-and-swap attempts on concurrent writes.
const settingsRetries = 3

// OpenMongo connects to uri. An empty database falls back to the URI path
// and then to "notesdb".
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		database = MongoDatabase(uri, "notesdb")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, domain.Transient("ping mongo", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) dataSources() *mongo.Collection { return s.db.Collection("data_sources") }
func (s *MongoStore) records() *mongo.Collection     { return s.db.Collection("records") }
func (s *MongoStore) views() *mongo.Collection       { return s.db.Collection("views") }
func (s *MongoStore) members() *mongo.Collection     { return s.db.Collection("members") }

func upsertOne(ctx context.Context, c *mongo.Collection, id string, doc any) error {
	_, err := c.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

// ── Data sources and records ───────────────────────────────

func (s *MongoStore) SaveDataSource(ctx context.Context, ds *domain.DataSource) error {
	return upsertOne(ctx, s.dataSources(), ds.ID, ds)
}

func (s *MongoStore) SaveRecord(ctx context.Context, r domain.Record) error {
	doc := mongoRecord{
		ID:           r.ID,
		DataSourceID: r.DataSourceID,
		Title:        r.Title,
		Properties:   make(map[string]any, len(r.Properties)),
	}
	for k, v := range r.Properties {
		doc.Properties[k] = v.Raw()
	}

	var existing mongoRecord
	err := s.records().FindOne(ctx, bson.M{"_id": r.ID}).Decode(&existing)
	switch {
	case err == nil:
		doc.Position = existing.Position
	case errors.Is(err, mongo.ErrNoDocuments):
		n, err := s.records().CountDocuments(ctx, bson.M{"dataSourceId": r.DataSourceID})
		if err != nil {
			return err
		}
		doc.Position = n + 1
	default:
		return err
	}
	return upsertOne(ctx, s.records(), r.ID, doc)
}

func (s *MongoStore) DeleteRecord(ctx context.Context, id string) error {
	_, err := s.records().DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoStore) FetchDataSource(ctx context.Context, id string) (*domain.DataSource, []domain.Record, error) {
	ds := &domain.DataSource{}
	if err := s.dataSources().FindOne(ctx, bson.M{"_id": id}).Decode(ds); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil, fmt.Errorf("data source %s: %w", id, domain.ErrNotFound)
		}
		return nil, nil, err
	}

	cur, err := s.records().Find(ctx, bson.M{"dataSourceId": id},
		options.Find().SetSort(bson.D{{Key: "position", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, nil, fmt.Errorf("list records of %s: %w", id, err)
	}
	var docs []mongoRecord
	if err := cur.All(ctx, &docs); err != nil {
		return nil, nil, fmt.Errorf("decode records of %s: %w", id, err)
	}

	records := make([]domain.Record, 0, len(docs))
	for _, d := range docs {
		r := domain.Record{ID: d.ID, DataSourceID: id, Title: d.Title, Properties: make(map[string]domain.Value, len(d.Properties))}
		for k, raw := range d.Properties {
			if arr, ok := raw.(bson.A); ok {
				raw = []any(arr)
			}
			r.Properties[k] = domain.ValueFromRaw(raw)
		}
		records = append(records, domain.NormalizeRecord(r, ds))
	}
	return ds, records, nil
}

// ── Views ──────────────────────────────────────────────────

func (s *MongoStore) SaveView(ctx context.Context, v domain.View) error {
	settings, err := json.Marshal(v.Settings)
	if err != nil {
		return fmt.Errorf("encode view %s: %w", v.ID, err)
	}
	return upsertOne(ctx, s.views(), v.ID, mongoView{
		ID:           v.ID,
		DataSourceID: v.DataSourceID,
		Name:         v.Name,
		SettingsJSON: string(settings),
		UpdatedAt:    time.Now().UTC(),
	})
}

func (s *MongoStore) getView(ctx context.Context, id string) (*mongoView, *domain.View, error) {
	doc := &mongoView{}
	if err := s.views().FindOne(ctx, bson.M{"_id": id}).Decode(doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil, fmt.Errorf("view %s: %w", id, domain.ErrNotFound)
		}
		return nil, nil, err
	}
	v, err := doc.view()
	return doc, v, err
}

func (d *mongoView) view() (*domain.View, error) {
	v := &domain.View{ID: d.ID, DataSourceID: d.DataSourceID, Name: d.Name}
	if err := json.Unmarshal([]byte(d.SettingsJSON), &v.Settings); err != nil {
		return nil, fmt.Errorf("decode view %s settings: %w", d.ID, err)
	}
	return v, nil
}

func (s *MongoStore) FetchView(ctx context.Context, id string) (*domain.View, error) {
	_, v, err := s.getView(ctx, id)
	return v, err
}

func (s *MongoStore) ListViews(ctx context.Context, dataSourceID string) ([]domain.View, error) {
	filter := bson.M{}
	if dataSourceID != "" {
		filter["dataSourceId"] = dataSourceID
	}
	cur, err := s.views().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []mongoView
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.View, 0, len(docs))
	for i := range docs {
		v, err := docs[i].view()
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// PersistViewSettings merges patch with a compare-and-swap on the stored
// settings text, retrying when another writer got there first.
func (s *MongoStore) PersistViewSettings(ctx context.Context, viewID string, patch domain.SettingsPatch) (*domain.ViewSettings, error) {
	for attempt := 0; attempt < settingsRetries; attempt++ {
		doc, v, err := s.getView(ctx, viewID)
		if err != nil {
			return nil, err
		}
		canonical := Canonicalize(viewID, v.Settings, patch)
		encoded, err := json.Marshal(canonical)
		if err != nil {
			return nil, fmt.Errorf("encode view %s settings: %w", viewID, err)
		}
		res, err := s.views().UpdateOne(ctx,
			bson.M{"_id": viewID, "settingsJson": doc.SettingsJSON},
			bson.M{"$set": bson.M{"settingsJson": string(encoded), "updatedAt": time.Now().UTC()}},
		)
		if err != nil {
			return nil, fmt.Errorf("update view %s settings: %w", viewID, err)
		}
		if res.MatchedCount == 1 {
			return &canonical, nil
		}
	}
	return nil, domain.Transient("persist view settings", fmt.Errorf("view %s changed concurrently", viewID))
}

// ── Members ────────────────────────────────────────────────

func (s *MongoStore) SaveMember(ctx context.Context, m domain.Member) error {
	return upsertOne(ctx, s.members(), m.ID, m)
}

func (s *MongoStore) ListMembers(ctx context.Context) ([]domain.Member, error) {
	cur, err := s.members().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []domain.Member
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ Backend = (*MongoStore)(nil)
