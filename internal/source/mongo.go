package source

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sells-group/compare-engine/internal/record"
)

// Mongo reads every document matching a filter from one collection.
type Mongo struct {
	name   string
	coll   *mongo.Collection
	filter bson.M
	client *mongo.Client
}

// NewMongo wraps an existing collection. A nil filter matches everything.
func NewMongo(name string, coll *mongo.Collection, filter bson.M) *Mongo {
	if filter == nil {
		filter = bson.M{}
	}
	return &Mongo{name: name, coll: coll, filter: filter}
}

// ParseFilter decodes a relaxed extended-JSON filter such as
// {"region": "Berlin"}. Blank input matches everything.
func ParseFilter(query string) (bson.M, error) {
	filter := bson.M{}
	if strings.TrimSpace(query) == "" {
		return filter, nil
	}
	if err := bson.UnmarshalExtJSON([]byte(query), false, &filter); err != nil {
		return nil, eris.Wrap(err, "mongo: parse filter")
	}
	return filter, nil
}

// OpenMongo connects to uri and reads collection in database.
func OpenMongo(ctx context.Context, name, uri, database, collection, query string) (*Mongo, error) {
	if uri == "" {
		return nil, eris.Errorf("source %s: mongodb source needs a url", name)
	}
	if database == "" || collection == "" {
		return nil, eris.Errorf("source %s: mongodb source needs a database and collection", name)
	}
	filter, err := ParseFilter(query)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrap(err, "mongo: connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, eris.Wrap(err, "mongo: ping")
	}
	m := NewMongo(name, client.Database(database).Collection(collection), filter)
	m.client = client
	return m, nil
}

// Name implements Source.
func (m *Mongo) Name() string { return m.name }

// Close disconnects the client when the source owns it.
func (m *Mongo) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// Load implements Source.
func (m *Mongo) Load(ctx context.Context) ([]record.Raw, error) {
	cur, err := m.coll.Find(ctx, m.filter)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: find")
	}
	defer cur.Close(ctx) //nolint:errcheck

	var out []record.Raw
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, eris.Wrap(err, "mongo: decode document")
		}
		if rec := record.FromAny(fromBSON(doc)); rec != nil {
			out = append(out, rec)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, eris.Wrap(err, "mongo: iterate cursor")
	}
	return out, nil
}

// fromBSON converts driver types into the plain values the rest of the
// engine understands: documents become records, arrays []any, ids hex.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		rec := make(record.Raw, len(t))
		for k, val := range t {
			rec[k] = fromBSON(val)
		}
		return rec
	case bson.D:
		rec := make(record.Raw, len(t))
		for _, e := range t {
			rec[e.Key] = fromBSON(e.Value)
		}
		return rec
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = fromBSON(val)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return t.String()
	case int32:
		return int64(t)
	default:
		return v
	}
}
