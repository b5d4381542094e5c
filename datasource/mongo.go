package datasource

import (
	"context"
	"sync"
	"time"

	"github.com/hatlonely/blockx/filter"
	"github.com/hatlonely/blockx/record"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type MongoOptions struct {
	URI        string `cfg:"uri" def:"mongodb://localhost:27017"`
	Database   string `cfg:"database" validate:"required"`
	Collection string `cfg:"collection" validate:"required"`

	Columns []record.Column `cfg:"columns" validate:"required,dive"`
	Key     []string        `cfg:"key"`
	Sorting string          `cfg:"sorting"`

	Timeout     time.Duration `cfg:"timeout" def:"30s"`
	MaxPoolSize uint64        `cfg:"maxPoolSize" def:"100"`
	// Ping 创建时是否检查连接
	Ping bool `cfg:"ping" def:"true"`
}

// Mongo 以一个集合作为表，不支持事务
type Mongo struct {
	mu         sync.Mutex
	client     *mongo.Client
	collection *mongo.Collection
	cursor     *mongo.Cursor
	options    *MongoOptions
}

func NewMongoWithOptions(opts *MongoOptions) (*Mongo, error) {
	if opts == nil {
		return nil, errors.New("mongo options is nil")
	}
	if opts.Database == "" || opts.Collection == "" {
		return nil, errors.New("database and collection are required")
	}
	if len(opts.Columns) == 0 {
		return nil, errors.New("columns is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(opts.URI)
	if opts.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(opts.MaxPoolSize)
	}
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, errors.Wrap(err, "mongo.Connect failed")
	}
	if opts.Ping {
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, errors.Wrap(err, "client.Ping failed")
		}
	}

	o := *opts
	o.Timeout = timeout
	return &Mongo{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		options:    &o,
	}, nil
}

func (m *Mongo) Name() string             { return m.options.Collection }
func (m *Mongo) Columns() []record.Column { return m.options.Columns }
func (m *Mongo) Key() []string            { return m.options.Key }
func (m *Mongo) Sorting() string          { return m.options.Sorting }
func (m *Mongo) Transactional() bool      { return false }

// sortDocument "name asc, id desc" 转换为 mongo 排序文档
func sortDocument(sorting string) bson.D {
	var doc bson.D
	for _, k := range parseSorting(sorting) {
		direction := 1
		if k.desc {
			direction = -1
		}
		doc = append(doc, bson.E{Key: k.column, Value: direction})
	}
	return doc
}

func mongoFilter(where *filter.Structure) bson.M {
	if where == nil {
		return bson.M{}
	}
	return bson.M(where.ToMongo())
}

// fromDocument 按列投影并转换类型
func fromDocument(columns []record.Column, doc bson.M) map[string]any {
	row := make(map[string]any, len(columns))
	for _, c := range columns {
		v := doc[c.Name]
		if dt, ok := v.(interface{ Time() time.Time }); ok {
			v = dt.Time()
		}
		if converted, err := c.Type.Coerce(v); err == nil {
			v = converted
		}
		row[c.Name] = v
	}
	return row
}

func (m *Mongo) Query(ctx context.Context, where *filter.Structure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor != nil {
		_ = m.cursor.Close(ctx)
		m.cursor = nil
	}
	findOptions := options.Find()
	if sort := sortDocument(m.options.Sorting); len(sort) > 0 {
		findOptions.SetSort(sort)
	}
	cursor, err := m.collection.Find(ctx, mongoFilter(where), findOptions)
	if err != nil {
		return errors.Wrapf(err, "find %s failed", m.options.Collection)
	}
	m.cursor = cursor
	return nil
}

func (m *Mongo) Fetch(ctx context.Context) (map[string]any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == nil {
		return nil, false, ErrNoQuery
	}
	if !m.cursor.Next(ctx) {
		err := m.cursor.Err()
		_ = m.cursor.Close(ctx)
		m.cursor = nil
		if err != nil {
			return nil, false, errors.Wrap(err, "cursor.Next failed")
		}
		return nil, false, nil
	}
	var doc bson.M
	if err := m.cursor.Decode(&doc); err != nil {
		return nil, false, errors.Wrap(err, "cursor.Decode failed")
	}
	return fromDocument(m.options.Columns, doc), true, nil
}

func (m *Mongo) Insert(ctx context.Context, rec *record.Record) error {
	if _, err := m.collection.InsertOne(ctx, bson.M(backedValues(m, rec, false))); err != nil {
		return errors.Wrapf(err, "insert %s failed", m.options.Collection)
	}
	return nil
}

func (m *Mongo) Update(ctx context.Context, rec *record.Record) error {
	values := backedValues(m, rec, true)
	if len(values) == 0 {
		return nil
	}
	result, err := m.collection.UpdateOne(ctx, mongoFilter(keyFilter(m, rec)), bson.M{"$set": bson.M(values)})
	if err != nil {
		return errors.Wrapf(err, "update %s failed", m.options.Collection)
	}
	if result.MatchedCount == 0 {
		return errors.Wrapf(ErrNotFound, "update %s", m.options.Collection)
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, rec *record.Record) error {
	result, err := m.collection.DeleteOne(ctx, mongoFilter(keyFilter(m, rec)))
	if err != nil {
		return errors.Wrapf(err, "delete %s failed", m.options.Collection)
	}
	if result.DeletedCount == 0 {
		return errors.Wrapf(ErrNotFound, "delete %s", m.options.Collection)
	}
	return nil
}

func (m *Mongo) Lock(ctx context.Context, rec *record.Record) error {
	row, err := m.Refresh(ctx, rec)
	if err != nil {
		return err
	}
	return verifyUnchanged(m, rec, row)
}

func (m *Mongo) Refresh(ctx context.Context, rec *record.Record) (map[string]any, error) {
	var doc bson.M
	err := m.collection.FindOne(ctx, mongoFilter(keyFilter(m, rec))).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(ErrNotFound, "refresh %s", m.options.Collection)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find %s failed", m.options.Collection)
	}
	return fromDocument(m.options.Columns, doc), nil
}

func (m *Mongo) Commit(ctx context.Context) error {
	return nil
}

func (m *Mongo) Rollback(ctx context.Context) error {
	return nil
}

func (m *Mongo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.options.Timeout)
	defer cancel()
	if m.cursor != nil {
		_ = m.cursor.Close(ctx)
		m.cursor = nil
	}
	return m.client.Disconnect(ctx)
}
