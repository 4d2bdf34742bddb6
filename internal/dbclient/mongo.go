package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"datakit/internal/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoConnector adapts MongoDB to the tabular Connector contract.
// Queries arrive as a JSON envelope instead of SQL; documents are
// flattened into rows over the union of observed field names.
type mongoConnector struct {
	client *mongo.Client
	dbName string

	mu     sync.Mutex
	cursor *mongo.Cursor
	cancel context.CancelFunc // releases the cursor's query context
	served int
}

// mongoQuery is the JSON envelope users write for MongoDB queries.
type mongoQuery struct {
	Collection string         `json:"collection"`
	Operation  string         `json:"operation,omitempty"` // find (default), aggregate
	Filter     map[string]any `json:"filter,omitempty"`
	Projection map[string]any `json:"projection,omitempty"`
	Sort       map[string]any `json:"sort,omitempty"`
	Pipeline   []any          `json:"pipeline,omitempty"` // for aggregate
}

func newMongoConnector(conn *domain.DatabaseConnection) (*mongoConnector, error) {
	uri := mongoURI(conn)

	dbName := conn.Database
	if dbName == "" {
		dbName = "test"
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	return &mongoConnector{client: client, dbName: dbName}, nil
}

// mongoURI accepts either a full connection string in Host (Atlas
// mongodb+srv:// or plain mongodb://) or assembles one from parts.
func mongoURI(conn *domain.DatabaseConnection) string {
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri := conn.Host
		if conn.Password != "" {
			uri = strings.ReplaceAll(uri, "<password>", conn.Password)
		}
		if conn.Database != "" && !strings.Contains(uri, "/"+conn.Database) {
			if idx := strings.Index(uri, "?"); idx != -1 {
				uri = uri[:idx] + "/" + conn.Database + uri[idx:]
			} else {
				uri = strings.TrimRight(uri, "/") + "/" + conn.Database
			}
		}
		return uri
	}

	port := conn.Port
	if port == 0 {
		port = 27017
	}
	uri := fmt.Sprintf("mongodb://%s:%d", conn.Host, port)
	if conn.Username != "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", conn.Username, conn.Password, conn.Host, port)
	}

	// extraJSON carries authSource, replicaSet and friends.
	if conn.ExtraJSON != "" && conn.ExtraJSON != "{}" {
		var extras map[string]string
		if json.Unmarshal([]byte(conn.ExtraJSON), &extras) == nil && len(extras) > 0 {
			var params []string
			for k, v := range extras {
				params = append(params, k+"="+v)
			}
			sort.Strings(params)
			uri += "?" + strings.Join(params, "&")
		}
	}
	return uri
}

// unmarshalEJSON re-encodes a map field through bson.UnmarshalExtJSON so
// Extended JSON types ($oid, $date, $numberLong, ...) become real BSON
// values. On any failure the plain JSON parse is kept.
func unmarshalEJSON(field map[string]any) map[string]any {
	if field == nil {
		return nil
	}
	raw, err := json.Marshal(field)
	if err != nil {
		return field
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return field
	}
	out := make(map[string]any, len(doc))
	for _, elem := range doc {
		out[elem.Key] = elem.Value
	}
	return out
}

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	if fetchSize <= 0 {
		fetchSize = 50
	}

	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return nil, fmt.Errorf("invalid query JSON: %w", err)
	}
	if mq.Collection == "" {
		return nil, fmt.Errorf("query must specify 'collection'")
	}
	mq.Filter = unmarshalEJSON(mq.Filter)
	mq.Projection = unmarshalEJSON(mq.Projection)
	mq.Sort = unmarshalEJSON(mq.Sort)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropCursorLocked(ctx)

	// Cursor context must survive this call so FetchMore can keep
	// paging; it is cancelled in dropCursorLocked with the cursor.
	ctx, cancel := context.WithCancel(ctx)

	cursor, err := m.openCursor(ctx, mq, fetchSize)
	if err != nil {
		cancel()
		return nil, err
	}
	m.cursor = cursor
	m.cancel = cancel
	m.served = 0

	return m.pageLocked(ctx, fetchSize)
}

func (m *mongoConnector) openCursor(ctx context.Context, mq mongoQuery, fetchSize int) (*mongo.Cursor, error) {
	coll := m.client.Database(m.dbName).Collection(mq.Collection)

	switch mq.Operation {
	case "", "find":
		opts := options.Find().SetBatchSize(int32(fetchSize))
		if mq.Projection != nil {
			opts.SetProjection(mq.Projection)
		}
		if mq.Sort != nil {
			opts.SetSort(mq.Sort)
		}
		filter := mq.Filter
		if filter == nil {
			filter = map[string]any{}
		}
		cursor, err := coll.Find(ctx, filter, opts)
		if err != nil {
			return nil, fmt.Errorf("find: %w", err)
		}
		return cursor, nil

	case "aggregate":
		pipeline := mq.Pipeline
		if pipeline == nil {
			pipeline = []any{}
		}
		cursor, err := coll.Aggregate(ctx, pipeline)
		if err != nil {
			return nil, fmt.Errorf("aggregate: %w", err)
		}
		return cursor, nil

	default:
		return nil, fmt.Errorf("unsupported operation: %s (connector is read-only)", mq.Operation)
	}
}

func (m *mongoConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	if fetchSize <= 0 {
		fetchSize = 50
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor == nil {
		return nil, fmt.Errorf("no active cursor — execute a query first")
	}
	return m.pageLocked(ctx, fetchSize)
}

// pageLocked decodes up to fetchSize documents and projects them onto a
// column grid: _id first, remaining fields alphabetical. Caller holds m.mu.
func (m *mongoConnector) pageLocked(ctx context.Context, fetchSize int) (*QueryPage, error) {
	var docs []bson.D
	for len(docs) < fetchSize && m.cursor.Next(ctx) {
		var doc bson.D
		if err := m.cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := m.cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	columns := unionFields(docs)
	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		byKey := make(map[string]any, len(doc))
		for _, elem := range doc {
			byKey[elem.Key] = elem.Value
		}
		row := make([]any, len(columns))
		for i, col := range columns {
			if v, ok := byKey[col]; ok {
				row[i] = fmt.Sprintf("%v", v)
			}
		}
		rows = append(rows, row)
	}

	m.served += len(docs)

	hasMore := len(docs) == fetchSize
	if !hasMore {
		m.dropCursorLocked(ctx)
	}

	return &QueryPage{
		Columns:      columns,
		Rows:         rows,
		TotalFetched: m.served,
		HasMore:      hasMore,
	}, nil
}

func unionFields(docs []bson.D) []string {
	seen := map[string]bool{}
	var columns []string
	for _, doc := range docs {
		for _, elem := range doc {
			if !seen[elem.Key] {
				seen[elem.Key] = true
				columns = append(columns, elem.Key)
			}
		}
	}
	sort.SliceStable(columns, func(i, j int) bool {
		if columns[i] == "_id" {
			return true
		}
		if columns[j] == "_id" {
			return false
		}
		return columns[i] < columns[j]
	})
	return columns
}

func (m *mongoConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db := m.client.Database(m.dbName)
	collections, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	schema := &SchemaInfo{}
	for _, name := range collections {
		// Field names come from a single sampled document; collections
		// are schemaless so this is a hint, not a contract.
		cols := m.sampleFields(ctx, db.Collection(name))
		schema.Tables = append(schema.Tables, TableInfo{Name: name, Columns: cols})
	}
	return schema, nil
}

func (m *mongoConnector) sampleFields(ctx context.Context, coll *mongo.Collection) []ColumnInfo {
	cursor, err := coll.Find(ctx, bson.M{}, options.Find().SetLimit(1))
	if err != nil {
		return nil
	}
	defer cursor.Close(ctx)

	var cols []ColumnInfo
	if cursor.Next(ctx) {
		var doc bson.M
		if cursor.Decode(&doc) == nil {
			for k, v := range doc {
				cols = append(cols, ColumnInfo{Name: k, Type: fmt.Sprintf("%T", v)})
			}
			sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
		}
	}
	return cols
}

func (m *mongoConnector) Close() error {
	m.mu.Lock()
	m.dropCursorLocked(context.Background())
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *mongoConnector) dropCursorLocked(ctx context.Context) {
	if m.cursor != nil {
		m.cursor.Close(ctx)
		m.cursor = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}
