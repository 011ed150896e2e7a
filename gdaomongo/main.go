// Package gdaomongo provides a MongoDB adapter for gdao. Tables map
// to collections, and the "id" column maps to Mongo's "_id" field.
package gdaomongo

import (
	"context"
	"fmt"
	"time"

	"github.com/lemmego/gdao"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// =====================================
// Factory Implementation
// =====================================

// Factory implements gdao.BackendFactory
type Factory struct{}

// Create creates a new MongoDB backend instance
func (f *Factory) Create(config gdao.Config) (gdao.Backend, error) {
	clientOpts := options.Client().ApplyURI(buildConnectionURI(config))

	if config.MaxOpenConns > 0 {
		clientOpts.SetMaxPoolSize(uint64(config.MaxOpenConns))
	}
	if config.ConnMaxIdleTime > 0 {
		clientOpts.SetMaxConnIdleTime(config.ConnMaxIdleTime)
	}
	if opts, ok := config.Options["mongo"]; ok {
		if mongoOpts, ok := opts.(map[string]interface{}); ok {
			applyClientOptions(clientOpts, mongoOpts)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, gdao.NewErrorWithCause(gdao.ErrorTypeConnection,
			"failed to connect to MongoDB", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, gdao.NewErrorWithCause(gdao.ErrorTypeConnection,
			"failed to ping MongoDB", err)
	}

	return &Backend{
		client:   client,
		database: client.Database(config.Database),
		config:   config,
	}, nil
}

// SupportedDrivers returns the list of supported database drivers
func (f *Factory) SupportedDrivers() []string {
	return []string{"mongodb", "mongo"}
}

// buildConnectionURI builds a MongoDB connection URI
func buildConnectionURI(config gdao.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	uri := "mongodb://"
	if config.Username != "" {
		uri += config.Username
		if config.Password != "" {
			uri += ":" + config.Password
		}
		uri += "@"
	}

	host := config.Host
	if host == "" {
		host = "localhost"
	}
	port := config.Port
	if port == 0 {
		port = 27017
	}
	uri += fmt.Sprintf("%s:%d", host, port)

	if config.Database != "" {
		uri += "/" + config.Database
	}
	if config.SSL.Enabled {
		uri += "?ssl=true"
		if config.SSL.CAFile != "" {
			uri += "&sslCAFile=" + config.SSL.CAFile
		}
		if config.SSL.CertFile != "" {
			uri += "&sslCertificateKeyFile=" + config.SSL.CertFile
		}
	}
	return uri
}

// applyClientOptions applies MongoDB-specific client options
func applyClientOptions(clientOpts *options.ClientOptions, mongoOpts map[string]interface{}) {
	if maxPoolSize, ok := mongoOpts["max_pool_size"].(int); ok {
		clientOpts.SetMaxPoolSize(uint64(maxPoolSize))
	}
	if minPoolSize, ok := mongoOpts["min_pool_size"].(int); ok {
		clientOpts.SetMinPoolSize(uint64(minPoolSize))
	}
	if maxIdleTime, ok := mongoOpts["max_idle_time"].(time.Duration); ok {
		clientOpts.SetMaxConnIdleTime(maxIdleTime)
	}
}

// =====================================
// Backend Implementation
// =====================================

// Backend implements gdao.Backend using MongoDB
type Backend struct {
	client   *mongo.Client
	database *mongo.Database
	config   gdao.Config
}

// Database exposes the underlying mongo.Database for index setup
func (b *Backend) Database() *mongo.Database {
	return b.database
}

// Info returns information about this backend
func (b *Backend) Info() gdao.BackendInfo {
	return gdao.BackendInfo{
		Name:         "MongoDB",
		Version:      "1.0.0",
		DatabaseType: gdao.DatabaseTypeDocument,
		Features: []gdao.Feature{
			gdao.FeatureTransactions,
			gdao.FeatureRawQueries,
			gdao.FeatureIndexing,
			gdao.FeatureTTL,
		},
	}
}

// Select retrieves all documents matching the filter
func (b *Backend) Select(ctx context.Context, table string, filter gdao.Filter, projection []string) ([]gdao.Record, error) {
	findOpts := options.Find()
	if len(projection) > 0 {
		proj := bson.M{}
		for _, field := range projection {
			proj[fieldName(field)] = 1
		}
		findOpts.SetProjection(proj)
	}
	if sortDoc := buildSort(filter); len(sortDoc) > 0 {
		findOpts.SetSort(sortDoc)
	}
	if filter.Limit > 0 {
		findOpts.SetLimit(int64(filter.Limit))
	}

	cursor, err := b.database.Collection(table).Find(ctx, buildFilter(filter), findOpts)
	if err != nil {
		return nil, convertMongoError(err)
	}
	defer cursor.Close(ctx)

	var records []gdao.Record
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, convertMongoError(err)
		}
		records = append(records, fromDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, convertMongoError(err)
	}
	return records, nil
}

// SelectOne retrieves a single document matching the filter
func (b *Backend) SelectOne(ctx context.Context, table string, filter gdao.Filter) (gdao.Record, error) {
	findOpts := options.FindOne()
	if sortDoc := buildSort(filter); len(sortDoc) > 0 {
		findOpts.SetSort(sortDoc)
	}

	var doc bson.M
	err := b.database.Collection(table).FindOne(ctx, buildFilter(filter), findOpts).Decode(&doc)
	if err != nil {
		return nil, convertMongoError(err)
	}
	return fromDocument(doc), nil
}

// Count returns the number of documents matching the filter
func (b *Backend) Count(ctx context.Context, table string, filter gdao.Filter) (int64, error) {
	count, err := b.database.Collection(table).CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		return 0, convertMongoError(err)
	}
	return count, nil
}

// Insert writes one document and returns it as stored, with the
// server-assigned object id surfaced under "id".
func (b *Backend) Insert(ctx context.Context, table string, row gdao.Record) (gdao.Record, error) {
	doc := toDocument(row)
	result, err := b.database.Collection(table).InsertOne(ctx, doc)
	if err != nil {
		return nil, convertMongoError(err)
	}
	return b.SelectOne(ctx, table, gdao.Eq("id", result.InsertedID))
}

// Update applies the row's fields to every document matching the
// filter and returns the updated document as stored.
func (b *Backend) Update(ctx context.Context, table string, row gdao.Record, filter gdao.Filter) (gdao.Record, error) {
	update := bson.M{"$set": toDocument(row)}
	if _, err := b.database.Collection(table).UpdateMany(ctx, buildFilter(filter), update); err != nil {
		return nil, convertMongoError(err)
	}
	return b.SelectOne(ctx, table, filter)
}

// Delete removes all documents matching the filter. Matching zero
// documents is not an error.
func (b *Backend) Delete(ctx context.Context, table string, filter gdao.Filter) error {
	_, err := b.database.Collection(table).DeleteMany(ctx, buildFilter(filter))
	return convertMongoError(err)
}

// RPC runs a database command by name with the given parameters and
// returns its result documents. Cursor-shaped replies (aggregate,
// find) yield their first batch; other replies yield the reply
// document itself.
func (b *Backend) RPC(ctx context.Context, name string, params map[string]interface{}) ([]gdao.Record, error) {
	command := bson.D{{Key: name, Value: 1}}
	if target, ok := params["collection"].(string); ok {
		command[0].Value = target
	}
	for key, value := range params {
		if key == "collection" {
			continue
		}
		command = append(command, bson.E{Key: key, Value: value})
	}

	var reply bson.M
	if err := b.database.RunCommand(ctx, command).Decode(&reply); err != nil {
		return nil, convertMongoError(err)
	}

	if cursor, ok := reply["cursor"].(bson.M); ok {
		if batch, ok := cursor["firstBatch"].(bson.A); ok {
			records := make([]gdao.Record, 0, len(batch))
			for _, item := range batch {
				if doc, ok := item.(bson.M); ok {
					records = append(records, fromDocument(doc))
				}
			}
			return records, nil
		}
	}
	return []gdao.Record{fromDocument(reply)}, nil
}

// Health checks the MongoDB connection health
func (b *Backend) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB
func (b *Backend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return b.client.Disconnect(ctx)
}

// =====================================
// Document Mapping
// =====================================

// fieldName maps the portable "id" column to Mongo's "_id"
func fieldName(column string) string {
	if column == "id" {
		return "_id"
	}
	return column
}

// idValue converts hex object-id strings to primitive.ObjectID so
// ids round-trip through the portable Record form.
func idValue(value interface{}) interface{} {
	if s, ok := value.(string); ok {
		if oid, err := primitive.ObjectIDFromHex(s); err == nil {
			return oid
		}
	}
	return value
}

// buildFilter converts a gdao filter to a bson filter document
func buildFilter(filter gdao.Filter) bson.M {
	doc := bson.M{}
	for column, value := range filter.Eq {
		if column == "id" {
			doc["_id"] = idValue(value)
			continue
		}
		doc[column] = value
	}
	for column, values := range filter.In {
		converted := make(bson.A, len(values))
		for i, value := range values {
			if column == "id" {
				converted[i] = idValue(value)
			} else {
				converted[i] = value
			}
		}
		doc[fieldName(column)] = bson.M{"$in": converted}
	}
	return doc
}

// buildSort converts a gdao order list to a bson sort document
func buildSort(filter gdao.Filter) bson.D {
	sort := bson.D{}
	for _, order := range filter.Order {
		direction := 1
		if order.Direction == gdao.OrderDesc {
			direction = -1
		}
		sort = append(sort, bson.E{Key: fieldName(order.Field), Value: direction})
	}
	return sort
}

// toDocument converts a record to a bson document for writes
func toDocument(row gdao.Record) bson.M {
	doc := bson.M{}
	for column, value := range row {
		if column == "id" {
			doc["_id"] = idValue(value)
			continue
		}
		doc[column] = value
	}
	return doc
}

// fromDocument converts a bson document to a record, surfacing "_id"
// as "id" (object ids as their hex form)
func fromDocument(doc bson.M) gdao.Record {
	rec := make(gdao.Record, len(doc))
	for field, value := range doc {
		if field == "_id" {
			if oid, ok := value.(primitive.ObjectID); ok {
				rec["id"] = oid.Hex()
			} else {
				rec["id"] = value
			}
			continue
		}
		rec[field] = value
	}
	return rec
}

// =====================================
// Registration
// =====================================

// init registers the MongoDB backend factory
func init() {
	gdao.RegisterBackend("mongo", &Factory{})
}
