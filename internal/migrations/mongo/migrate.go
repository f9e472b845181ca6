package mongo

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campusq/internal/migrations/mongo/validators"
	reservationsrepository "campusq/internal/reservations/repository"
	ticketsrepository "campusq/internal/tickets/repository"
	"campusq/pkg/logger"
)

// Definition is the schema and index set of one collection.
type Definition struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

func activeKeyIndex(field, name string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{{Key: field, Value: 1}},
		Options: options.Index().
			SetName(name).
			SetUnique(true).
			SetPartialFilterExpression(bson.M{field: bson.M{"$exists": true}}),
	}
}

var (
	ActivitiesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	}

	TicketsIndexes = []mongo.IndexModel{
		activeKeyIndex("active_holder", ticketsrepository.ActiveHolderIndex),
		{Keys: bson.D{
			{Key: "activity_id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "number", Value: 1},
		}},
		{
			Keys: bson.D{{Key: "no_show_deadline", Value: 1}},
			Options: options.Index().
				SetPartialFilterExpression(bson.M{"no_show_deadline": bson.M{"$exists": true}}),
		},
	}

	ReservationsIndexes = []mongo.IndexModel{
		activeKeyIndex("active_holder", reservationsrepository.ActiveHolderIndex),
		activeKeyIndex("active_slot", reservationsrepository.ActiveSlotIndex),
		{Keys: bson.D{
			{Key: "service_name", Value: 1},
			{Key: "start_time", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "admission_deadline", Value: 1},
		}},
	}
)

// Definitions lists every collection the engine stores records in.
func Definitions() map[string]Definition {
	return map[string]Definition{
		ticketsrepository.ActivitiesCollection: {
			Indexes:   ActivitiesIndexes,
			Validator: validators.ActivityValidator,
		},
		ticketsrepository.TicketsCollection: {
			Indexes:   TicketsIndexes,
			Validator: validators.TicketValidator,
		},
		reservationsrepository.ReservationsCollection: {
			Indexes:   ReservationsIndexes,
			Validator: validators.ReservationValidator,
		},
	}
}

func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	defs := Definitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := defs[name]
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection already exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	coll := db.Collection(name)
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
