package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	reservationserrors "campusq/internal/reservations/errors"
	"campusq/pkg/config"
	mongotx "campusq/pkg/db/mongo"
	"campusq/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ReservationsCollection = "reservations"

	// Both keys are only present while the reservation is active, so the
	// unique partial indexes over them enforce one active reservation per
	// holder and per slot.
	ActiveHolderIndex = "uniq_active_holder"
	ActiveSlotIndex   = "uniq_active_slot"
)

type reservationDocument struct {
	model.Reservation `bson:",inline"`
	ActiveHolder      string `bson:"active_holder,omitempty"`
	ActiveSlot        string `bson:"active_slot,omitempty"`
}

func newReservationDocument(res *model.Reservation) reservationDocument {
	doc := reservationDocument{Reservation: *res}
	if res.IsActive() {
		doc.ActiveHolder = holderKey(res)
		doc.ActiveSlot = slotKey(res)
	}
	return doc
}

type mongoReservationRepository struct {
	cfg          *config.Config
	reservations *mongo.Collection
}

func NewMongoReservationRepository(cfg *config.Config) ReservationRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoReservationRepository{
		cfg:          cfg,
		reservations: db.Collection(ReservationsCollection),
	}
}

func (r *mongoReservationRepository) Create(ctx context.Context, res *model.Reservation) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	next := *res
	next.Version = 1
	if _, err := r.reservations.InsertOne(ctx, newReservationDocument(&next)); err != nil {
		return translateWriteError(err)
	}
	res.Version = 1
	return nil
}

func (r *mongoReservationRepository) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoReservationRepository) FindActiveByHolder(ctx context.Context, holderID string) (*model.Reservation, error) {
	return r.findOne(ctx, bson.M{"active_holder": holderID})
}

func (r *mongoReservationRepository) FindActiveBySlot(ctx context.Context, serviceName, slotID, timeWindow string) (*model.Reservation, error) {
	return r.findOne(ctx, bson.M{"active_slot": model.SlotKey(serviceName, slotID, timeWindow)})
}

func (r *mongoReservationRepository) ListActiveByService(ctx context.Context, serviceName, timeWindow string) ([]*model.Reservation, error) {
	filter := bson.M{
		"service_name": serviceName,
		"active_slot":  bson.M{"$exists": true},
	}
	if timeWindow == "" {
		filter["time_window"] = bson.M{"$exists": false}
	} else {
		filter["time_window"] = timeWindow
	}
	return r.find(ctx, filter, options.Find())
}

func (r *mongoReservationRepository) ListByService(ctx context.Context, serviceName string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	filter := bson.M{}
	if serviceName != "" {
		filter["service_name"] = serviceName
	}

	countCtx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	total, err := r.reservations.CountDocuments(countCtx, filter)
	cancel()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count reservations: %w", err)
	}

	opts := options.Find().SetSkip(offset)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	reservations, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return reservations, total, nil
}

func (r *mongoReservationRepository) ListQueuedDue(ctx context.Context, before time.Time) ([]*model.Reservation, error) {
	deadline := bson.M{"$exists": true}
	if !before.IsZero() {
		deadline["$lte"] = before
	}
	return r.find(ctx, bson.M{
		"status":             model.ReservationQueued,
		"admission_deadline": deadline,
	}, options.Find())
}

func (r *mongoReservationRepository) Update(ctx context.Context, res *model.Reservation, expectedVersion int64) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	next := *res
	next.Version = expectedVersion + 1
	filter := bson.M{"_id": res.ID, "version": expectedVersion}

	result, err := r.reservations.ReplaceOne(ctx, filter, newReservationDocument(&next))
	if err != nil {
		return translateWriteError(err)
	}
	if result.MatchedCount == 0 {
		if _, findErr := r.FindByID(ctx, res.ID); errors.Is(findErr, reservationserrors.ErrNotFound) {
			return reservationserrors.ErrNotFound
		}
		return reservationserrors.ErrVersionConflict
	}
	res.Version = next.Version
	return nil
}

func (r *mongoReservationRepository) Delete(ctx context.Context, id string) (*model.Reservation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var doc reservationDocument
	err := r.reservations.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservationserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete reservation: %w", err)
	}
	return &doc.Reservation, nil
}

// Watch tails the collection's change stream. Delete events carry no
// document, so they wake every watcher; receivers re-read anyway.
func (r *mongoReservationRepository) Watch(ctx context.Context, holderID string) (<-chan struct{}, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"fullDocument.holder_id": holderID},
			bson.M{"operationType": "delete"},
		}}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := r.reservations.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			r.cfg.Log.Warn("Reservation change stream ended", "holder_id", holderID, "error", err)
		}
	}()
	return ch, nil
}

func (r *mongoReservationRepository) findOne(ctx context.Context, filter bson.M) (*model.Reservation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var doc reservationDocument
	err := r.reservations.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservationserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}
	return &doc.Reservation, nil
}

func (r *mongoReservationRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Reservation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts.SetSort(bson.D{{Key: "start_time", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.reservations.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []reservationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode reservations: %w", err)
	}

	reservations := make([]*model.Reservation, 0, len(docs))
	for i := range docs {
		reservations = append(reservations, &docs[i].Reservation)
	}
	return reservations, nil
}

func translateWriteError(err error) error {
	switch {
	case mongotx.DuplicateKeyOn(err, ActiveHolderIndex):
		return reservationserrors.ErrHolderBusy
	case mongotx.DuplicateKeyOn(err, ActiveSlotIndex):
		return reservationserrors.ErrSlotBusy
	case mongo.IsDuplicateKeyError(err):
		return reservationserrors.ErrVersionConflict
	default:
		return fmt.Errorf("failed to write reservation: %w", err)
	}
}
