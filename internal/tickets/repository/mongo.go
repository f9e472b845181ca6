package repository

import (
	"context"
	"errors"
	"fmt"

	ticketserrors "campusq/internal/tickets/errors"
	"campusq/pkg/config"
	mongotx "campusq/pkg/db/mongo"
	"campusq/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ActivitiesCollection = "activities"
	TicketsCollection    = "tickets"

	// ActiveHolderIndex is a unique partial index over active_holder, which
	// is only present while a ticket is waiting or called.
	ActiveHolderIndex = "uniq_ticket_active_holder"
)

// ticketDocument adds the derived uniqueness key to the stored ticket.
type ticketDocument struct {
	model.Ticket `bson:",inline"`
	ActiveHolder string `bson:"active_holder,omitempty"`
}

func newTicketDocument(t *model.Ticket) ticketDocument {
	doc := ticketDocument{Ticket: *t}
	if t.IsActive() {
		doc.ActiveHolder = activeKey(t.ActivityID, t.HolderID)
	}
	return doc
}

type mongoTicketRepository struct {
	cfg        *config.Config
	activities *mongo.Collection
	tickets    *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoTicketRepository(cfg *config.Config) TicketRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoTicketRepository{
		cfg:        cfg,
		activities: db.Collection(ActivitiesCollection),
		tickets:    db.Collection(TicketsCollection),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo, cfg.WriteTimeout),
	}
}

func (r *mongoTicketRepository) CreateActivity(ctx context.Context, activity *model.Activity) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	doc := *activity
	doc.Version = 1
	if _, err := r.activities.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ticketserrors.ErrVersionConflict
		}
		return fmt.Errorf("failed to create activity: %w", err)
	}
	activity.Version = 1
	return nil
}

func (r *mongoTicketRepository) FindActivity(ctx context.Context, id string) (*model.Activity, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var activity model.Activity
	err := r.activities.FindOne(ctx, bson.M{"_id": id}).Decode(&activity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ticketserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find activity: %w", err)
	}
	return &activity, nil
}

func (r *mongoTicketRepository) ListActivities(ctx context.Context) ([]*model.Activity, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.activities.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer cursor.Close(ctx)

	var activities []*model.Activity
	if err := cursor.All(ctx, &activities); err != nil {
		return nil, fmt.Errorf("failed to decode activities: %w", err)
	}
	return activities, nil
}

func (r *mongoTicketRepository) DeleteActivity(ctx context.Context, id string) ([]string, error) {
	var removed []string
	err := r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		removed = nil
		tickets, err := r.findTickets(sessCtx, bson.M{"activity_id": id})
		if err != nil {
			return err
		}
		for _, t := range tickets {
			removed = append(removed, t.ID)
		}

		if _, err := r.tickets.DeleteMany(sessCtx, bson.M{"activity_id": id}); err != nil {
			return fmt.Errorf("failed to delete tickets: %w", err)
		}
		result, err := r.activities.DeleteOne(sessCtx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to delete activity: %w", err)
		}
		if result.DeletedCount == 0 {
			return ticketserrors.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *mongoTicketRepository) FindTicket(ctx context.Context, id string) (*model.Ticket, error) {
	return r.findOneTicket(ctx, bson.M{"_id": id})
}

func (r *mongoTicketRepository) FindActiveTicket(ctx context.Context, activityID, holderID string) (*model.Ticket, error) {
	return r.findOneTicket(ctx, bson.M{"active_holder": activeKey(activityID, holderID)})
}

func (r *mongoTicketRepository) ListWaiting(ctx context.Context, activityID string) ([]*model.Ticket, error) {
	return r.findTickets(ctx, bson.M{"activity_id": activityID, "status": model.TicketWaiting})
}

func (r *mongoTicketRepository) ListTickets(ctx context.Context, activityID string) ([]*model.Ticket, error) {
	return r.findTickets(ctx, bson.M{"activity_id": activityID})
}

func (r *mongoTicketRepository) ListNoShowPending(ctx context.Context) ([]*model.Ticket, error) {
	return r.findTickets(ctx, bson.M{
		"status":           model.TicketCalled,
		"no_show_deadline": bson.M{"$exists": true},
	})
}

func (r *mongoTicketRepository) findOneTicket(ctx context.Context, filter bson.M) (*model.Ticket, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var doc ticketDocument
	err := r.tickets.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ticketserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find ticket: %w", err)
	}
	return &doc.Ticket, nil
}

func (r *mongoTicketRepository) findTickets(ctx context.Context, filter bson.M) ([]*model.Ticket, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "activity_id", Value: 1}, {Key: "number", Value: 1}})
	cursor, err := r.tickets.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find tickets: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []ticketDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode tickets: %w", err)
	}

	tickets := make([]*model.Ticket, 0, len(docs))
	for i := range docs {
		tickets = append(tickets, &docs[i].Ticket)
	}
	return tickets, nil
}

// Apply writes both sides of the change in one transaction. Each side is a
// replace filtered on the expected version, so a concurrent writer makes
// the whole change fail with ErrVersionConflict.
func (r *mongoTicketRepository) Apply(ctx context.Context, change Change) error {
	err := r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if a := change.Activity; a != nil {
			next := *a
			next.Version = change.ExpectedActivityVersion + 1
			filter := bson.M{"_id": a.ID, "version": change.ExpectedActivityVersion}
			result, err := r.activities.ReplaceOne(sessCtx, filter, next)
			if err != nil {
				return fmt.Errorf("failed to update activity: %w", err)
			}
			if result.MatchedCount == 0 {
				return ticketserrors.ErrVersionConflict
			}
		}

		if t := change.Ticket; t != nil {
			next := *t
			next.Version = change.ExpectedTicketVersion + 1
			doc := newTicketDocument(&next)

			if change.ExpectedTicketVersion == 0 {
				if _, err := r.tickets.InsertOne(sessCtx, doc); err != nil {
					if mongotx.DuplicateKeyOn(err, ActiveHolderIndex) {
						return ticketserrors.ErrHolderQueued
					}
					if mongo.IsDuplicateKeyError(err) {
						return ticketserrors.ErrVersionConflict
					}
					return fmt.Errorf("failed to insert ticket: %w", err)
				}
				return nil
			}

			filter := bson.M{"_id": t.ID, "version": change.ExpectedTicketVersion}
			result, err := r.tickets.ReplaceOne(sessCtx, filter, doc)
			if err != nil {
				return fmt.Errorf("failed to update ticket: %w", err)
			}
			if result.MatchedCount == 0 {
				return ticketserrors.ErrVersionConflict
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if change.Activity != nil {
		change.Activity.Version = change.ExpectedActivityVersion + 1
	}
	if change.Ticket != nil {
		change.Ticket.Version = change.ExpectedTicketVersion + 1
	}
	return nil
}
