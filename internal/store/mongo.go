package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yu-fu/smokesearch/internal/models"
)

// Mongo is a Store backed by a MongoDB document database, using the
// smokingAreas and reports collections.
type Mongo struct {
	Clock Clock

	client  *mongo.Client
	areas   *mongo.Collection
	reports *mongo.Collection
}

type areaDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Latitude    float64            `bson:"latitude"`
	Longitude   float64            `bson:"longitude"`
	Memo        string             `bson:"memo,omitempty"`
	CreatedByID string             `bson:"createdById"`
	CreatedAt   time.Time          `bson:"createdAt"`
}

func (d areaDoc) model() models.SmokingArea {
	return models.SmokingArea{
		ID:          d.ID.Hex(),
		Latitude:    d.Latitude,
		Longitude:   d.Longitude,
		Memo:        d.Memo,
		CreatedByID: d.CreatedByID,
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

type reportDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	SmokingAreaID string             `bson:"smokingAreaId"`
	Reason        string             `bson:"reason"`
	Comment       string             `bson:"comment,omitempty"`
	ReportedByID  string             `bson:"reportedById"`
	ReportedAt    time.Time          `bson:"reportedAt"`
}

// OpenMongo connects to uri and selects dbName.
func OpenMongo(ctx context.Context, uri, dbName string) (*Mongo, error) {
	start := time.Now()
	log.Info().Str("uri", redactURI(uri)).Str("db", dbName).Msg("mongo: connecting")

	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(dctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(dctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	database := client.Database(dbName)
	m := &Mongo{
		client:  client,
		areas:   database.Collection(SmokingAreasCollection),
		reports: database.Collection(ReportsCollection),
	}
	if err := m.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("mongo: index creation warnings")
	}

	log.Info().Dur("elapsed", time.Since(start).Round(time.Millisecond)).Msg("mongo: connected")
	return m, nil
}

func (m *Mongo) createIndexes(ctx context.Context) error {
	ictx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := m.reports.Indexes().CreateOne(ictx, mongo.IndexModel{
		Keys: bson.D{{Key: "smokingAreaId", Value: 1}, {Key: "reportedAt", Value: -1}},
	})
	return err
}

func (m *Mongo) CreateArea(ctx context.Context, in models.NewArea) (string, error) {
	res, err := m.areas.InsertOne(ctx, areaDoc{
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Memo:        in.Memo,
		CreatedByID: in.CreatedByID,
		CreatedAt:   m.Clock.now(),
	})
	if err != nil {
		return "", fmt.Errorf("insert smoking area: %w", err)
	}
	return res.InsertedID.(primitive.ObjectID).Hex(), nil
}

func (m *Mongo) GetArea(ctx context.Context, id string) (models.SmokingArea, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.SmokingArea{}, ErrNotFound
	}
	var doc areaDoc
	err = m.areas.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.SmokingArea{}, ErrNotFound
	}
	if err != nil {
		return models.SmokingArea{}, fmt.Errorf("get smoking area: %w", err)
	}
	return doc.model(), nil
}

func (m *Mongo) ListAreas(ctx context.Context) ([]models.SmokingArea, error) {
	cur, err := m.areas.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list smoking areas: %w", err)
	}
	defer cur.Close(ctx)

	areas := []models.SmokingArea{}
	for cur.Next(ctx) {
		var doc areaDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode smoking area: %w", err)
		}
		areas = append(areas, doc.model())
	}
	return areas, cur.Err()
}

func (m *Mongo) UpdateArea(ctx context.Context, id string, patch models.AreaPatch) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	set := bson.M{}
	if patch.Coordinates != nil {
		set["latitude"] = patch.Coordinates.Latitude
		set["longitude"] = patch.Coordinates.Longitude
	}
	if patch.Memo != nil {
		set["memo"] = strings.TrimSpace(*patch.Memo)
	}
	if len(set) == 0 {
		return nil
	}
	res, err := m.areas.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update smoking area: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteArea(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := m.areas.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete smoking area: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) CreateReport(ctx context.Context, in models.NewReport) (string, error) {
	res, err := m.reports.InsertOne(ctx, reportDoc{
		SmokingAreaID: in.SmokingAreaID,
		Reason:        string(in.Reason),
		Comment:       in.Comment,
		ReportedByID:  in.ReportedByID,
		ReportedAt:    m.Clock.now(),
	})
	if err != nil {
		return "", fmt.Errorf("insert report: %w", err)
	}
	return res.InsertedID.(primitive.ObjectID).Hex(), nil
}

func (m *Mongo) ListReportsForArea(ctx context.Context, areaID string) ([]models.Report, error) {
	opts := options.Find().SetSort(bson.D{{Key: "reportedAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := m.reports.Find(ctx, bson.M{"smokingAreaId": areaID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer cur.Close(ctx)

	reports := []models.Report{}
	for cur.Next(ctx) {
		var doc reportDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		reports = append(reports, models.Report{
			ID:            doc.ID.Hex(),
			SmokingAreaID: doc.SmokingAreaID,
			Reason:        models.ReportReason(doc.Reason),
			Comment:       doc.Comment,
			ReportedByID:  doc.ReportedByID,
			ReportedAt:    doc.ReportedAt.UTC(),
		})
	}
	return reports, cur.Err()
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// redactedURI replaces a URI whose credentials cannot be located.
const redactedURI = "<redacted>"

// redactURI hides credentials before a URI is logged.
func redactURI(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redactedURI
	}
	if u.Host == "" {
		if strings.Contains(raw, "@") {
			return redactedURI
		}
		return raw
	}
	if u.User != nil {
		u.User = url.UserPassword("****", "****")
	}
	return u.String()
}
