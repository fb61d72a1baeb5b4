package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore implements TeamStore on MongoDB. The solve commit relies on a
// filtered atomic update instead of a multi-statement transaction: the
// already-solved precondition lives in the update filter, so exactly one
// concurrent writer per (team, question) matches.
type MongoStore struct {
	client *mongo.Client
	teams  *mongo.Collection
	users  *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(database)
	return &MongoStore{
		client: client,
		teams:  db.Collection("teams"),
		users:  db.Collection("users"),
	}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) CreateTeam(ctx context.Context, team Team) error {
	if _, err := s.teams.InsertOne(ctx, team); err != nil {
		return fmt.Errorf("inserting team %s: %w", team.Code, err)
	}
	return nil
}

func (s *MongoStore) GetTeam(ctx context.Context, code string) (Team, error) {
	var t Team
	err := s.teams.FindOne(ctx, bson.M{"_id": code}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Team{}, ErrNotFound
	}
	if err != nil {
		return Team{}, fmt.Errorf("getting team %s: %w", code, err)
	}
	return t, nil
}

func (s *MongoStore) ListTeams(ctx context.Context) ([]Team, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.teams.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer cursor.Close(ctx)

	var teams []Team
	if err := cursor.All(ctx, &teams); err != nil {
		return nil, fmt.Errorf("decoding teams: %w", err)
	}
	return teams, nil
}

func (s *MongoStore) AddMember(ctx context.Context, code, uid string) error {
	res, err := s.teams.UpdateOne(ctx,
		bson.M{"_id": code},
		bson.M{"$addToSet": bson.M{"members": uid}},
	)
	if err != nil {
		return fmt.Errorf("adding member to team %s: %w", code, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) IncrementScore(ctx context.Context, code string, delta int) error {
	res, err := s.teams.UpdateOne(ctx,
		bson.M{"_id": code},
		bson.M{"$inc": bson.M{"score": delta}},
	)
	if err != nil {
		return fmt.Errorf("incrementing score for team %s: %w", code, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) CommitSolve(ctx context.Context, code string, questionID, points int, at time.Time) error {
	res, err := s.teams.UpdateOne(ctx,
		bson.M{"_id": code, "solved_questions": bson.M{"$ne": questionID}},
		bson.M{
			"$inc":      bson.M{"score": points},
			"$addToSet": bson.M{"solved_questions": questionID},
			"$set":      bson.M{"last_scored_at": at.UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("committing solve for team %s: %w", code, err)
	}
	if res.MatchedCount == 0 {
		// Either the team is gone or the question is already in the solved
		// set; tell them apart with a point read.
		if _, err := s.GetTeam(ctx, code); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrAlreadySolved
	}
	return nil
}

func (s *MongoStore) UpsertUser(ctx context.Context, u User) error {
	set := bson.M{}
	if u.Email != "" {
		set["email"] = u.Email
	}
	if u.DisplayName != "" {
		set["display_name"] = u.DisplayName
	}
	if u.TeamCode != "" {
		set["team_code"] = u.TeamCode
	}
	if len(set) == 0 {
		return nil
	}

	opts := options.Update().SetUpsert(true)
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": u.UID}, bson.M{"$set": set}, opts)
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", u.UID, err)
	}
	return nil
}

func (s *MongoStore) GetUser(ctx context.Context, uid string) (User, error) {
	var u User
	err := s.users.FindOne(ctx, bson.M{"_id": uid}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("getting user %s: %w", uid, err)
	}
	return u, nil
}

func (s *MongoStore) WipeTeams(ctx context.Context) error {
	if _, err := s.teams.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("wiping teams: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

var _ TeamStore = (*MongoStore)(nil)
