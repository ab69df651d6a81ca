package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/voxprep/go-voxprep/pkg/evaluation"
	"github.com/voxprep/go-voxprep/pkg/interview"
	"github.com/voxprep/go-voxprep/pkg/scoring"
)

const (
	collInterviews  = "interviews"
	collEvaluations = "evaluations"

	opTimeout = 10 * time.Second
)

// withTimeout bounds a single database operation.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

// Mongo is a MongoDB-backed Store.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects to MongoDB and pings it before returning.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("store: mongo ping: %w", err)
	}

	return &Mongo{
		client: client,
		db:     client.Database(database),
	}, nil
}

type interviewDoc struct {
	ID             string                     `bson:"_id"`
	ConversationID string                     `bson:"conversation_id"`
	Transcript     string                     `bson:"transcript"`
	Candidate      interview.CandidateContext `bson:"candidate"`
	CreatedAt      time.Time                  `bson:"created_at"`
	UpdatedAt      time.Time                  `bson:"updated_at"`
}

type evaluationDoc struct {
	InterviewID    string          `bson:"_id"`
	ConversationID string          `bson:"conversation_id"`
	Status         string          `bson:"status"`
	OverallScore   *int            `bson:"overall_score,omitempty"`
	Payload        *scoring.Result `bson:"payload,omitempty"`
	Error          string          `bson:"error,omitempty"`
	RetryCount     int             `bson:"retry_count"`
	CreatedAt      time.Time       `bson:"created_at"`
	UpdatedAt      time.Time       `bson:"updated_at"`
}

// SaveInterview upserts an interview record.
func (s *Mongo) SaveInterview(ctx context.Context, iv *evaluation.Interview) error {
	doc := interviewDoc{
		ID:             iv.ID,
		ConversationID: iv.ConversationID,
		Transcript:     iv.Transcript,
		Candidate:      iv.Candidate,
		CreatedAt:      iv.CreatedAt,
		UpdatedAt:      time.Now(),
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}

	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.db.Collection(collInterviews).ReplaceOne(
		opCtx,
		bson.M{"_id": iv.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("store: save interview: %w", err)
	}
	return nil
}

// GetInterview loads an interview by id.
func (s *Mongo) GetInterview(ctx context.Context, id string) (*evaluation.Interview, error) {
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	var doc interviewDoc
	err := s.db.Collection(collInterviews).FindOne(opCtx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, evaluation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get interview: %w", err)
	}
	return doc.toInterview(), nil
}

// FindInterviewByConversation loads the interview for a conversation id.
func (s *Mongo) FindInterviewByConversation(ctx context.Context, conversationID string) (*evaluation.Interview, error) {
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	var doc interviewDoc
	err := s.db.Collection(collInterviews).
		FindOne(opCtx, bson.M{"conversation_id": conversationID}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, evaluation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find interview by conversation: %w", err)
	}
	return doc.toInterview(), nil
}

func (d *interviewDoc) toInterview() *evaluation.Interview {
	return &evaluation.Interview{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		Transcript:     d.Transcript,
		Candidate:      d.Candidate,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// GetEvaluation loads the evaluation for an interview.
func (s *Mongo) GetEvaluation(ctx context.Context, interviewID string) (*evaluation.Evaluation, error) {
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	var doc evaluationDoc
	err := s.db.Collection(collEvaluations).FindOne(opCtx, bson.M{"_id": interviewID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, evaluation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get evaluation: %w", err)
	}
	return doc.toEvaluation(), nil
}

// SaveEvaluation upserts an evaluation keyed by interview id.
func (s *Mongo) SaveEvaluation(ctx context.Context, ev *evaluation.Evaluation) error {
	doc := evaluationDoc{
		InterviewID:    ev.InterviewID,
		ConversationID: ev.ConversationID,
		Status:         string(ev.Status),
		OverallScore:   ev.OverallScore,
		Payload:        ev.Payload,
		Error:          ev.Error,
		RetryCount:     ev.RetryCount,
		CreatedAt:      ev.CreatedAt,
		UpdatedAt:      ev.UpdatedAt,
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}
	if doc.CreatedAt.IsZero() {
		if existing, err := s.GetEvaluation(ctx, ev.InterviewID); err == nil {
			doc.CreatedAt = existing.CreatedAt
		} else {
			doc.CreatedAt = doc.UpdatedAt
		}
	}

	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.db.Collection(collEvaluations).ReplaceOne(
		opCtx,
		bson.M{"_id": ev.InterviewID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("store: save evaluation: %w", err)
	}
	return nil
}

// FindStalePending returns pending evaluations not updated since cutoff.
func (s *Mongo) FindStalePending(ctx context.Context, cutoff time.Time) ([]*evaluation.Evaluation, error) {
	opCtx, cancel := withTimeout(ctx)
	defer cancel()

	cur, err := s.db.Collection(collEvaluations).Find(opCtx, bson.M{
		"status":     string(evaluation.StatusPending),
		"updated_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return nil, fmt.Errorf("store: find stale pending: %w", err)
	}
	defer cur.Close(opCtx)

	var stale []*evaluation.Evaluation
	for cur.Next(opCtx) {
		var doc evaluationDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("store: decode evaluation: %w", err)
		}
		stale = append(stale, doc.toEvaluation())
	}
	return stale, cur.Err()
}

func (d *evaluationDoc) toEvaluation() *evaluation.Evaluation {
	return &evaluation.Evaluation{
		InterviewID:    d.InterviewID,
		ConversationID: d.ConversationID,
		Status:         evaluation.Status(d.Status),
		OverallScore:   d.OverallScore,
		Payload:        d.Payload,
		Error:          d.Error,
		RetryCount:     d.RetryCount,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// Close disconnects from MongoDB.
func (s *Mongo) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ensure Mongo implements Store.
var _ Store = (*Mongo)(nil)
