package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/types"
)

// =============================================================================
// 🍃 MongoDB 存储
// =============================================================================

const (
	runsCollection   = "runs"
	scoresCollection = "scores"
)

// MongoOptions MongoStore 连接参数
type MongoOptions struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type runDocument struct {
	ID          string    `bson:"_id"`
	TaskID      string    `bson:"task_id"`
	TaskType    string    `bson:"task_type"`
	RunnerID    string    `bson:"runner_id"`
	Status      string    `bson:"status"`
	Fingerprint string    `bson:"fingerprint"`
	StartedAt   time.Time `bson:"started_at"`
	Record      string    `bson:"record"`
}

type scoreDocument struct {
	ID       string `bson:"_id"`
	RunID    string `bson:"run_id"`
	Seq      int    `bson:"seq"`
	ScorerID string `bson:"scorer_id"`
	Metric   string `bson:"metric"`
	Record   string `bson:"record"`
}

// MongoStore runs/scores 两个集合，完整记录以 JSON 字符串保存
type MongoStore struct {
	client  *mongo.Client
	runs    *mongo.Collection
	scores  *mongo.Collection
	timeout time.Duration
	logger  *zap.Logger
}

// NewMongoStore 连接、探活并创建索引
func NewMongoStore(ctx context.Context, opts MongoOptions, logger *zap.Logger) (*MongoStore, error) {
	if opts.URI == "" || opts.Database == "" {
		return nil, fmt.Errorf("mongo store requires uri and database")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(options.Client().ApplyURI(opts.URI).SetTimeout(opts.Timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(opts.Database)
	s := &MongoStore{
		client:  client,
		runs:    db.Collection(runsCollection),
		scores:  db.Collection(scoresCollection),
		timeout: opts.Timeout,
		logger:  logger.With(zap.String("component", "mongo_store")),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	s.logger.Info("mongo store connected", zap.String("database", opts.Database))
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.runs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "task_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "started_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create run indexes: %w", err)
	}
	_, err = s.scores.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create score indexes: %w", err)
	}
	return nil
}

func toRunDocument(run *types.RunRecord) (*runDocument, error) {
	data, err := encodeRun(run)
	if err != nil {
		return nil, err
	}
	return &runDocument{
		ID:          run.ID,
		TaskID:      run.TaskID,
		TaskType:    string(run.TaskType),
		RunnerID:    run.Provenance.RunnerID,
		Status:      string(run.Status),
		Fingerprint: run.Provenance.RunFingerprint,
		StartedAt:   run.StartedAt,
		Record:      string(data),
	}, nil
}

// runFilter 将 Filter 转为查询条件
func runFilter(f Filter) bson.D {
	q := bson.D{}
	if f.TaskID != "" {
		q = append(q, bson.E{Key: "task_id", Value: f.TaskID})
	}
	if f.TaskType != "" {
		q = append(q, bson.E{Key: "task_type", Value: string(f.TaskType)})
	}
	if f.Status != "" {
		q = append(q, bson.E{Key: "status", Value: string(f.Status)})
	}
	return q
}

func (s *MongoStore) SaveRun(ctx context.Context, run *types.RunRecord) error {
	if err := validateRun(run); err != nil {
		return err
	}
	doc, err := toRunDocument(run)
	if err != nil {
		return err
	}
	_, err = s.runs.ReplaceOne(ctx, bson.D{{Key: "_id", Value: run.ID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *MongoStore) GetRun(ctx context.Context, runID string) (*types.RunRecord, error) {
	var doc runDocument
	err := s.runs.FindOne(ctx, bson.D{{Key: "_id", Value: runID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return decodeRun([]byte(doc.Record))
}

func (s *MongoStore) ListRuns(ctx context.Context, filter Filter) ([]*types.RunRecord, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.runs.Find(ctx, runFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var docs []runDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]*types.RunRecord, 0, len(docs))
	for _, doc := range docs {
		run, err := decodeRun([]byte(doc.Record))
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// SaveScores 不使用事务（单机部署不支持），先清空再批量写入
func (s *MongoStore) SaveScores(ctx context.Context, runID string, scores []types.ScoreRecord) error {
	prepared, err := prepareScores(runID, scores)
	if err != nil {
		return err
	}

	n, err := s.runs.CountDocuments(ctx, bson.D{{Key: "_id", Value: runID}})
	if err != nil {
		return fmt.Errorf("check run %s: %w", runID, err)
	}
	if n == 0 {
		return runNotFound(runID)
	}

	if _, err := s.scores.DeleteMany(ctx, bson.D{{Key: "run_id", Value: runID}}); err != nil {
		return fmt.Errorf("clear scores of run %s: %w", runID, err)
	}
	if len(prepared) == 0 {
		return nil
	}

	docs := make([]any, 0, len(prepared))
	for i, sc := range prepared {
		data, err := encodeScore(sc)
		if err != nil {
			return err
		}
		docs = append(docs, scoreDocument{
			ID:       sc.ID,
			RunID:    runID,
			Seq:      i,
			ScorerID: sc.ScorerID,
			Metric:   sc.Metric,
			Record:   string(data),
		})
	}
	if _, err := s.scores.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("save scores of run %s: %w", runID, err)
	}
	return nil
}

func (s *MongoStore) GetScores(ctx context.Context, runID string) ([]types.ScoreRecord, error) {
	cursor, err := s.scores.Find(ctx, bson.D{{Key: "run_id", Value: runID}},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("get scores of run %s: %w", runID, err)
	}
	var docs []scoreDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("get scores of run %s: %w", runID, err)
	}

	out := make([]types.ScoreRecord, 0, len(docs))
	for _, doc := range docs {
		sc, err := decodeScore([]byte(doc.Record))
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func (s *MongoStore) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.runs.DeleteOne(ctx, bson.D{{Key: "_id", Value: runID}})
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if res.DeletedCount == 0 {
		return runNotFound(runID)
	}
	if _, err := s.scores.DeleteMany(ctx, bson.D{{Key: "run_id", Value: runID}}); err != nil {
		return fmt.Errorf("delete scores of run %s: %w", runID, err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
