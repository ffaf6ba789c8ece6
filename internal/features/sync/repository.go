package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-datasync/internal/database"
	"go-datasync/internal/models"
	"go-datasync/internal/syncerr"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	sourcesCollection  = "extract_sources"
	profilesCollection = "sync_profiles"
	versionsCollection = "schema_versions"
	runsCollection     = "sync_runs"
)

type SourceRepository interface {
	Create(ctx context.Context, source *models.ExtractSource) error
	Get(ctx context.Context, id string) (*models.ExtractSource, error)
	GetByName(ctx context.Context, name string) (*models.ExtractSource, error)
	List(ctx context.Context) ([]models.ExtractSource, error)
}

type ProfileRepository interface {
	Create(ctx context.Context, profile *models.SyncProfile) error
	Get(ctx context.Context, id string) (*models.SyncProfile, error)
	// FindBySourceDataset returns nil when the dataset has no profile yet
	FindBySourceDataset(ctx context.Context, sourceID primitive.ObjectID, dataset string) (*models.SyncProfile, error)
	List(ctx context.Context) ([]models.SyncProfile, error)
	ListScheduled(ctx context.Context) ([]models.SyncProfile, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error
}

type VersionRepository interface {
	Create(ctx context.Context, version *models.SchemaVersion) error
	Get(ctx context.Context, id string) (*models.SchemaVersion, error)
	// FindByHashes and Latest return nil when nothing matches
	FindByHashes(ctx context.Context, profileID primitive.ObjectID, configHash, schemaHash string) (*models.SchemaVersion, error)
	Latest(ctx context.Context, profileID primitive.ObjectID) (*models.SchemaVersion, error)
	ListByProfile(ctx context.Context, profileID primitive.ObjectID) ([]models.SchemaVersion, error)
	SetTableName(ctx context.Context, id primitive.ObjectID, table string) error
	TableInUse(ctx context.Context, table string) (bool, error)
}

type RunRepository interface {
	Create(ctx context.Context, run *models.SyncRun) error
	Update(ctx context.Context, run *models.SyncRun) error
	List(ctx context.Context, profileID primitive.ObjectID, limit int64) ([]models.SyncRun, error)
	ListLogs(ctx context.Context, runID string) ([]models.RunLog, error)
	// LastCheckpoint returns the checkpoint of the latest successful run of a
	// profile under a strategy, or nil
	LastCheckpoint(ctx context.Context, profileID primitive.ObjectID, strategy models.StrategyKey) (models.Checkpoint, error)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, syncerr.ErrNotFound)
}

func parseID(kind, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, notFound(kind, id)
	}
	return oid, nil
}

// findOne decodes the first match into out. ok is false when nothing matched.
func findOne(ctx context.Context, collection *mongo.Collection, filter interface{}, out interface{}, opts ...*options.FindOneOptions) (bool, error) {
	err := collection.FindOne(ctx, filter, opts...).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Sources

type SourceRepositoryImpl struct {
	collection *mongo.Collection
}

func NewSourceRepository(db *database.MongodbDB) SourceRepository {
	return &SourceRepositoryImpl{
		collection: db.DB.Collection(sourcesCollection),
	}
}

func (r *SourceRepositoryImpl) Create(ctx context.Context, source *models.ExtractSource) error {
	if source.ID.IsZero() {
		source.ID = primitive.NewObjectID()
	}
	source.CreatedAt = time.Now()
	source.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, source)
	return err
}

func (r *SourceRepositoryImpl) Get(ctx context.Context, id string) (*models.ExtractSource, error) {
	oid, err := parseID("source", id)
	if err != nil {
		return nil, err
	}

	var source models.ExtractSource
	ok, err := findOne(ctx, r.collection, bson.M{"_id": oid}, &source)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("source", id)
	}
	return &source, nil
}

func (r *SourceRepositoryImpl) GetByName(ctx context.Context, name string) (*models.ExtractSource, error) {
	var source models.ExtractSource
	ok, err := findOne(ctx, r.collection, bson.M{"name": name}, &source)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("source", name)
	}
	return &source, nil
}

func (r *SourceRepositoryImpl) List(ctx context.Context) ([]models.ExtractSource, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sources []models.ExtractSource
	if err = cursor.All(ctx, &sources); err != nil {
		return nil, err
	}

	return sources, nil
}

// Profiles

type ProfileRepositoryImpl struct {
	collection *mongo.Collection
}

func NewProfileRepository(db *database.MongodbDB) ProfileRepository {
	return &ProfileRepositoryImpl{
		collection: db.DB.Collection(profilesCollection),
	}
}

func (r *ProfileRepositoryImpl) Create(ctx context.Context, profile *models.SyncProfile) error {
	if profile.ID.IsZero() {
		profile.ID = primitive.NewObjectID()
	}
	profile.CreatedAt = time.Now()
	profile.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, profile)
	return err
}

func (r *ProfileRepositoryImpl) Get(ctx context.Context, id string) (*models.SyncProfile, error) {
	oid, err := parseID("profile", id)
	if err != nil {
		return nil, err
	}

	var profile models.SyncProfile
	ok, err := findOne(ctx, r.collection, bson.M{"_id": oid}, &profile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("profile", id)
	}
	return &profile, nil
}

func (r *ProfileRepositoryImpl) FindBySourceDataset(ctx context.Context, sourceID primitive.ObjectID, dataset string) (*models.SyncProfile, error) {
	var profile models.SyncProfile
	ok, err := findOne(ctx, r.collection, bson.M{"source_id": sourceID, "dataset_identifier": dataset}, &profile)
	if err != nil || !ok {
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepositoryImpl) List(ctx context.Context) ([]models.SyncProfile, error) {
	return r.find(ctx, bson.M{})
}

func (r *ProfileRepositoryImpl) ListScheduled(ctx context.Context) ([]models.SyncProfile, error) {
	return r.find(ctx, bson.M{"schedule": bson.M{"$nin": bson.A{nil, ""}}})
}

func (r *ProfileRepositoryImpl) find(ctx context.Context, filter bson.M) ([]models.SyncProfile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var profiles []models.SyncProfile
	if err = cursor.All(ctx, &profiles); err != nil {
		return nil, err
	}

	return profiles, nil
}

func (r *ProfileRepositoryImpl) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	oid, err := parseID("profile", id)
	if err != nil {
		return err
	}

	updates["updated_at"] = time.Now()
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": oid},
		bson.M{"$set": updates},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return notFound("profile", id)
	}
	return nil
}

// Schema versions

type VersionRepositoryImpl struct {
	collection *mongo.Collection
}

func NewVersionRepository(db *database.MongodbDB) VersionRepository {
	return &VersionRepositoryImpl{
		collection: db.DB.Collection(versionsCollection),
	}
}

func (r *VersionRepositoryImpl) Create(ctx context.Context, version *models.SchemaVersion) error {
	if version.ID.IsZero() {
		version.ID = primitive.NewObjectID()
	}
	version.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, version)
	return err
}

func (r *VersionRepositoryImpl) Get(ctx context.Context, id string) (*models.SchemaVersion, error) {
	oid, err := parseID("schema version", id)
	if err != nil {
		return nil, err
	}

	var version models.SchemaVersion
	ok, err := findOne(ctx, r.collection, bson.M{"_id": oid}, &version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("schema version", id)
	}
	return &version, nil
}

func (r *VersionRepositoryImpl) FindByHashes(ctx context.Context, profileID primitive.ObjectID, configHash, schemaHash string) (*models.SchemaVersion, error) {
	filter := bson.M{
		"profile_id":         profileID,
		"config_hash":        configHash,
		"source_schema_hash": schemaHash,
	}
	var version models.SchemaVersion
	ok, err := findOne(ctx, r.collection, filter, &version)
	if err != nil || !ok {
		return nil, err
	}
	return &version, nil
}

func (r *VersionRepositoryImpl) Latest(ctx context.Context, profileID primitive.ObjectID) (*models.SchemaVersion, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "version_number", Value: -1}})
	var version models.SchemaVersion
	ok, err := findOne(ctx, r.collection, bson.M{"profile_id": profileID}, &version, opts)
	if err != nil || !ok {
		return nil, err
	}
	return &version, nil
}

func (r *VersionRepositoryImpl) ListByProfile(ctx context.Context, profileID primitive.ObjectID) ([]models.SchemaVersion, error) {
	opts := options.Find().SetSort(bson.D{{Key: "version_number", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"profile_id": profileID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var versions []models.SchemaVersion
	if err = cursor.All(ctx, &versions); err != nil {
		return nil, err
	}

	return versions, nil
}

// SetTableName records the table resolved on the first run. It is the only
// mutation a schema version allows.
func (r *VersionRepositoryImpl) SetTableName(ctx context.Context, id primitive.ObjectID, table string) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"local_table_name": table}},
	)
	return err
}

func (r *VersionRepositoryImpl) TableInUse(ctx context.Context, table string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"local_table_name": table}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Runs

type RunRepositoryImpl struct {
	collection *mongo.Collection
	logs       *mongo.Collection
}

func NewRunRepository(db *database.MongodbDB) RunRepository {
	return &RunRepositoryImpl{
		collection: db.DB.Collection(runsCollection),
		logs:       db.DB.Collection(models.RunLogCollection),
	}
}

func (r *RunRepositoryImpl) Create(ctx context.Context, run *models.SyncRun) error {
	if run.ID.IsZero() {
		run.ID = primitive.NewObjectID()
	}
	_, err := r.collection.InsertOne(ctx, run)
	return err
}

func (r *RunRepositoryImpl) Update(ctx context.Context, run *models.SyncRun) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": run.ID}, run)
	return err
}

func (r *RunRepositoryImpl) List(ctx context.Context, profileID primitive.ObjectID, limit int64) ([]models.SyncRun, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, bson.M{"profile_id": profileID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var runs []models.SyncRun
	if err = cursor.All(ctx, &runs); err != nil {
		return nil, err
	}

	return runs, nil
}

func (r *RunRepositoryImpl) ListLogs(ctx context.Context, runID string) ([]models.RunLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.logs.Find(ctx, bson.M{"run_id": runID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []models.RunLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}

	return logs, nil
}

func (r *RunRepositoryImpl) LastCheckpoint(ctx context.Context, profileID primitive.ObjectID, strategy models.StrategyKey) (models.Checkpoint, error) {
	filter := bson.M{
		"profile_id": profileID,
		"strategy":   strategy,
		"status":     models.RunStatusSuccess,
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}, {Key: "_id", Value: -1}})

	var run models.SyncRun
	ok, err := findOne(ctx, r.collection, filter, &run, opts)
	if err != nil || !ok {
		return nil, err
	}
	return run.Checkpoint, nil
}

// EnsureIndexes creates the unique and lookup indexes of the metadata collections.
func EnsureIndexes(ctx context.Context, db *database.MongodbDB) error {
	indexes := map[string][]mongo.IndexModel{
		sourcesCollection: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		profilesCollection: {
			{Keys: bson.D{{Key: "source_id", Value: 1}, {Key: "dataset_identifier", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		versionsCollection: {
			{Keys: bson.D{{Key: "profile_id", Value: 1}, {Key: "version_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "profile_id", Value: 1}, {Key: "config_hash", Value: 1}, {Key: "source_schema_hash", Value: 1}}},
		},
		runsCollection: {
			{Keys: bson.D{{Key: "profile_id", Value: 1}, {Key: "strategy", Value: 1}, {Key: "status", Value: 1}, {Key: "started_at", Value: -1}}},
		},
		models.RunLogCollection: {
			{Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}

	for name, idx := range indexes {
		if _, err := db.DB.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}
