package sync

import (
	"context"
	"sort"
	stdsync "sync"
	"time"

	"go-datasync/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repositories. Values are copied in and out so callers never share
// state with the store, as with a real database.

type MockSourceRepository struct {
	mu      stdsync.Mutex
	sources []models.ExtractSource
}

func (r *MockSourceRepository) Create(ctx context.Context, source *models.ExtractSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if source.ID.IsZero() {
		source.ID = primitive.NewObjectID()
	}
	source.CreatedAt = time.Now()
	r.sources = append(r.sources, *source)
	return nil
}

func (r *MockSourceRepository) Get(ctx context.Context, id string) (*models.ExtractSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sources {
		if s.ID.Hex() == id {
			return &s, nil
		}
	}
	return nil, notFound("source", id)
}

func (r *MockSourceRepository) GetByName(ctx context.Context, name string) (*models.ExtractSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sources {
		if s.Name == name {
			return &s, nil
		}
	}
	return nil, notFound("source", name)
}

func (r *MockSourceRepository) List(ctx context.Context) ([]models.ExtractSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ExtractSource(nil), r.sources...), nil
}

type MockProfileRepository struct {
	mu       stdsync.Mutex
	profiles []models.SyncProfile
}

func (r *MockProfileRepository) Create(ctx context.Context, profile *models.SyncProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if profile.ID.IsZero() {
		profile.ID = primitive.NewObjectID()
	}
	profile.CreatedAt = time.Now()
	r.profiles = append(r.profiles, *profile)
	return nil
}

func (r *MockProfileRepository) Get(ctx context.Context, id string) (*models.SyncProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.ID.Hex() == id {
			return &p, nil
		}
	}
	return nil, notFound("profile", id)
}

func (r *MockProfileRepository) FindBySourceDataset(ctx context.Context, sourceID primitive.ObjectID, dataset string) (*models.SyncProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.SourceID == sourceID && p.DatasetIdentifier == dataset {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *MockProfileRepository) List(ctx context.Context) ([]models.SyncProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SyncProfile(nil), r.profiles...), nil
}

func (r *MockProfileRepository) ListScheduled(ctx context.Context) ([]models.SyncProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SyncProfile
	for _, p := range r.profiles {
		if p.Schedule != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MockProfileRepository) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.profiles {
		p := &r.profiles[i]
		if p.ID.Hex() != id {
			continue
		}
		for k, v := range updates {
			switch k {
			case "strategy":
				p.Strategy = v.(models.StrategyKey)
			case "active_schema_version_id":
				oid := v.(primitive.ObjectID)
				p.ActiveSchemaVersionID = &oid
			case "schedule":
				p.Schedule = v.(string)
			}
		}
		p.UpdatedAt = time.Now()
		return nil
	}
	return notFound("profile", id)
}

type MockVersionRepository struct {
	mu       stdsync.Mutex
	versions []models.SchemaVersion
}

func (r *MockVersionRepository) Create(ctx context.Context, version *models.SchemaVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if version.ID.IsZero() {
		version.ID = primitive.NewObjectID()
	}
	version.CreatedAt = time.Now()
	r.versions = append(r.versions, *version)
	return nil
}

func (r *MockVersionRepository) Get(ctx context.Context, id string) (*models.SchemaVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.ID.Hex() == id {
			return &v, nil
		}
	}
	return nil, notFound("schema version", id)
}

func (r *MockVersionRepository) FindByHashes(ctx context.Context, profileID primitive.ObjectID, configHash, schemaHash string) (*models.SchemaVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.ProfileID == profileID && v.ConfigHash == configHash && v.SourceSchemaHash == schemaHash {
			return &v, nil
		}
	}
	return nil, nil
}

func (r *MockVersionRepository) Latest(ctx context.Context, profileID primitive.ObjectID) (*models.SchemaVersion, error) {
	versions, _ := r.ListByProfile(ctx, profileID)
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[0], nil
}

func (r *MockVersionRepository) ListByProfile(ctx context.Context, profileID primitive.ObjectID) ([]models.SchemaVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SchemaVersion
	for _, v := range r.versions {
		if v.ProfileID == profileID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (r *MockVersionRepository) SetTableName(ctx context.Context, id primitive.ObjectID, table string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.versions {
		if r.versions[i].ID == id {
			r.versions[i].LocalTableName = table
			return nil
		}
	}
	return notFound("schema version", id.Hex())
}

func (r *MockVersionRepository) TableInUse(ctx context.Context, table string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.LocalTableName == table {
			return true, nil
		}
	}
	return false, nil
}

type MockRunRepository struct {
	mu   stdsync.Mutex
	runs []models.SyncRun
}

func (r *MockRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run.ID.IsZero() {
		run.ID = primitive.NewObjectID()
	}
	r.runs = append(r.runs, *run)
	return nil
}

func (r *MockRunRepository) Update(ctx context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.runs {
		if r.runs[i].ID == run.ID {
			r.runs[i] = *run
			return nil
		}
	}
	return notFound("run", run.ID.Hex())
}

// List returns runs newest first.
func (r *MockRunRepository) List(ctx context.Context, profileID primitive.ObjectID, limit int64) ([]models.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SyncRun
	for i := len(r.runs) - 1; i >= 0; i-- {
		if r.runs[i].ProfileID == profileID {
			out = append(out, r.runs[i])
		}
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockRunRepository) ListLogs(ctx context.Context, runID string) ([]models.RunLog, error) {
	return nil, nil
}

func (r *MockRunRepository) LastCheckpoint(ctx context.Context, profileID primitive.ObjectID, strategy models.StrategyKey) (models.Checkpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.runs) - 1; i >= 0; i-- {
		run := r.runs[i]
		if run.ProfileID == profileID && run.Strategy == strategy && run.Status == models.RunStatusSuccess {
			return run.Checkpoint, nil
		}
	}
	return nil, nil
}
