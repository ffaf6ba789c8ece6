package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-datasync/internal/connectors"
	"go-datasync/internal/destination"
	"go-datasync/internal/logger"
	"go-datasync/internal/models"
	"go-datasync/internal/strategy"
	"go-datasync/internal/syncerr"
	"go-datasync/internal/transform"
	"go-datasync/internal/versioning"

	"go.uber.org/zap"
)

const missingColumnHint = "Hint: the destination table lacks a column the active mapping writes to. " +
	"This usually means mapped columns were added while an old table is reused; create and activate a new schema version so a fresh table is built"

// ProfileRequest selects a dataset of a source and the strategy replicating it.
type ProfileRequest struct {
	SourceID string             `json:"source_id"`
	Dataset  string             `json:"dataset"`
	Strategy models.StrategyKey `json:"strategy"`
}

// VersionRequest describes a new schema version of a profile.
type VersionRequest struct {
	ColumnMapping   models.ColumnMapping  `json:"column_mapping"`
	SchemaOverrides map[string]string     `json:"schema_overrides"`
	Configuration   models.StrategyConfig `json:"configuration"`
	// LocalTableName pins the destination table; empty derives it
	LocalTableName string `json:"local_table_name"`
	Activate       bool   `json:"activate"`
}

type SyncService interface {
	CreateSource(ctx context.Context, source *models.ExtractSource) error
	ListSources(ctx context.Context) ([]models.ExtractSource, error)
	GetSource(ctx context.Context, id string) (*models.ExtractSource, error)
	TestSource(ctx context.Context, id string) error
	ListDatasets(ctx context.Context, sourceID string) ([]connectors.DatasetDescriptor, error)
	PreviewSchema(ctx context.Context, sourceID, dataset string) (*connectors.RemoteSchema, error)

	EnsureProfile(ctx context.Context, req ProfileRequest) (*models.SyncProfile, error)
	GetProfile(ctx context.Context, id string) (*models.SyncProfile, error)
	ListProfiles(ctx context.Context) ([]models.SyncProfile, error)

	CreateSchemaVersion(ctx context.Context, profileID string, req VersionRequest) (*models.SchemaVersion, error)
	ActivateVersion(ctx context.Context, profileID, versionID string) (*models.SyncProfile, error)
	ListVersions(ctx context.Context, profileID string) ([]models.SchemaVersion, error)

	// RunSync performs one replication pass of a profile and records it as a SyncRun
	RunSync(ctx context.Context, profileID string) (*models.SyncRun, error)
	ListRuns(ctx context.Context, profileID string, limit int64) ([]models.SyncRun, error)
	ListRunLogs(ctx context.Context, runID string) ([]models.RunLog, error)
}

type SyncServiceImpl struct {
	Sources    SourceRepository
	Profiles   ProfileRepository
	Versions   VersionRepository
	Runs       RunRepository
	Connectors *connectors.Registry
	Strategies *strategy.Registry
	Tables     *destination.TableManager
	Locker     ProfileLocker
	Logger     *zap.Logger
	now        func() time.Time
}

func NewSyncService(
	sources SourceRepository,
	profiles ProfileRepository,
	versions VersionRepository,
	runs RunRepository,
	connectorRegistry *connectors.Registry,
	strategies *strategy.Registry,
	tables *destination.TableManager,
	locker ProfileLocker,
	log *zap.Logger,
) SyncService {
	return &SyncServiceImpl{
		Sources:    sources,
		Profiles:   profiles,
		Versions:   versions,
		Runs:       runs,
		Connectors: connectorRegistry,
		Strategies: strategies,
		Tables:     tables,
		Locker:     locker,
		Logger:     log,
		now:        time.Now,
	}
}

// Sources

func (s *SyncServiceImpl) CreateSource(ctx context.Context, source *models.ExtractSource) error {
	source.Name = strings.TrimSpace(source.Name)
	if source.Name == "" {
		return syncerr.Configuration("source name is required")
	}
	if _, err := s.Connectors.Get(source.Connector); err != nil {
		return err
	}

	_, err := s.Sources.GetByName(ctx, source.Name)
	if err == nil {
		return syncerr.Configuration("source %q already exists", source.Name)
	}
	if !errors.Is(err, syncerr.ErrNotFound) {
		return err
	}

	if source.Config == nil {
		source.Config = map[string]interface{}{}
	}
	if err := s.Sources.Create(ctx, source); err != nil {
		return err
	}

	s.Logger.Info("Source created",
		zap.String("source_id", source.ID.Hex()),
		zap.String("name", source.Name),
		zap.String("connector", source.Connector))
	return nil
}

func (s *SyncServiceImpl) ListSources(ctx context.Context) ([]models.ExtractSource, error) {
	return s.Sources.List(ctx)
}

func (s *SyncServiceImpl) GetSource(ctx context.Context, id string) (*models.ExtractSource, error) {
	return s.Sources.Get(ctx, id)
}

func (s *SyncServiceImpl) TestSource(ctx context.Context, id string) error {
	source, err := s.Sources.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.Connectors.Probe(ctx, source.Connector, source.Config)
}

func (s *SyncServiceImpl) ListDatasets(ctx context.Context, sourceID string) ([]connectors.DatasetDescriptor, error) {
	source, conn, err := s.sourceConnector(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	return conn.ListDatasets(ctx, source.Config)
}

func (s *SyncServiceImpl) PreviewSchema(ctx context.Context, sourceID, dataset string) (*connectors.RemoteSchema, error) {
	source, conn, err := s.sourceConnector(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	return conn.InferSchema(ctx, dataset, source.Config)
}

func (s *SyncServiceImpl) sourceConnector(ctx context.Context, sourceID string) (*models.ExtractSource, connectors.Connector, error) {
	source, err := s.Sources.Get(ctx, sourceID)
	if err != nil {
		return nil, nil, err
	}
	conn, err := s.Connectors.Get(source.Connector)
	if err != nil {
		return nil, nil, err
	}
	return source, conn, nil
}

// Profiles

// EnsureProfile returns the profile of the dataset, creating it on first use.
// An existing profile is switched to the requested strategy.
func (s *SyncServiceImpl) EnsureProfile(ctx context.Context, req ProfileRequest) (*models.SyncProfile, error) {
	if strings.TrimSpace(req.Dataset) == "" {
		return nil, syncerr.Configuration("dataset is required")
	}
	if _, err := s.Strategies.Get(req.Strategy); err != nil {
		return nil, err
	}
	source, err := s.Sources.Get(ctx, req.SourceID)
	if err != nil {
		return nil, err
	}

	existing, err := s.Profiles.FindBySourceDataset(ctx, source.ID, req.Dataset)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Strategy != req.Strategy {
			if err := s.Profiles.Update(ctx, existing.ID.Hex(), map[string]interface{}{"strategy": req.Strategy}); err != nil {
				return nil, err
			}
			existing.Strategy = req.Strategy
		}
		return existing, nil
	}

	profile := &models.SyncProfile{
		SourceID:          source.ID,
		DatasetIdentifier: req.Dataset,
		Strategy:          req.Strategy,
	}
	if err := s.Profiles.Create(ctx, profile); err != nil {
		return nil, err
	}

	s.Logger.Info("Profile created",
		zap.String("profile_id", profile.ID.Hex()),
		zap.String("dataset", profile.DatasetIdentifier),
		zap.String("strategy", string(profile.Strategy)))
	return profile, nil
}

func (s *SyncServiceImpl) GetProfile(ctx context.Context, id string) (*models.SyncProfile, error) {
	return s.Profiles.Get(ctx, id)
}

func (s *SyncServiceImpl) ListProfiles(ctx context.Context) ([]models.SyncProfile, error) {
	return s.Profiles.List(ctx)
}

// Schema versions

// CreateSchemaVersion captures the live source schema together with the
// requested mapping. A request identical to an existing version of the profile
// (same config hash against the same source schema) returns that version.
func (s *SyncServiceImpl) CreateSchemaVersion(ctx context.Context, profileID string, req VersionRequest) (*models.SchemaVersion, error) {
	profile, err := s.Profiles.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}
	strat, err := s.Strategies.Get(profile.Strategy)
	if err != nil {
		return nil, err
	}
	if err := versioning.ValidateMapping(req.ColumnMapping, req.SchemaOverrides); err != nil {
		return nil, err
	}
	if err := strat.Validate(req.Configuration); err != nil {
		return nil, err
	}

	source, conn, err := s.sourceConnector(ctx, profile.SourceID.Hex())
	if err != nil {
		return nil, err
	}
	if err := s.Connectors.Probe(ctx, source.Connector, source.Config); err != nil {
		return nil, err
	}
	schema, err := conn.InferSchema(ctx, profile.DatasetIdentifier, source.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema of %s: %w", profile.DatasetIdentifier, err)
	}
	if err := checkMappedColumns(schema, req.ColumnMapping); err != nil {
		return nil, err
	}
	if err := versioning.ValidateFields(transform.ApplyToFields(schema.Fields, req.ColumnMapping)); err != nil {
		return nil, err
	}

	schemaHash, err := versioning.SchemaHash(schema.Fields)
	if err != nil {
		return nil, err
	}
	configHash, err := versioning.ConfigHash(req.ColumnMapping, req.SchemaOverrides, req.Configuration, profile.Strategy)
	if err != nil {
		return nil, err
	}

	existing, err := s.Versions.FindByHashes(ctx, profile.ID, configHash, schemaHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if req.Activate {
			if err := s.activate(ctx, profile, existing); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	latest, err := s.Versions.Latest(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	number := 1
	if latest != nil {
		number = latest.VersionNumber + 1
	}

	table := strings.TrimSpace(req.LocalTableName)
	switch {
	case table != "":
		inUse, err := s.Versions.TableInUse(ctx, table)
		if err != nil {
			return nil, err
		}
		if inUse {
			return nil, syncerr.Configuration("table %q already belongs to another schema version", table)
		}
	case latest != nil && latest.LocalTableName != "":
		table = versioning.NextTableName(latest.LocalTableName, number)
	}

	version := &models.SchemaVersion{
		ProfileID:        profile.ID,
		VersionNumber:    number,
		LocalTableName:   table,
		ColumnMapping:    req.ColumnMapping,
		SchemaOverrides:  req.SchemaOverrides,
		Configuration:    req.Configuration,
		SourceSchemaHash: schemaHash,
		ConfigHash:       configHash,
	}
	if err := s.Versions.Create(ctx, version); err != nil {
		return nil, err
	}

	s.Logger.Info("Schema version created",
		zap.String("profile_id", profile.ID.Hex()),
		zap.Int("version", version.VersionNumber),
		zap.String("table", version.LocalTableName))

	if req.Activate {
		if err := s.activate(ctx, profile, version); err != nil {
			return nil, err
		}
	}
	return version, nil
}

func checkMappedColumns(schema *connectors.RemoteSchema, mapping models.ColumnMapping) error {
	known := make(map[string]struct{}, len(schema.Fields))
	for _, f := range schema.Fields {
		known[f.Name] = struct{}{}
	}
	for source := range mapping {
		if _, ok := known[source]; !ok {
			return syncerr.Configuration("mapped column %q is not in the source schema of %s", source, schema.Dataset)
		}
	}
	return nil
}

func (s *SyncServiceImpl) ActivateVersion(ctx context.Context, profileID, versionID string) (*models.SyncProfile, error) {
	profile, err := s.Profiles.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}
	version, err := s.Versions.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version.ProfileID != profile.ID {
		return nil, notFound("schema version", versionID)
	}
	if err := s.activate(ctx, profile, version); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *SyncServiceImpl) activate(ctx context.Context, profile *models.SyncProfile, version *models.SchemaVersion) error {
	if err := s.Profiles.Update(ctx, profile.ID.Hex(), map[string]interface{}{"active_schema_version_id": version.ID}); err != nil {
		return err
	}
	id := version.ID
	profile.ActiveSchemaVersionID = &id

	s.Logger.Info("Schema version activated",
		zap.String("profile_id", profile.ID.Hex()),
		zap.Int("version", version.VersionNumber))
	return nil
}

func (s *SyncServiceImpl) ListVersions(ctx context.Context, profileID string) ([]models.SchemaVersion, error) {
	profile, err := s.Profiles.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return s.Versions.ListByProfile(ctx, profile.ID)
}

// Runs

func (s *SyncServiceImpl) RunSync(ctx context.Context, profileID string) (*models.SyncRun, error) {
	profile, err := s.Profiles.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.Locker.TryLock(ctx, profile.ID.Hex())
	if err != nil {
		return nil, err
	}
	defer unlock()

	run := &models.SyncRun{
		ProfileID: profile.ID,
		Strategy:  profile.Strategy,
		Status:    models.RunStatusRunning,
		StartedAt: s.now().UTC(),
	}
	if err := s.Runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record sync run: %w", err)
	}

	runLog := s.Logger.With(
		zap.String(logger.RunIDKey, run.ID.Hex()),
		zap.String(logger.ProfileIDKey, profile.ID.Hex()))
	runLog.Info("Sync started",
		zap.String("dataset", profile.DatasetIdentifier),
		zap.String("strategy", string(profile.Strategy)))

	runErr := s.execute(ctx, profile.ID.Hex(), run)

	finishedAt := s.now().UTC()
	if runErr == nil {
		if err := run.Succeed(finishedAt); err != nil {
			runErr = fmt.Errorf("failed to finalize sync run: %w", err)
		} else {
			runLog.Info("Sync finished",
				zap.Int("rows_added", run.RowsAdded),
				zap.Int("rows_updated", run.RowsUpdated),
				zap.Int("rows_deleted", run.RowsDeleted),
				zap.Duration("duration", finishedAt.Sub(run.StartedAt)))
		}
	}
	if runErr != nil {
		if err := run.Fail(finishedAt, failureMessage(runErr)); err != nil {
			runLog.Error("Sync run was finalized by its strategy",
				zap.String("status", string(run.Status)), zap.Error(err))
		}
		runLog.Error("Sync failed", zap.Error(runErr))
	}

	// The outcome is recorded even when the caller has gone away
	if err := s.Runs.Update(context.WithoutCancel(ctx), run); err != nil {
		runLog.Error("Failed to record sync outcome", zap.Error(err))
		if runErr == nil {
			return run, fmt.Errorf("failed to record sync run: %w", err)
		}
	}
	return run, runErr
}

// execute validates every precondition of a pass and dispatches the strategy.
func (s *SyncServiceImpl) execute(ctx context.Context, profileID string, run *models.SyncRun) error {
	// Re-read so a version activated just before the run is honoured
	profile, err := s.Profiles.Get(ctx, profileID)
	if err != nil {
		return err
	}
	if profile.ActiveSchemaVersionID == nil {
		return fmt.Errorf("%w: profile %s", syncerr.ErrNoActiveVersion, profileID)
	}
	version, err := s.Versions.Get(ctx, profile.ActiveSchemaVersionID.Hex())
	if err != nil {
		return err
	}
	run.SchemaVersionID = &version.ID
	run.Strategy = profile.Strategy

	strat, err := s.Strategies.Get(profile.Strategy)
	if err != nil {
		return err
	}
	if err := strat.Validate(version.Configuration); err != nil {
		return err
	}

	source, conn, err := s.sourceConnector(ctx, profile.SourceID.Hex())
	if err != nil {
		return err
	}
	if err := s.Connectors.Probe(ctx, source.Connector, source.Config); err != nil {
		return err
	}
	schema, err := conn.InferSchema(ctx, profile.DatasetIdentifier, source.Config)
	if err != nil {
		return fmt.Errorf("failed to read schema of %s: %w", profile.DatasetIdentifier, err)
	}
	liveHash, err := versioning.SchemaHash(schema.Fields)
	if err != nil {
		return err
	}
	if liveHash != version.SourceSchemaHash {
		return &syncerr.SchemaDriftError{
			Dataset:  profile.DatasetIdentifier,
			Expected: version.SourceSchemaHash,
			Actual:   liveHash,
		}
	}

	table, err := s.Tables.EnsureTableExists(ctx, destination.Target{
		Source:  source,
		Profile: profile,
		Version: version,
		Schema:  schema,
	})
	if err != nil {
		return err
	}
	if table != version.LocalTableName {
		if err := s.Versions.SetTableName(ctx, version.ID, table); err != nil {
			return fmt.Errorf("failed to record table of version %d: %w", version.VersionNumber, err)
		}
		version.LocalTableName = table
	}

	return strat.Run(ctx, &strategy.Pass{
		Source:    source,
		Profile:   profile,
		Version:   version,
		Table:     table,
		Connector: conn,
	}, run)
}

// failureMessage is the run's log message. Missing column errors that were not
// already classified get the operator hint appended.
func failureMessage(err error) string {
	msg := err.Error()
	if destination.IsMissingColumn(err) && !errors.Is(err, syncerr.ErrTableShape) {
		msg += ". " + missingColumnHint
	}
	return msg
}

func (s *SyncServiceImpl) ListRuns(ctx context.Context, profileID string, limit int64) ([]models.SyncRun, error) {
	profile, err := s.Profiles.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return s.Runs.List(ctx, profile.ID, limit)
}

func (s *SyncServiceImpl) ListRunLogs(ctx context.Context, runID string) ([]models.RunLog, error) {
	return s.Runs.ListLogs(ctx, runID)
}
