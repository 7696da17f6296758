package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
)

type scoreRow struct {
	ScoreID   string         `gorm:"column:score_id;primaryKey"`
	UserID    string         `gorm:"column:user_id;not null;index:idx_scores_user_chart,priority:1"`
	ChartID   string         `gorm:"column:chart_id;not null;index:idx_scores_user_chart,priority:2"`
	Game      string         `gorm:"column:game;not null"`
	Document  datatypes.JSON `gorm:"column:document;type:jsonb;not null"`
	TimeAdded time.Time      `gorm:"column:time_added;not null"`
}

func (scoreRow) TableName() string { return "scores" }

type blacklistRow struct {
	UserID  string `gorm:"column:user_id;primaryKey"`
	ScoreID string `gorm:"column:score_id;primaryKey"`
}

func (blacklistRow) TableName() string { return "score_blacklist" }

type goalRow struct {
	GoalID    string         `gorm:"column:goal_id;primaryKey"`
	Game      string         `gorm:"column:game;not null;index"`
	ChartType string         `gorm:"column:chart_type;not null"`
	ChartData datatypes.JSON `gorm:"column:chart_data;type:jsonb;not null"`
	Document  datatypes.JSON `gorm:"column:document;type:jsonb;not null"`
}

func (goalRow) TableName() string { return "goals" }

type subscriptionRow struct {
	GoalID    string         `gorm:"column:goal_id;primaryKey"`
	UserID    string         `gorm:"column:user_id;primaryKey;index"`
	Document  datatypes.JSON `gorm:"column:document;type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (subscriptionRow) TableName() string { return "goal_subscriptions" }

// Postgres implements ScoreStore, BlacklistStore and GoalStore on gorm.
// Documents are stored as jsonb next to the columns used for lookups.
type Postgres struct {
	db          *gorm.DB
	autoMigrate bool
}

var (
	_ ScoreStore     = (*Postgres)(nil)
	_ BlacklistStore = (*Postgres)(nil)
	_ GoalStore      = (*Postgres)(nil)
)

// OpenPostgres connects to dsn and prepares the schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return NewPostgres(ctx, db, opts...)
}

// NewPostgres wraps an open gorm handle.
func NewPostgres(ctx context.Context, db *gorm.DB, opts ...Option) (*Postgres, error) {
	p := &Postgres{db: db, autoMigrate: true}
	for _, opt := range opts {
		opt(p)
	}
	if p.autoMigrate {
		if err := db.WithContext(ctx).AutoMigrate(&scoreRow{}, &blacklistRow{}, &goalRow{}, &subscriptionRow{}); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return p, nil
}

func toScoreRow(doc *model.ScoreDocument) (*scoreRow, error) {
	if doc == nil || doc.ScoreID == "" {
		return nil, ErrInvalidDocument
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode score %s: %w", doc.ScoreID, err)
	}
	return &scoreRow{
		ScoreID:   doc.ScoreID,
		UserID:    doc.UserID,
		ChartID:   doc.ChartID,
		Game:      string(doc.Game),
		Document:  datatypes.JSON(b),
		TimeAdded: doc.TimeAdded,
	}, nil
}

// Exists implements ScoreStore.
func (p *Postgres) Exists(ctx context.Context, scoreID string) (bool, error) {
	var n int64
	if err := p.db.WithContext(ctx).Model(&scoreRow{}).Where("score_id = ?", scoreID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("score exists: %w", err)
	}
	return n > 0, nil
}

// Insert implements ScoreStore.
func (p *Postgres) Insert(ctx context.Context, doc *model.ScoreDocument) (bool, error) {
	row, err := toScoreRow(doc)
	if err != nil {
		return false, err
	}
	res := p.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return false, fmt.Errorf("insert score: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// InsertMany implements ScoreStore. Each row is inserted with ON CONFLICT DO
// NOTHING inside one transaction, so the returned IDs are exactly the rows
// this call wrote even when another import raced it.
func (p *Postgres) InsertMany(ctx context.Context, docs []*model.ScoreDocument) ([]string, error) {
	rows := make([]*scoreRow, 0, len(docs))
	for _, d := range docs {
		row, err := toScoreRow(d)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	var inserted []string
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted = inserted[:0]
		for _, row := range rows {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				inserted = append(inserted, row.ScoreID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert scores: %w", err)
	}
	return inserted, nil
}

// FindByUserCharts implements ScoreStore.
func (p *Postgres) FindByUserCharts(ctx context.Context, userID string, chartIDs []string) ([]*model.ScoreDocument, error) {
	if len(chartIDs) == 0 {
		return nil, nil
	}
	var rows []scoreRow
	if err := p.db.WithContext(ctx).
		Where("user_id = ? AND chart_id IN ?", userID, chartIDs).
		Order("score_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find scores: %w", err)
	}
	out := make([]*model.ScoreDocument, 0, len(rows))
	for _, r := range rows {
		var doc model.ScoreDocument
		if err := json.Unmarshal(r.Document, &doc); err != nil {
			return nil, fmt.Errorf("decode score %s: %w", r.ScoreID, err)
		}
		out = append(out, &doc)
	}
	return out, nil
}

// Blacklist implements BlacklistStore.
func (p *Postgres) Blacklist(ctx context.Context, userID string) (map[string]struct{}, error) {
	var ids []string
	if err := p.db.WithContext(ctx).Model(&blacklistRow{}).
		Where("user_id = ?", userID).Pluck("score_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	return toSet(ids), nil
}

// AddToBlacklist implements BlacklistStore.
func (p *Postgres) AddToBlacklist(ctx context.Context, userID, scoreID string) error {
	row := blacklistRow{UserID: userID, ScoreID: scoreID}
	if err := p.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("add to blacklist: %w", err)
	}
	return nil
}

// PutGoal implements GoalStore.
func (p *Postgres) PutGoal(ctx context.Context, goal *model.Goal) error {
	if goal == nil || goal.GoalID == "" {
		return ErrInvalidDocument
	}
	doc, err := json.Marshal(goal)
	if err != nil {
		return fmt.Errorf("encode goal: %w", err)
	}
	refs, err := json.Marshal(goal.Charts.Data)
	if err != nil {
		return fmt.Errorf("encode goal charts: %w", err)
	}
	row := goalRow{
		GoalID:    goal.GoalID,
		Game:      string(goal.Game),
		ChartType: goal.Charts.Type,
		ChartData: datatypes.JSON(refs),
		Document:  datatypes.JSON(doc),
	}
	err = p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "goal_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"game", "chart_type", "chart_data", "document"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put goal: %w", err)
	}
	return nil
}

func decodeGoals(rows []goalRow) ([]*model.Goal, error) {
	out := make([]*model.Goal, 0, len(rows))
	for _, r := range rows {
		var g model.Goal
		if err := json.Unmarshal(r.Document, &g); err != nil {
			return nil, fmt.Errorf("decode goal %s: %w", r.GoalID, err)
		}
		out = append(out, &g)
	}
	return out, nil
}

// GoalsForCharts implements GoalStore.
func (p *Postgres) GoalsForCharts(ctx context.Context, game types.Game, chartIDs, folderIDs []string) ([]*model.Goal, error) {
	q := p.db.WithContext(ctx).Where("game = ?", string(game))
	switch {
	case len(chartIDs) > 0 && len(folderIDs) > 0:
		q = q.Where("(chart_type <> ? AND jsonb_exists_any(chart_data, ARRAY[?]::text[])) OR (chart_type = ? AND jsonb_exists_any(chart_data, ARRAY[?]::text[]))",
			model.GoalChartsFolder, chartIDs, model.GoalChartsFolder, folderIDs)
	case len(chartIDs) > 0:
		q = q.Where("chart_type <> ? AND jsonb_exists_any(chart_data, ARRAY[?]::text[])", model.GoalChartsFolder, chartIDs)
	case len(folderIDs) > 0:
		q = q.Where("chart_type = ? AND jsonb_exists_any(chart_data, ARRAY[?]::text[])", model.GoalChartsFolder, folderIDs)
	default:
		return nil, nil
	}
	var rows []goalRow
	if err := q.Order("goal_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("goals for charts: %w", err)
	}
	return decodeGoals(rows)
}

// GoalsInFolder implements GoalStore.
func (p *Postgres) GoalsInFolder(ctx context.Context, folderID string) ([]*model.Goal, error) {
	var rows []goalRow
	if err := p.db.WithContext(ctx).
		Where("chart_type = ? AND chart_data ->> 0 = ?", model.GoalChartsFolder, folderID).
		Order("goal_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("goals in folder: %w", err)
	}
	return decodeGoals(rows)
}

func decodeSubs(rows []subscriptionRow) ([]*model.GoalSubscription, error) {
	out := make([]*model.GoalSubscription, 0, len(rows))
	for _, r := range rows {
		var s model.GoalSubscription
		if err := json.Unmarshal(r.Document, &s); err != nil {
			return nil, fmt.Errorf("decode subscription %s/%s: %w", r.GoalID, r.UserID, err)
		}
		out = append(out, &s)
	}
	return out, nil
}

// SubscriptionsFor implements GoalStore.
func (p *Postgres) SubscriptionsFor(ctx context.Context, userID string, goalIDs []string) ([]*model.GoalSubscription, error) {
	if len(goalIDs) == 0 {
		return nil, nil
	}
	var rows []subscriptionRow
	if err := p.db.WithContext(ctx).
		Where("user_id = ? AND goal_id IN ?", userID, goalIDs).
		Order("goal_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("subscriptions for user: %w", err)
	}
	return decodeSubs(rows)
}

// SubscriptionsForGoals implements GoalStore.
func (p *Postgres) SubscriptionsForGoals(ctx context.Context, goalIDs []string) ([]*model.GoalSubscription, error) {
	if len(goalIDs) == 0 {
		return nil, nil
	}
	var rows []subscriptionRow
	if err := p.db.WithContext(ctx).
		Where("goal_id IN ?", goalIDs).
		Order("goal_id, user_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("subscriptions for goals: %w", err)
	}
	return decodeSubs(rows)
}

func toSubRow(sub *model.GoalSubscription, now time.Time) (subscriptionRow, error) {
	if sub == nil || sub.GoalID == "" || sub.UserID == "" {
		return subscriptionRow{}, ErrInvalidDocument
	}
	b, err := json.Marshal(sub)
	if err != nil {
		return subscriptionRow{}, fmt.Errorf("encode subscription: %w", err)
	}
	return subscriptionRow{GoalID: sub.GoalID, UserID: sub.UserID, Document: datatypes.JSON(b), UpdatedAt: now}, nil
}

var subscriptionUpsert = clause.OnConflict{
	Columns:   []clause.Column{{Name: "goal_id"}, {Name: "user_id"}},
	DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
}

// PutSubscription implements GoalStore.
func (p *Postgres) PutSubscription(ctx context.Context, sub *model.GoalSubscription) error {
	row, err := toSubRow(sub, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := p.db.WithContext(ctx).Clauses(subscriptionUpsert).Create(&row).Error; err != nil {
		return fmt.Errorf("put subscription: %w", err)
	}
	return nil
}

// BulkUpdateSubscriptions implements GoalStore.
func (p *Postgres) BulkUpdateSubscriptions(ctx context.Context, subs []*model.GoalSubscription) error {
	if len(subs) == 0 {
		return ErrEmptyBulkWrite
	}
	now := time.Now().UTC()
	rows := make([]subscriptionRow, 0, len(subs))
	for _, s := range subs {
		row, err := toSubRow(s, now)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := p.db.WithContext(ctx).Clauses(subscriptionUpsert).Create(&rows).Error; err != nil {
		return fmt.Errorf("bulk update subscriptions: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
