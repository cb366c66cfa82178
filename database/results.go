package database

import (
	"context"
	"encoding/json"
	"time"

	"pictionary/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ResultRepository archives finished games in PostgreSQL.
type ResultRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewResultRepository(db *gorm.DB, logger *zap.Logger) *ResultRepository {
	return &ResultRepository{db: db, logger: logger}
}

func (r *ResultRepository) RecordResult(ctx context.Context, s *models.Session) error {
	scores, err := json.Marshal(s.FinalScores)
	if err != nil {
		return err
	}
	result := models.GameResult{
		SessionID:   s.ID,
		Rounds:      s.RoundNumber,
		PlayerCount: len(s.Players),
		FinalScores: datatypes.JSON(scores),
		FinishedAt:  s.UpdatedAt,
	}
	if s.Winner != nil {
		result.WinnerID = s.Winner.PlayerID
		result.WinnerName = s.Winner.Name
		result.WinnerScore = s.Winner.Score
	}
	if err := r.db.WithContext(ctx).Create(&result).Error; err != nil {
		return err
	}
	r.logger.Info("ゲーム結果を保存しました", zap.String("sessionID", s.ID), zap.Uint("resultID", result.ID))
	return nil
}

// LatestResults returns the most recently finished games first.
func (r *ResultRepository) LatestResults(ctx context.Context, limit int) ([]models.GameResult, error) {
	var results []models.GameResult
	err := r.db.WithContext(ctx).
		Order("finished_at DESC").
		Limit(limit).
		Find(&results).Error
	return results, err
}

// DeleteOlderThan removes archived games finished before cutoff and returns how many went.
func (r *ResultRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Unscoped().
		Where("finished_at < ?", cutoff).
		Delete(&models.GameResult{})
	return result.RowsAffected, result.Error
}
