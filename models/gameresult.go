package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GameResult は終了したゲームの記録です。
type GameResult struct {
	gorm.Model
	SessionID   string         `gorm:"index;not null" json:"sessionId"`
	WinnerID    string         `json:"winnerId"`
	WinnerName  string         `json:"winnerName"`
	WinnerScore int            `json:"winnerScore"`
	Rounds      int            `gorm:"not null" json:"rounds"`
	PlayerCount int            `gorm:"not null" json:"playerCount"`
	FinalScores datatypes.JSON `gorm:"type:jsonb;not null" json:"finalScores"`
	FinishedAt  time.Time      `gorm:"index;not null" json:"finishedAt"`
}
