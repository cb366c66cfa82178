package models

import "time"

// Phase はセッションの進行状態です。
type Phase string

const (
	PhaseLobby  Phase = "lobby"
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended"
)

// Player はセッションに参加しているプレイヤー
type Player struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Score       int       `json:"score"`
	LastSeen    time.Time `json:"lastSeen"`
	JoinedAt    time.Time `json:"joinedAt"`
	CallerToken string    `json:"callerToken,omitempty"` // same browser tab -> same token
}

type StrokeType string

const (
	StrokeStart StrokeType = "start"
	StrokeDraw  StrokeType = "draw"
)

// StrokeEvent is one point of the drawer's pen, replayed in order by every client.
type StrokeEvent struct {
	Type       StrokeType `json:"type"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Color      string     `json:"color"`
	BrushWidth float64    `json:"brushWidth"`
}

type ChatEntry struct {
	AuthorID                   string    `json:"authorId,omitempty"`
	Author                     string    `json:"author"`
	Text                       string    `json:"text"`
	Timestamp                  time.Time `json:"timestamp"`
	IsSystem                   bool      `json:"isSystem"`
	IsCorrectGuessAnnouncement bool      `json:"isCorrectGuessAnnouncement"`
}

// CorrectGuess is set at most once per round. Its presence ends the round early.
type CorrectGuess struct {
	GuesserID string `json:"guesserId"`
	Word      string `json:"word"`
}

type ScoreEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// Session は1つのゲームインスタンスの全状態。ストアに保存される唯一の共有レコードです。
type Session struct {
	ID             string            `json:"id"`
	Version        int64             `json:"version"`
	Players        []Player          `json:"players"` // join order == turn order
	Host           string            `json:"host"`
	Phase          Phase             `json:"phase"`
	RoundNumber    int               `json:"roundNumber"`
	MaxRounds      int               `json:"maxRounds"`
	CurrentDrawer  string            `json:"currentDrawer"`
	SecretWords    map[string]string `json:"secretWords"` // drawerID -> word, never projected to others
	TimeLeft       int               `json:"timeLeft"`
	DrawingHistory []StrokeEvent     `json:"drawingHistory"`
	ChatLog        []ChatEntry       `json:"chatLog"`
	CorrectGuess   *CorrectGuess     `json:"correctGuess"`
	Winner         *ScoreEntry       `json:"winner"`
	FinalScores    []ScoreEntry      `json:"finalScores"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

func NewSession(now time.Time) *Session {
	return &Session{
		Players:        []Player{},
		Phase:          PhaseLobby,
		SecretWords:    map[string]string{},
		DrawingHistory: []StrokeEvent{},
		ChatLog:        []ChatEntry{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// PlayerIndex returns the join-order position of the player, or -1.
func (s *Session) PlayerIndex(playerID string) int {
	for i := range s.Players {
		if s.Players[i].ID == playerID {
			return i
		}
	}
	return -1
}

func (s *Session) Player(playerID string) *Player {
	if i := s.PlayerIndex(playerID); i >= 0 {
		return &s.Players[i]
	}
	return nil
}

func (s *Session) HasPlayer(playerID string) bool {
	return s.PlayerIndex(playerID) >= 0
}

// RemovePlayer drops the player while keeping the join order of everyone else.
func (s *Session) RemovePlayer(playerID string) (Player, bool) {
	i := s.PlayerIndex(playerID)
	if i < 0 {
		return Player{}, false
	}
	p := s.Players[i]
	s.Players = append(s.Players[:i:i], s.Players[i+1:]...)
	delete(s.SecretWords, playerID)
	return p, true
}

func (s *Session) SecretWord() string {
	if s.CurrentDrawer == "" {
		return ""
	}
	return s.SecretWords[s.CurrentDrawer]
}
