package models

// SessionView は特定のプレイヤーに送信される状態です。秘密の単語は描き手にのみ含まれます。
type SessionView struct {
	ID             string        `json:"id"`
	Version        int64         `json:"version"`
	Players        []PlayerView  `json:"players"`
	Host           string        `json:"host"`
	Phase          Phase         `json:"phase"`
	RoundNumber    int           `json:"roundNumber"`
	MaxRounds      int           `json:"maxRounds"`
	CurrentDrawer  string        `json:"currentDrawer"`
	Word           string        `json:"word,omitempty"`
	WordLength     int           `json:"wordLength"`
	TimeLeft       int           `json:"timeLeft"`
	DrawingHistory []StrokeEvent `json:"drawingHistory"`
	ChatLog        []ChatEntry   `json:"chatLog"`
	CorrectGuess   *CorrectGuess `json:"correctGuess,omitempty"`
	Winner         *ScoreEntry   `json:"winner,omitempty"`
	FinalScores    []ScoreEntry  `json:"finalScores,omitempty"`
	You            string        `json:"you"`
	IsHost         bool          `json:"isHost"`
	IsDrawer       bool          `json:"isDrawer"`
}

type PlayerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}
