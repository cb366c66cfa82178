package game

import (
	"unicode/utf8"

	"pictionary/models"
)

// View projects a session for one player. The secret word only reaches the drawer.
func View(s *models.Session, viewerID string) models.SessionView {
	v := models.SessionView{
		ID:             s.ID,
		Version:        s.Version,
		Players:        make([]models.PlayerView, 0, len(s.Players)),
		Host:           s.Host,
		Phase:          s.Phase,
		RoundNumber:    s.RoundNumber,
		MaxRounds:      s.MaxRounds,
		CurrentDrawer:  s.CurrentDrawer,
		TimeLeft:       s.TimeLeft,
		DrawingHistory: s.DrawingHistory,
		ChatLog:        s.ChatLog,
		CorrectGuess:   s.CorrectGuess,
		You:            viewerID,
		IsHost:         viewerID != "" && s.Host == viewerID,
		IsDrawer:       viewerID != "" && s.CurrentDrawer == viewerID,
	}
	for _, p := range s.Players {
		v.Players = append(v.Players, models.PlayerView{ID: p.ID, Name: p.Name, Score: p.Score})
	}
	if s.Phase == models.PhaseActive {
		word := s.SecretWord()
		v.WordLength = utf8.RuneCountInString(word)
		if v.IsDrawer {
			v.Word = word
		}
	}
	if s.Phase == models.PhaseEnded {
		v.Winner = s.Winner
		v.FinalScores = s.FinalScores
	}
	return v
}
