package game

import (
	"context"
	"fmt"
	"strings"

	"pictionary/models"

	"go.uber.org/zap"
)

const systemAuthor = "System"

// GuessOutcome reports what a chat message did. Correct means it matched the
// word; Settled means it was the first correct guess of the round and scored.
type GuessOutcome struct {
	Correct bool
	Settled bool
}

func normalizeGuess(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func truncateRunes(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max])
}

func (e *Engine) appendChat(s *models.Session, entry models.ChatEntry) {
	s.ChatLog = append(s.ChatLog, entry)
	if over := len(s.ChatLog) - e.cfg.MaxChatLog; over > 0 {
		s.ChatLog = append([]models.ChatEntry(nil), s.ChatLog[over:]...)
	}
}

// SubmitChat appends the message to the chat and evaluates it as a guess.
// Only the first correct guess of a round scores.
func (e *Engine) SubmitChat(ctx context.Context, sessionID, playerID, text string) (GuessOutcome, error) {
	var outcome GuessOutcome
	_, err := e.update(ctx, sessionID, func(s *models.Session, _ *bool) error {
		outcome = GuessOutcome{}
		guesser := s.Player(playerID)
		if guesser == nil {
			return ErrPlayerNotFound
		}
		now := e.now()
		e.appendChat(s, models.ChatEntry{
			AuthorID:  playerID,
			Author:    guesser.Name,
			Text:      truncateRunes(text, e.cfg.MaxChatLength),
			Timestamp: now,
		})

		if s.Phase != models.PhaseActive || playerID == s.CurrentDrawer {
			return nil
		}
		guess := normalizeGuess(text)
		word := s.SecretWord()
		if guess == "" || word == "" || guess != normalizeGuess(word) {
			return nil
		}
		outcome.Correct = true
		if s.CorrectGuess != nil {
			return nil
		}

		// settlement: the CAS on correctGuess makes this happen once per round
		guesser.Score += e.cfg.GuesserPoints
		if drawer := s.Player(s.CurrentDrawer); drawer != nil {
			drawer.Score += e.cfg.DrawerPoints
		}
		s.CorrectGuess = &models.CorrectGuess{GuesserID: playerID, Word: word}
		e.appendChat(s, models.ChatEntry{
			Author:                     systemAuthor,
			Text:                       fmt.Sprintf("%s guessed the word: %s", guesser.Name, word),
			Timestamp:                  now,
			IsSystem:                   true,
			IsCorrectGuessAnnouncement: true,
		})
		outcome.Settled = true
		return nil
	})
	if err != nil {
		return GuessOutcome{}, err
	}
	if outcome.Settled {
		e.logger.Info("Correct guess",
			zap.String("sessionID", sessionID), zap.String("playerID", playerID))
	}
	return outcome, nil
}
