package store

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"

	"pictionary/models"
)

// Field names of the session hash. They match the JSON names of models.Session.
const (
	FieldVersion        = "version"
	FieldPlayers        = "players"
	FieldHost           = "host"
	FieldPhase          = "phase"
	FieldRoundNumber    = "roundNumber"
	FieldMaxRounds      = "maxRounds"
	FieldCurrentDrawer  = "currentDrawer"
	FieldSecretWords    = "secretWords"
	FieldTimeLeft       = "timeLeft"
	FieldDrawingHistory = "drawingHistory"
	FieldChatLog        = "chatLog"
	FieldCorrectGuess   = "correctGuess"
	FieldWinner         = "winner"
	FieldFinalScores    = "finalScores"
)

// Fields the session id is not part of: it lives in the key.
var writableFields = map[string]bool{
	FieldPlayers: true, FieldHost: true, FieldPhase: true, FieldRoundNumber: true,
	FieldMaxRounds: true, FieldCurrentDrawer: true, FieldSecretWords: true, FieldTimeLeft: true,
	FieldDrawingHistory: true, FieldChatLog: true, FieldCorrectGuess: true, FieldWinner: true,
	FieldFinalScores: true, "createdAt": true, "updatedAt": true,
}

// encodeFields splits a session into one JSON value per top-level field.
func encodeFields(s *models.Session) (map[string]string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var parts map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	delete(parts, "id")
	fields := make(map[string]string, len(parts))
	for k, v := range parts {
		fields[k] = string(v)
	}
	return fields, nil
}

func decodeFields(id string, fields map[string]string) (*models.Session, error) {
	parts := make(map[string]json.RawMessage, len(fields)+1)
	for k, v := range fields {
		parts[k] = json.RawMessage(v)
	}
	idJSON, _ := json.Marshal(id)
	parts["id"] = idJSON

	raw, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	s := &models.Session{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	normalize(s)
	return s, nil
}

// changedFields returns the fields of next that differ from prev.
func changedFields(prev, next map[string]string) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range next {
		if old, ok := prev[k]; !ok || old != v {
			out[k] = v
		}
	}
	return out
}

func cloneSession(s *models.Session) (*models.Session, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	out := &models.Session{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	normalize(out)
	return out, nil
}

// normalize replaces JSON nulls with empty collections so callers never nil-check.
func normalize(s *models.Session) {
	if s.Players == nil {
		s.Players = []models.Player{}
	}
	if s.SecretWords == nil {
		s.SecretWords = map[string]string{}
	}
	if s.DrawingHistory == nil {
		s.DrawingHistory = []models.StrokeEvent{}
	}
	if s.ChatLog == nil {
		s.ChatLog = []models.ChatEntry{}
	}
	if s.Phase == "" {
		s.Phase = models.PhaseLobby
	}
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewSessionCode returns a short code players can read out to each other.
func NewSessionCode(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b), nil
}

func encodeValue(value interface{}) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
