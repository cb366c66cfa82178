package models

import (
	jwt "github.com/dgrijalva/jwt-go"
)

// PlayerClaims はJWTクレームの構造体定義です。トークンはプレイヤーを1つのセッションに結びつけます。
type PlayerClaims struct {
	SessionID   string `json:"sid"`
	PlayerID    string `json:"pid"`
	CallerToken string `json:"ctk,omitempty"`
	jwt.StandardClaims
}
