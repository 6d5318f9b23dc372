// Package scoring derives a squad's score and rank tier from its stats.
package scoring

import (
	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/shopspring/decimal"
)

// Score weights. Wins and coins raise the score, losses lower it.
const (
	WinPoints  = 100
	CoinPoints = 1
	LossPoints = 50
	PushPoints = 10
)

// ComputeScore returns
//
//	wins*WinPoints + coins*CoinPoints - losses*LossPoints + pushes*PushPoints
//
// rounded to two decimal places.
func ComputeScore(stats domain.Stats) float64 {
	score := decimal.NewFromInt(stats.Wins * WinPoints).
		Add(stats.Coins.Mul(decimal.NewFromInt(CoinPoints))).
		Sub(decimal.NewFromInt(stats.Losses * LossPoints)).
		Add(decimal.NewFromInt(stats.Pushes * PushPoints))
	return score.Round(2).InexactFloat64()
}
