package indicators

import (
	"fmt"

	"technical-analyst/models"
)

// Signals derives buy/sell/trend hints from the latest bars of an enriched series
func Signals(series models.Series) []models.Signal {
	signals := []models.Signal{}
	last, ok := series.Last()
	if !ok {
		return signals
	}

	if last.RSI != nil {
		rsi := *last.RSI
		switch {
		case rsi > RSIOverbought:
			signals = append(signals, models.Signal{
				Title:       "RSI Overbought",
				Level:       models.SignalDanger,
				Value:       last.RSI,
				Description: fmt.Sprintf("RSI at %.1f > %.0f - sell signal", rsi, RSIOverbought),
			})
		case rsi < RSIOversold:
			signals = append(signals, models.Signal{
				Title:       "RSI Oversold",
				Level:       models.SignalSuccess,
				Value:       last.RSI,
				Description: fmt.Sprintf("RSI at %.1f < %.0f - buy signal", rsi, RSIOversold),
			})
		}
	}

	if last.MA20 != nil && last.MA50 != nil {
		if *last.MA20 > *last.MA50 {
			signals = append(signals, models.Signal{
				Title:       "Uptrend",
				Level:       models.SignalSuccess,
				Description: "MA20 > MA50 - trending up",
			})
		} else {
			signals = append(signals, models.Signal{
				Title:       "Downtrend",
				Level:       models.SignalWarning,
				Description: "MA20 < MA50 - trending down",
			})
		}
	}

	if len(series) > 1 {
		prev := series[len(series)-2]
		if prev.MACD != nil && prev.MACDSignal != nil && last.MACD != nil && last.MACDSignal != nil {
			switch {
			case *prev.MACD < *prev.MACDSignal && *last.MACD > *last.MACDSignal:
				signals = append(signals, models.Signal{
					Title:       "MACD Crossover",
					Level:       models.SignalSuccess,
					Value:       last.MACD,
					Description: "MACD crossed above its signal line - buy",
				})
			case *prev.MACD > *prev.MACDSignal && *last.MACD < *last.MACDSignal:
				signals = append(signals, models.Signal{
					Title:       "MACD Crossover",
					Level:       models.SignalDanger,
					Value:       last.MACD,
					Description: "MACD crossed below its signal line - sell",
				})
			}
		}
	}

	volMA := Last(SMA(series.Volumes(), VolumeMAPeriod))
	if volMA != nil && *volMA > 0 && float64(last.Volume) > VolumeSpikeRatio**volMA {
		ratio := float64(last.Volume) / *volMA
		signals = append(signals, models.Signal{
			Title:       "Volume Spike",
			Level:       models.SignalWarning,
			Value:       &ratio,
			Description: fmt.Sprintf("Volume %.1fx its %d-day average", ratio, VolumeMAPeriod),
		})
	}

	return signals
}
