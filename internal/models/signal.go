package models

// Side как везде в движке: "BUY"/"SELL" или пустая строка.
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type StrategyType string

const (
	StrategyEMARSI   StrategyType = "emarsi"
	StrategyDonchian StrategyType = "donchian"
)

// CandidateSignal — сырое предложение сделки от стратегии за один цикл.
// Живёт только внутри вызова: движок копирует поля в TrackedSignal,
// сам кандидат никем не хранится.
type CandidateSignal struct {
	InstID     string
	Side       Side
	Entry      float64
	Stop       float64
	Targets    []float64 // по возрастанию удалённости от входа
	Confidence float64   // [0,1]
	Strategy   StrategyType
	Reason     string
}

// Milestone — уровень частичного выхода: на Pips прибыли закрываем
// Fraction от ИСХОДНОГО размера позиции (доли копятся кумулятивно).
type Milestone struct {
	Pips     float64 `yaml:"pips"`
	Fraction float64 `yaml:"fraction"`
}
