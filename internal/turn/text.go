// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package turn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/stratchat/internal/model"
	"github.com/jeranaias/stratchat/internal/util"
)

// Fixed user-facing texts.
const (
	WelcomeText = "안녕하세요! 트레이딩 전략을 자연어로 설명해주시면 Python 코드로 변환하고 백테스트를 수행해 드릴게요. 어떤 전략을 시도해보고 싶으신가요?"

	AnalyzingText     = "전략을 분석 중입니다..."
	GeneratingText    = "코드를 생성하고 있습니다..."
	PreparingText     = "데이터를 준비하고 있습니다..."
	BacktestStartText = "이제 백테스트를 시작합니다..."
	RerunningText     = "수정된 코드로 백테스트를 실행하고 있습니다..."

	CodeReadyText  = "전략을 Python 코드로 변환했습니다. 아래 코드를 확인해주세요."
	CancelledText  = "백테스트가 취소되었습니다. 다른 전략이나 파라미터로 다시 시도해보세요."
	NotTradingText = "트레이딩 전략을 입력해주세요. 예: \"RSI가 30 이하일 때 매수하고, RSI가 70 이상일 때 매도한다.\" /guide 로 더 많은 예시를 볼 수 있습니다."

	AnalyzeErrorText  = "죄송합니다. 전략 분석 중 오류가 발생했습니다. 다른 전략을 시도해보세요."
	GenerateErrorText = "죄송합니다. 코드 생성 중 오류가 발생했습니다. 다시 시도해주세요."
	BacktestErrorText = "죄송합니다. 데이터 준비 또는 백테스트 중 오류가 발생했습니다. 다시 시도해주세요."
	RerunErrorText    = "코드 실행 중 오류가 발생했습니다. 코드를 확인해주세요."

	// MalformedResponseText follows an error text when the service answered
	// with an unexpected shape.
	MalformedResponseText = "서버 응답 형식이 예상과 다릅니다. 백엔드 버전을 확인해주세요."

	// EditedStrategyName labels backtests of hand-edited code.
	EditedStrategyName = "사용자 정의 전략 (코드 수정)"
)

// GuideExamples are sample strategies shown by the guide.
var GuideExamples = []string{
	"RSI가 30 이하일 때 매수하고, RSI가 70 이상일 때 매도한다. 손절은 3%, 익절은 5%로 설정한다.",
	"20일 이동평균선을 50일 이동평균선이 상향 돌파할 때 매수하고, 하향 돌파할 때 매도한다.",
	"MACD 히스토그램이 양수로 전환될 때 매수하고, 음수로 전환될 때 매도한다. 동시에 볼린저 밴드 하단에 닿았을 때만 매수한다.",
}

// GuideTips accompany the examples.
var GuideTips = []string{
	"기술적 지표(RSI, MACD, 이동평균선 등)를 활용해보세요.",
	"매수/매도 조건을 명확하게 기술하세요.",
	"복수의 조건을 결합하여 더 정교한 전략을 만들 수 있습니다.",
	"AI가 분석 후 Python 코드로 변환하여 백테스트를 수행합니다.",
}

// GuideText renders the strategy guide as markdown.
func GuideText() string {
	var b strings.Builder
	b.WriteString("**전략 입력 가이드**\n\n아래 예시를 참고하여 자연어로 트레이딩 전략을 입력하세요:\n\n")
	for i, ex := range GuideExamples {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ex)
	}
	b.WriteString("\n**팁**\n\n")
	for _, tip := range GuideTips {
		fmt.Fprintf(&b, "- %s\n", tip)
	}
	return b.String()
}

// FormatConfirmation renders the analysis and parameters for confirmation.
func FormatConfirmation(a *model.StrategyAnalysis, p model.Params) string {
	var b strings.Builder
	b.WriteString("트레이딩 전략을 분석했습니다.\n\n")
	b.WriteString("【전략 분석】\n")
	fmt.Fprintf(&b, "• 사용 지표: %s\n", strings.Join(a.Indicators, ", "))
	fmt.Fprintf(&b, "• 진입 조건: %s\n", a.EntryConditions)
	fmt.Fprintf(&b, "• 청산 조건: %s\n", a.ExitConditions)
	fmt.Fprintf(&b, "• 전략 유형: %s\n\n", a.StrategyType)
	b.WriteString("【백테스트 파라미터】\n")
	fmt.Fprintf(&b, "• 자본금: %s USDT\n", strconv.FormatFloat(p.Capital, 'f', -1, 64))
	fmt.Fprintf(&b, "• 투입 비율: %s\n", util.FormatRatio(p.CapitalPct))
	fmt.Fprintf(&b, "• 손절: %s%%\n", strconv.FormatFloat(p.StopLoss, 'f', -1, 64))
	fmt.Fprintf(&b, "• 익절: %s%%\n", strconv.FormatFloat(p.TakeProfit, 'f', -1, 64))
	fmt.Fprintf(&b, "• 기간: %s ~ %s\n", p.StartDate, p.EndDate)
	fmt.Fprintf(&b, "• 시간 간격: %s\n", p.Timeframe)
	fmt.Fprintf(&b, "• 수수료율: %s\n\n", util.FormatRatio(p.Commission))
	b.WriteString("이대로 백테스트를 진행하시겠습니까? '진행해줘'라고 답변해주세요.")
	return b.String()
}

// FormatDataReady reports a finished prepare-data call.
func FormatDataReady(d *model.DataPreparation) string {
	return fmt.Sprintf("데이터 준비가 완료되었습니다. %s 파일에 %d개의 데이터가 저장되었습니다. 다음 기술 지표들이 추가되었습니다: %s",
		d.FileSaved, d.Rows, strings.Join(d.IndicatorsAdded, ", "))
}

// FormatResult summarizes a backtest.
func FormatResult(r *model.BacktestResult) string {
	return fmt.Sprintf("백테스트 결과: 총 수익률: %.2f%%, 거래 횟수: %d회, 승률: %.2f%%, 최대 낙폭: %.2f%%",
		r.TotalReturn, r.NumTrades, r.WinRate, r.MaxDrawdown)
}

// FormatEditResult summarizes a backtest of edited code.
func FormatEditResult(r *model.BacktestResult) string {
	return fmt.Sprintf("수정된 코드로 백테스트를 실행했습니다. 총 수익률: %.2f%%, 거래 횟수: %d회",
		r.TotalReturn, r.NumTrades)
}
