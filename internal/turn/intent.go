// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package turn

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultAffirmativeTokens accept a pending strategy confirmation. English
// tokens can be added through turn.affirmative_tokens.
var DefaultAffirmativeTokens = []string{"진행", "시작", "네", "예", "좋아"}

// DefaultTradingKeywords mark input as a trading strategy.
var DefaultTradingKeywords = []string{
	"매수", "매도", "전략", "진입", "청산", "손절", "익절", "지표",
	"이동평균", "볼린저", "돌파", "크로스", "상승", "하락", "거래량", "캔들",
	"rsi", "macd", "ema", "sma", "bollinger", "cross", "breakout",
	"buy", "sell", "long", "short", "strategy", "stop", "profit", "volume",
}

// normalize lower-cases, trims and composes input so that decomposed Hangul
// from some terminals matches the composed tokens.
func normalize(s string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(s)))
}

// Matcher checks free text against a token set. Hangul tokens match as
// substrings, since particles attach to them ("진행해줘"). Tokens holding
// ASCII letters or digits match only as whole words, so "ok" does not
// match "look".
type Matcher struct {
	tokens []string
}

// NewMatcher creates a matcher for tokens. Empty tokens are ignored.
func NewMatcher(tokens []string) *Matcher {
	m := &Matcher{tokens: make([]string, 0, len(tokens))}
	for _, t := range tokens {
		if t = normalize(t); t != "" {
			m.tokens = append(m.tokens, t)
		}
	}
	return m
}

// Match reports whether input contains any token.
//
// Substring semantics mean negations still match: "진행 안 할래" contains
// "진행" and is accepted.
func (m *Matcher) Match(input string) bool {
	s := normalize(input)
	if s == "" {
		return false
	}
	for _, t := range m.tokens {
		if hasASCIIWord(t) {
			if containsWord(s, t) {
				return true
			}
			continue
		}
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// containsWord reports whether word occurs in s with no ASCII letter or
// digit directly before or after it. Hangul around it counts as a break,
// so "rsi가" contains "rsi".
func containsWord(s, word string) bool {
	for from := 0; from <= len(s)-len(word); {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(word)
		if (start == 0 || !isASCIIAlnum(s[start-1])) && (end == len(s) || !isASCIIAlnum(s[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func hasASCIIWord(t string) bool {
	for i := 0; i < len(t); i++ {
		if isASCIIAlnum(t[i]) {
			return true
		}
	}
	return false
}

func isASCIIAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// Tokens returns the normalized token set.
func (m *Matcher) Tokens() []string {
	return append([]string(nil), m.tokens...)
}

// IsAffirmative reports whether input confirms using the default tokens.
func IsAffirmative(input string) bool {
	return NewMatcher(DefaultAffirmativeTokens).Match(input)
}
