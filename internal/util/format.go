// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer groups thousands the same way regardless of the user's locale so
// saved transcripts read identically everywhere.
var printer = message.NewPrinter(language.English)

// FormatMoney formats an amount with thousands separators and two decimals,
// e.g. 10000 -> "10,000.00".
func FormatMoney(v float64) string {
	return printer.Sprintf("%.2f", v)
}

// FormatAmount formats a quantity with thousands separators and no decimals.
func FormatAmount(v float64) string {
	return printer.Sprintf("%.0f", v)
}

// FormatPercent formats a percentage value that is already scaled to 0-100.
func FormatPercent(v float64) string {
	return printer.Sprintf("%.2f%%", v)
}

// FormatSignedPercent is FormatPercent with an explicit sign for gains.
func FormatSignedPercent(v float64) string {
	if v > 0 {
		return printer.Sprintf("+%.2f%%", v)
	}
	return FormatPercent(v)
}

// FormatRatio formats a fraction in [0,1] as a percentage, e.g. 0.1 -> "10%".
func FormatRatio(v float64) string {
	return strconv.FormatFloat(v*100, 'f', -1, 64) + "%"
}
