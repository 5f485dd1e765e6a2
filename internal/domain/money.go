package domain

import (
	"strconv"
	"strings"
)

const minorPerMajor = 100

// FormatAmount переводит сумму в минимальных единицах в строку для шлюза.
// Формат совпадает с тем, как шлюз возвращает сумму: без лишних нулей ("500", "499.99", "12.5").
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	major := minor / minorPerMajor
	frac := minor % minorPerMajor
	if frac == 0 {
		return sign + strconv.FormatInt(major, 10)
	}
	fracStr := strconv.FormatInt(frac+minorPerMajor, 10)[1:]
	fracStr = strings.TrimRight(fracStr, "0")
	return sign + strconv.FormatInt(major, 10) + "." + fracStr
}

// ParseAmount разбирает сумму шлюза ("500", "500.0", "1,000.50") в минимальные единицы.
// Дробная часть точнее сотых допускается только нулями, иначе сумма считается некорректной.
func ParseAmount(raw string) (int64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, ErrInvalidAmount
	}

	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if intPart == "" || (hasDot && fracPart == "") {
		return 0, ErrInvalidAmount
	}
	if !isDigits(intPart) || (hasDot && !isDigits(fracPart)) {
		return 0, ErrInvalidAmount
	}

	if len(fracPart) > 2 {
		if strings.Trim(fracPart[2:], "0") != "" {
			return 0, ErrInvalidAmount
		}
		fracPart = fracPart[:2]
	}
	for len(fracPart) < 2 {
		fracPart += "0"
	}

	major, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, Wrap(ErrInvalidAmount, err)
	}
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, Wrap(ErrInvalidAmount, err)
	}
	if major > (1<<63-1-frac)/minorPerMajor {
		return 0, ErrInvalidAmount
	}

	return major*minorPerMajor + frac, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
