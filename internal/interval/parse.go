package interval

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// Default — интервал, который используется для пустой или некорректной строки.
const Default = 10 * time.Second

// maxUnitLen — сколько букв единицы измерения учитывается при сравнении.
// Остальные буквы отбрасываются.
const maxUnitLen = 7

// ErrMalformed — строку интервала не удалось разобрать.
var ErrMalformed = errors.New("malformed interval")

// Множители единиц в микросекундах.
var unitMicros = map[string]float64{
	"s":    1e6,
	"sec":  1e6,
	"min":  60e6,
	"h":    3600e6,
	"hour": 3600e6,
	"d":    86400e6,
	"day":  86400e6,
}

// Parse разбирает строку интервала.
//
// Пустая строка даёт Default без ошибки. Для некорректной строки
// возвращается Default и ошибка, оборачивающая ErrMalformed.
// Единица измерения необязательна: неизвестная или отсутствующая
// единица трактуется как секунды.
func Parse(text string) (time.Duration, error) {
	if text == "" {
		return Default, nil
	}

	s := strings.TrimLeft(text, " \t\n\v\f\r")

	n := numberPrefix(s)
	if n == 0 {
		return Default, fmt.Errorf("%w: %q: no number", ErrMalformed, text)
	}

	value, err := strconv.ParseFloat(s[:n], 64)
	if err != nil {
		return Default, fmt.Errorf("%w: %q: %v", ErrMalformed, text, err)
	}
	if value < 0 {
		return Default, fmt.Errorf("%w: %q: negative value", ErrMalformed, text)
	}

	unit := unitToken(strings.TrimLeft(s[n:], " \t\n\v\f\r"))

	mult, ok := unitMicros[unit]
	if !ok {
		mult = 1e6
	}

	micros := math.Round(value * mult)
	// float64(MaxInt64)/1e3 округляется вверх, поэтому граница нестрогая
	if micros >= float64(math.MaxInt64)/float64(time.Microsecond) {
		return Default, fmt.Errorf("%w: %q: out of range", ErrMalformed, text)
	}

	return time.Duration(micros) * time.Microsecond, nil
}

// ParseOrDefault разбирает строку как Parse, но никогда не возвращает ошибку:
// некорректная строка логируется одним предупреждением.
func ParseOrDefault(logger *slog.Logger, text string) time.Duration {
	d, err := Parse(text)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("invalid wake interval, defaulting to 10s",
			"value", text,
			"error", err,
		)
	}
	return d
}

// Micros возвращает длительность в микросекундах.
func Micros(d time.Duration) int64 {
	return d.Microseconds()
}

// numberPrefix возвращает длину самого длинного десятичного числа
// с плавающей точкой в начале s (0, если числа нет).
func numberPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}

	// экспонента берётся только вместе с хотя бы одной цифрой: "1e" — это 1 и единица "e"
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			i = j
		}
	}

	return i
}

// unitToken собирает до maxUnitLen латинских букв в нижнем регистре.
func unitToken(s string) string {
	var b strings.Builder
	for i := 0; i < len(s) && i < maxUnitLen && isAlpha(s[i]); i++ {
		b.WriteByte(toLower(s[i]))
	}
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
