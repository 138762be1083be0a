package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/jobpoller/internal/interval"
)

// IntervalResult — результат разбора одной строки.
type IntervalResult struct {
	Input    string `json:"input"`
	Duration string `json:"duration"`
	Micros   int64  `json:"micros"`
	Error    string `json:"error,omitempty"`
}

// ParseIntervals разбирает строки так же, как воркер при старте.
// Некорректная строка получает интервал по умолчанию и текст ошибки.
func ParseIntervals(inputs []string) []IntervalResult {
	results := make([]IntervalResult, len(inputs))
	for i, in := range inputs {
		d, err := interval.Parse(in)
		r := IntervalResult{Input: in}
		if err != nil {
			d = interval.Default
			r.Error = err.Error()
		}
		r.Duration = d.String()
		r.Micros = interval.Micros(d)
		results[i] = r
	}
	return results
}

// NewIntervalCmd создаёт команду interval.
func NewIntervalCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "interval TEXT...",
		Short: "Show how the worker parses a wake interval",
		Example: `  jobpoller-cli interval 10s "2 min" 1hour
  jobpoller-cli interval --json 1.5s`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			results := ParseIntervals(args)

			headers := []string{"INPUT", "DURATION", "MICROS", "ERROR"}
			rows := make([][]string, len(results))
			for i, r := range results {
				rows[i] = []string{
					strconv.Quote(r.Input), r.Duration,
					strconv.FormatInt(r.Micros, 10), r.Error,
				}
			}

			return out.Print(headers, rows, results)
		},
	}
}
