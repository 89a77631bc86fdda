package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"time"

	"bouncebot/src/executor"
)

// WriteTradesCSV 导出成交记录
func WriteTradesCSV(path string, results []*executor.OrderResult) error {
	return writeCSVFile(path, func(w io.Writer) error {
		return EncodeTrades(w, results)
	})
}

// WriteEquityCSV 导出权益曲线
func WriteEquityCSV(path string, curve []EquityPoint) error {
	return writeCSVFile(path, func(w io.Writer) error {
		return EncodeEquity(w, curve)
	})
}

// EncodeTrades 以 CSV 写出成交记录
func EncodeTrades(out io.Writer, results []*executor.OrderResult) error {
	w := csv.NewWriter(out)

	header := []string{"timestamp", "instrument", "side", "reason", "quantity", "price", "notional", "commission", "order_id", "mode"}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		row := []string{
			fmtTime(r.Timestamp),
			r.Instrument,
			string(r.Side),
			string(r.Reason),
			r.Quantity.String(),
			r.Price.String(),
			r.Notional().String(),
			r.Commission.String(),
			r.OrderID,
			string(r.Mode),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// EncodeEquity 以 CSV 写出权益曲线
func EncodeEquity(out io.Writer, curve []EquityPoint) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"timestamp", "equity", "cash"}); err != nil {
		return err
	}
	for _, p := range curve {
		if err := w.Write([]string{fmtTime(p.Timestamp), p.Equity.StringFixed(2), p.Cash.StringFixed(2)}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func writeCSVFile(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
