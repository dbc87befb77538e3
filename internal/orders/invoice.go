package orders

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	InvoicePrefix     = "JL"
	invoiceDateLayout = "060102" // yymmdd
	maxInvoiceSeq     = 9999
)

var invoiceRe = regexp.MustCompile(`^JL-(\d{6})(\d{4})$`)

// FormatInvoiceNo -> JL-yymmddNNNN, mis. JL-2508300001.
func FormatInvoiceNo(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s%04d", InvoicePrefix, day.Format(invoiceDateLayout), seq)
}

// InvoicePrefixFor -> JL-yymmdd
func InvoicePrefixFor(day time.Time) string {
	return InvoicePrefix + "-" + day.Format(invoiceDateLayout)
}

// ParseInvoiceSeq mengambil 4 digit sequence dari invoice milik hari day.
// ok=false kalau kosong, formatnya salah, atau tanggalnya bukan day.
func ParseInvoiceSeq(invoiceNo string, day time.Time) (seq int, ok bool) {
	m := invoiceRe.FindStringSubmatch(invoiceNo)
	if m == nil || m[1] != day.Format(invoiceDateLayout) {
		return 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return n, true
}

// NextInvoiceNo menghitung invoice berikutnya dari invoice terakhir hari itu.
// Invoice terakhir yang kosong / rusak dianggap belum ada -> mulai dari 0001.
func NextInvoiceNo(last string, day time.Time) string {
	return FormatInvoiceNo(day, nextSeq(last, day))
}

func nextSeq(last string, day time.Time) int {
	if n, ok := ParseInvoiceSeq(last, day); ok {
		return n + 1
	}
	return 1
}

// Sequencer menghitung nomor invoice berikutnya per outlet per hari kalender
// (di zona waktu Location). Tidak ada counter tersimpan: reset harian terjadi
// sendiri karena lookup dibatasi tanggal. Keunikan dijaga oleh unique constraint
// (outlet_id, invoice_no) di store, bukan di sini.
type Sequencer struct {
	Location *time.Location
}

func (s Sequencer) loc() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// Day mengembalikan awal hari (00:00) dari t di zona outlet.
func (s Sequencer) Day(t time.Time) time.Time {
	t = t.In(s.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc())
}

func (s Sequencer) Next(ctx context.Context, tx Tx, outletID string, today time.Time) (string, error) {
	day := s.Day(today)
	last, err := tx.LastInvoiceNo(ctx, outletID, InvoicePrefixFor(day), day, day.AddDate(0, 0, 1))
	if err != nil {
		return "", fmt.Errorf("last invoice: %w", err)
	}
	seq := nextSeq(last, day)
	if seq > maxInvoiceSeq {
		// format 4 digit sudah habis untuk hari ini
		return "", fmt.Errorf("%w: daily sequence exhausted for %s", ErrInvoiceTaken, day.Format(invoiceDateLayout))
	}
	return FormatInvoiceNo(day, seq), nil
}
