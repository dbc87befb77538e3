package orders

type Status string

const (
	StatusAntrian     Status = "ANTRIAN"      // antri, status awal
	StatusProses      Status = "PROSES"       // sedang dikerjakan
	StatusSiapDiambil Status = "SIAP_DIAMBIL" // siap diambil customer
	StatusSelesai     Status = "SELESAI"      // terminal
	StatusBatal       Status = "BATAL"        // terminal
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "UNPAID"
	PaymentPaid   PaymentStatus = "PAID"
)

// PaymentRecordStatus adalah status baris payment (bukan status bayar order).
type PaymentRecordStatus string

const (
	PaymentSuccess PaymentRecordStatus = "SUCCESS"
	PaymentVoid    PaymentRecordStatus = "VOID"
)

var validNext = map[Status]map[Status]bool{
	StatusAntrian:     {StatusProses: true, StatusBatal: true},
	StatusProses:      {StatusSiapDiambil: true, StatusBatal: true},
	StatusSiapDiambil: {StatusSelesai: true, StatusBatal: true},
	StatusSelesai:     {},
	StatusBatal:       {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

// AllStatuses dalam urutan lifecycle.
func AllStatuses() []Status {
	return []Status{StatusAntrian, StatusProses, StatusSiapDiambil, StatusSelesai, StatusBatal}
}

func (s PaymentRecordStatus) Valid() bool {
	return s == PaymentSuccess || s == PaymentVoid
}
