package reconciliation

import (
	"sort"
	"strings"
	"unicode"

	"ledgermatch/pkg/models"
)

// Ledger reference types.
const (
	ReferenceSupplierInvoice = "SUPPLIERINVOICE"
	ReferenceSupplierPayment = "SUPPLIERPAYMENT"
	ReferenceInvoice         = "INVOICE"
	ReferenceInvoicePayment  = "INVOICEPAYMENT"
	ReferenceAccrual         = "ACCRUAL"
	ReferenceManual          = "MANUAL"
)

// UnknownReferencePriority ranks reference types outside an invoice type's family.
const UnknownReferencePriority = 99

// referenceFamilies lists the reference types per invoice type, most
// authoritative first. The first entry is the document itself, the second
// its payments.
var referenceFamilies = map[models.InvoiceType][]string{
	models.InvoiceTypeSupplier: {ReferenceSupplierInvoice, ReferenceSupplierPayment, ReferenceAccrual, ReferenceManual},
	models.InvoiceTypeCustomer: {ReferenceInvoice, ReferenceInvoicePayment, ReferenceAccrual, ReferenceManual},
}

// ReferenceSignal states that the invoice is referenced in the ledger under
// Type with one of Numbers.
type ReferenceSignal struct {
	Type     string              `json:"referenceType"`
	Numbers  map[string]struct{} `json:"-"`
	Priority int                 `json:"priority"`
}

// Matches reports whether any variant of number belongs to the signal.
func (s ReferenceSignal) Matches(number string) bool {
	for _, variant := range referenceVariants(number) {
		if _, ok := s.Numbers[variant]; ok {
			return true
		}
	}
	return false
}

// SortedNumbers returns the signal's numbers in lexical order.
func (s ReferenceSignal) SortedNumbers() []string {
	numbers := make([]string, 0, len(s.Numbers))
	for n := range s.Numbers {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)
	return numbers
}

// GetReferenceTypePriority ranks a reference type for an invoice type.
// Lower is more authoritative.
func GetReferenceTypePriority(invoiceType models.InvoiceType, referenceType string) int {
	normalized := normalizeReferenceType(referenceType)
	for i, t := range referenceFamilies[invoiceType] {
		if t == normalized {
			return i
		}
	}
	return UnknownReferencePriority
}

// BuildReferenceSignals derives the reference signals of an invoice from its
// own identifiers and the source record, sorted by priority.
func BuildReferenceSignals(invoiceType models.InvoiceType, invoice models.Invoice, record models.InvoiceRecord) []ReferenceSignal {
	family, ok := referenceFamilies[invoiceType]
	if !ok {
		return nil
	}
	documentType, paymentType := family[0], family[1]

	numbers := make(map[string]map[string]struct{})
	add := func(referenceType string, values ...string) {
		for _, value := range values {
			for _, variant := range referenceVariants(value) {
				set, ok := numbers[referenceType]
				if !ok {
					set = make(map[string]struct{})
					numbers[referenceType] = set
				}
				set[variant] = struct{}{}
			}
		}
	}

	identifiers := append([]string{invoice.ID, invoice.InvoiceNumber}, record.Strings(models.InvoiceIdentifierKeys...)...)
	add(documentType, identifiers...)
	add(ReferenceAccrual, identifiers...)
	add(ReferenceManual, identifiers...)

	if referenceType, ok := record.String(models.ReferenceTypeKeys...); ok {
		if referenceNumber, ok := record.String(models.ReferenceNumberKeys...); ok {
			add(normalizeReferenceType(referenceType), referenceNumber)
		}
	}

	paymentKeys := models.SupplierPaymentKeys
	if invoiceType == models.InvoiceTypeCustomer {
		paymentKeys = models.CustomerPaymentKeys
	}
	add(paymentType, record.Strings(paymentKeys...)...)
	for _, payment := range record.Records(models.PaymentListKeys...) {
		add(paymentType, payment.Strings(models.PaymentNumberKeys...)...)
	}

	add(ReferenceAccrual, record.Strings(models.AccrualKeys...)...)

	signals := make([]ReferenceSignal, 0, len(numbers))
	for referenceType, set := range numbers {
		if len(set) == 0 {
			continue
		}
		signals = append(signals, ReferenceSignal{
			Type:     referenceType,
			Numbers:  set,
			Priority: GetReferenceTypePriority(invoiceType, referenceType),
		})
	}
	sort.Slice(signals, func(i, j int) bool {
		if signals[i].Priority != signals[j].Priority {
			return signals[i].Priority < signals[j].Priority
		}
		return signals[i].Type < signals[j].Type
	})
	return signals
}

func normalizeReferenceType(referenceType string) string {
	return strings.ToUpper(strings.TrimSpace(referenceType))
}

// normalizeReferenceNumber uppercases and strips all whitespace.
func normalizeReferenceNumber(number string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, number)
}

// referenceVariants expands a reference number into its equivalent spellings:
// "0029" and "29" both yield {"0029", "29"} or {"29"}.
func referenceVariants(number string) []string {
	normalized := normalizeReferenceNumber(number)
	if normalized == "" {
		return nil
	}
	variants := []string{normalized}
	if isDigits(normalized) {
		trimmed := strings.TrimLeft(normalized, "0")
		if trimmed == "" {
			trimmed = "0"
		}
		if trimmed != normalized {
			variants = append(variants, trimmed)
		}
	}
	return variants
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
