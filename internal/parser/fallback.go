package parser

import (
	"regexp"
	"strings"
	"time"

	"paylog/internal/core"
)

// Fallback is the deterministic floor of the provider ladder: pure
// pattern rules, no network. It fills only what it can infer with high
// confidence and leaves the rest unknown rather than guessing.
type Fallback struct{}

var (
	amountRe       = regexp.MustCompile(`(?:₹|rs\.?\s*)?(\d+(?:[.,]\d+)?)`)
	lendNameRe     = regexp.MustCompile(`(?:to|gave)\s+([a-zA-Z]+)`)
	receiveNameRe  = regexp.MustCompile(`(?:from|by)\s+([a-zA-Z]+)`)
	daysAgoRe      = regexp.MustCompile(`(\d+)\s*days?\s*ago`)
	merchantPrepRe = regexp.MustCompile(`(?:\bat\b|@)\s*([a-zA-Z][a-zA-Z0-9]+)`)
)

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"groceries", []string{"grocery", "groceries", "supermarket", "dmart", "vegetables", "fruits"}},
	{"food", []string{"food", "lunch", "dinner", "breakfast", "meal", "restaurant", "cafe", "coffee", "tea", "snacks", "pizza", "burger"}},
	{"transport", []string{"transport", "uber", "ola", "metro", "bus", "taxi", "cab", "auto", "rickshaw"}},
	{"fuel", []string{"fuel", "petrol", "diesel", "cng", "pump"}},
	{"shopping", []string{"shopping", "clothes", "amazon", "flipkart", "mall", "purchase"}},
	{"bills", []string{"bill", "electricity", "water", "internet", "mobile", "recharge", "broadband", "wifi", "rent", "emi"}},
	{"entertainment", []string{"movie", "netflix", "spotify", "concert", "game", "party"}},
	{"health", []string{"medicine", "doctor", "hospital", "pharmacy", "clinic", "gym"}},
}

func (Fallback) Name() string { return "fallback" }

// Parse applies the pattern rules to the utterance. It always succeeds;
// a field it cannot infer simply stays unknown.
func (f Fallback) Parse(rawText string, now time.Time) core.PartialTransaction {
	p := core.PartialTransaction{RawText: rawText, ReceivedAt: now}
	lower := strings.ToLower(rawText)

	if m := amountRe.FindStringSubmatch(lower); m != nil {
		if amount, err := core.ParseAmount(m[1]); err == nil {
			p.Amount = core.KnownField(amount, core.SourceFallback)
		}
	}

	kind, counterparty := inferKind(lower)
	if kind != "" {
		p.Kind = core.KnownField(kind, core.SourceFallback)
	}
	if counterparty != "" {
		p.Counterparty = core.KnownField(counterparty, core.SourceFallback)
	}

	if kind == core.KindTransfer {
		if src, dst, ok := inferTransferWallets(lower); ok {
			p.WalletSource = core.KnownField(src, core.SourceFallback)
			p.WalletTarget = core.KnownField(dst, core.SourceFallback)
		}
	}

	for _, entry := range categoryKeywords {
		if containsAny(lower, entry.keywords) {
			p.Category = core.KnownField(entry.category, core.SourceFallback)
			break
		}
	}

	// Merchant only for spending: "at DMart", "@cafe".
	if kind == "" || kind == core.KindExpense {
		if m := merchantPrepRe.FindStringSubmatch(rawText); m != nil && len(m[1]) > 2 {
			p.Merchant = core.KnownField(title(m[1]), core.SourceFallback)
		}
	}

	if ref := inferTimeReference(lower); ref != "" {
		p.DateExpr = core.KnownField(ref, core.SourceFallback)
	}

	return p
}

func inferKind(lower string) (core.Kind, string) {
	switch {
	case containsAny(lower, []string{"returned", "paid back", "got back"}):
		return core.KindReceivePayment, nameFrom(receiveNameRe, lower)
	case containsAny(lower, []string{"lent", "lend", "gave to", "loan to", "loaned"}):
		return core.KindLend, nameFrom(lendNameRe, lower)
	case strings.Contains(lower, "transfer"):
		return core.KindTransfer, ""
	case strings.Contains(lower, "received") && receiveNameRe.MatchString(lower):
		return core.KindReceivePayment, nameFrom(receiveNameRe, lower)
	case containsAny(lower, []string{"received", "salary", "income", "earned", "got paid"}):
		return core.KindIncome, ""
	case containsAny(lower, []string{"spent", "paid", "bought"}):
		return core.KindExpense, ""
	default:
		return "", ""
	}
}

func inferTransferWallets(lower string) (src, dst core.WalletName, ok bool) {
	fromTotal := strings.Contains(lower, "from total") || strings.Contains(lower, "from stack")
	fromWallet := strings.Contains(lower, "from wallet")
	toTotal := strings.Contains(lower, "to total") || strings.Contains(lower, "to stack")
	toWallet := strings.Contains(lower, "to wallet")

	switch {
	case fromTotal, toWallet && !fromWallet:
		return core.TotalStack, core.Wallet, true
	case fromWallet, toTotal:
		return core.Wallet, core.TotalStack, true
	default:
		return "", "", false
	}
}

func inferTimeReference(lower string) string {
	switch {
	case strings.Contains(lower, "yesterday"):
		return "yesterday"
	case daysAgoRe.MatchString(lower):
		return daysAgoRe.FindString(lower)
	case strings.Contains(lower, "last week"):
		return "last week"
	case strings.Contains(lower, "today"):
		return "today"
	default:
		return ""
	}
}

func nameFrom(re *regexp.Regexp, lower string) string {
	if m := re.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	return ""
}

func title(s string) string {
	s = strings.ToLower(s)
	return strings.ToUpper(s[:1]) + s[1:]
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
