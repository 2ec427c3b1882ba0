package normalize

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
)

// Rung identifies which strategy of the date ladder produced a date.
type Rung int

// Ladder rungs in the order they are tried.
const (
	RungNone Rung = iota
	RungMonthName
	RungGenericMonth
	RungFlexible
	RungNumeric
	RungYear
	RungDefault
)

func (r Rung) String() string {
	switch r {
	case RungMonthName:
		return "month_name"
	case RungGenericMonth:
		return "generic_month"
	case RungFlexible:
		return "flexible"
	case RungNumeric:
		return "numeric"
	case RungYear:
		return "year_only"
	case RungDefault:
		return "default"
	default:
		return "none"
	}
}

const (
	minYear = 1000
	maxYear = 2100
)

// Corruptions seen in archive metadata: UTF-8 read as Latin-1, replacement
// characters in place of umlauts/accents and transliterated umlauts.
var corruptions = strings.NewReplacer(
	"Ã¤", "ä", "Ã„", "Ä", "Ã¶", "ö", "Ã¼", "ü", "Ã©", "é", "Ã¨", "è", "Ã»", "û", "Ã´", "ô",
	"m�rz", "marz", "ao�t", "aout", "f�vrier", "fevrier", "d�cembre", "decembre",
	"maerz", "marz",
)

// Full month names after folding (German and French), matched by the first rung.
var fullMonths = map[string]time.Month{
	"januar": time.January, "februar": time.February, "marz": time.March, "april": time.April,
	"mai": time.May, "juni": time.June, "juli": time.July, "august": time.August,
	"september": time.September, "oktober": time.October, "november": time.November, "dezember": time.December,
	"janvier": time.January, "fevrier": time.February, "mars": time.March, "avril": time.April,
	"juin": time.June, "juillet": time.July, "aout": time.August, "septembre": time.September,
	"octobre": time.October, "novembre": time.November, "decembre": time.December,
}

// Additional spellings accepted by the generic rung: abbreviations, Italian
// and older German forms.
var extraMonths = map[string]time.Month{
	"jan": time.January, "janner": time.January, "gennaio": time.January,
	"feb": time.February, "febr": time.February, "fev": time.February, "febbraio": time.February,
	"mar": time.March, "marzo": time.March,
	"apr": time.April, "avr": time.April, "aprile": time.April,
	"maggio": time.May,
	"jun": time.June, "giugno": time.June,
	"jul": time.July, "juil": time.July, "luglio": time.July,
	"aug": time.August, "agosto": time.August,
	"sep": time.September, "sept": time.September, "settembre": time.September,
	"okt": time.October, "oct": time.October, "ottobre": time.October,
	"nov": time.November,
	"dez": time.December, "dec": time.December, "dicembre": time.December,
}

var (
	monthNamePattern = regexp.MustCompile(`(\d{1,2})(?:er|re|e)?[.\s-]+(` + alternation(fullMonths) + `)[.\s-]+(\d{4})`)
	genericPattern   = regexp.MustCompile(`(\d{1,2})(?:er|re|e)?[.\s-]+([a-z]+)\.?[.\s-]+(\d{4})`)
	numericPattern   = regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[./]\d{1,2}[./]\d{4}`)
	dayFirstPattern  = regexp.MustCompile(`\d{1,2}[./]\d{1,2}[./]\d{4}`)
	yearPattern      = regexp.MustCompile(`\b(\d{4})\b`)
	onlyYearPattern  = regexp.MustCompile(`^\D*\d{4}\D*$`)
	numericLayouts   = []string{"2.1.2006", "2/1/2006", "2006-1-2"}
)

// DateParser applies the date ladder and logs when it has to fall back.
type DateParser struct {
	logger *zap.Logger
}

// NewDateParser builds a DateParser.
func NewDateParser(logger *zap.Logger) *DateParser {
	return &DateParser{logger: logging.OrNop(logger)}
}

// Normalize parses raw, falling back to def. Year-only and default results
// are logged as warnings.
func (p *DateParser) Normalize(raw string, def time.Time) time.Time {
	t, rung := Parse(raw, def)
	switch rung {
	case RungYear:
		p.logger.Warn("date reduced to year", zap.String("raw_date", raw), zap.Time("date", t))
	case RungDefault:
		if strings.TrimSpace(raw) != "" {
			p.logger.Warn("unparseable date; using default", zap.String("raw_date", raw), zap.Time("default", def))
		}
	}
	return t
}

// Parse walks the ladder and returns the first date produced together with
// the rung that produced it. It never fails: the last rung returns def.
func Parse(raw string, def time.Time) (time.Time, Rung) {
	cleaned := clean(raw)
	if cleaned == "" {
		return def, RungDefault
	}

	if m := monthNamePattern.FindStringSubmatch(cleaned); m != nil {
		if t, ok := build(m[3], fullMonths[m[2]], m[1]); ok {
			return t, RungMonthName
		}
	}

	candidate := cleaned
	if m := genericPattern.FindStringSubmatch(cleaned); m != nil {
		candidate = m[0]
		if month, ok := lookupMonth(m[2]); ok {
			if t, ok := build(m[3], month, m[1]); ok {
				return t, RungGenericMonth
			}
		}
	}

	// DD.MM.YYYY and DD/MM/YYYY go straight to the numeric layouts.
	if !onlyYearPattern.MatchString(candidate) && !dayFirstPattern.MatchString(candidate) {
		if t, err := dateparse.ParseIn(candidate, time.UTC, dateparse.PreferMonthFirst(false)); err == nil && validYear(t.Year()) {
			return dateOnly(t), RungFlexible
		}
	}

	if m := numericPattern.FindString(cleaned); m != "" {
		for _, layout := range numericLayouts {
			if t, err := time.Parse(layout, m); err == nil && validYear(t.Year()) {
				return t, RungNumeric
			}
		}
	}

	if m := yearPattern.FindStringSubmatch(cleaned); m != nil {
		if year, err := strconv.Atoi(m[1]); err == nil && validYear(year) {
			return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), RungYear
		}
	}

	return def, RungDefault
}

func clean(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = corruptions.Replace(s)
	s = strings.ToLower(s)
	s = corruptions.Replace(s)
	s = FoldASCII(s)
	return strings.Join(strings.Fields(s), " ")
}

func lookupMonth(word string) (time.Month, bool) {
	if m, ok := fullMonths[word]; ok {
		return m, true
	}
	if m, ok := extraMonths[word]; ok {
		return m, true
	}
	if len(word) < 3 {
		return 0, false
	}
	var found time.Month
	for name, m := range fullMonths {
		if strings.HasPrefix(name, word) {
			if found != 0 && found != m {
				return 0, false
			}
			found = m
		}
	}
	return found, found != 0
}

func build(yearStr string, month time.Month, dayStr string) (time.Time, bool) {
	year, err := strconv.Atoi(yearStr)
	if err != nil || !validYear(year) || month < time.January || month > time.December {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func validYear(year int) bool {
	return year >= minYear && year <= maxYear
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func alternation(months map[string]time.Month) string {
	names := make([]string, 0, len(months))
	for name := range months {
		names = append(names, regexp.QuoteMeta(name))
	}
	// Longest first so "septembre" wins over "september".
	slices.SortFunc(names, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	return strings.Join(names, "|")
}
