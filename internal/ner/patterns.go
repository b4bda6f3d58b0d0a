package ner

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"docent/constants"
)

// d matches a single ASCII or Arabic-Indic digit. \b is ASCII-only in RE2,
// so patterns touching Arabic text use explicit prefix classes instead of
// word boundaries.
const d = `[0-9\x{0660}-\x{0669}]`

// Compiled patterns per category. Marker-following patterns capture group 1
// and produce Labeled entities; bare-shape patterns match whole tokens.
var (
	// name: text following honorific or party markers, capped at 4 words.
	reNameEn = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Miss|Dr|Eng|Prof)\.?\s+((?:[A-Z][A-Za-z'.-]*\s+){0,3}[A-Z][A-Za-z'.-]*)`)
	rePartyEn = regexp.MustCompile(`\b(?:Party One|Party Two|First Party|Second Party)\s*:\s*((?:[A-Za-z\p{Arabic}'.-]+\s+){0,3}[A-Za-z\p{Arabic}'.-]+)`)
	reNameAr = regexp.MustCompile(`(?:السيد|السيدة|الآنسة|الدكتور|الدكتورة|المهندس|المهندسة|الأستاذ|الأستاذة)\s+((?:\p{Arabic}+\s+){0,3}\p{Arabic}+)`)
	rePartyAr = regexp.MustCompile(`(?:الطرف الأول|الطرف الثاني|الفريق الأول|الفريق الثاني)\s*:?\s*((?:\p{Arabic}+\s+){0,3}\p{Arabic}+)`)

	// date: fixed numeric formats D/M/YYYY and YYYY/M/D (slash or dash),
	// plus marker-prefixed forms ("dated", "بتاريخ").
	reDateDMY = regexp.MustCompile(`(?:^|[\s:،,(])(` + d + `{1,2}[/-]` + d + `{1,2}[/-]` + d + `{4})`)
	reDateYMD = regexp.MustCompile(`(?:^|[\s:،,(])(` + d + `{4}[/-]` + d + `{1,2}[/-]` + d + `{1,2})`)
	reDateLabeled = regexp.MustCompile(`(?i)(?:\bdated\b|بتاريخ|حرر في|المؤرخ في)\s*:?\s*(` + d + `{1,4}[/-]` + d + `{1,2}[/-]` + d + `{1,4})`)

	// duration: <number> <unit> after duration markers.
	reDurationEn = regexp.MustCompile(`(?i)\b(?:for a period of|for a term of|for a duration of)\s+([0-9]+\s*(?:day|week|month|year)s?)`)
	// Alternation is leftmost-first, so each unit's longer suffixed forms
	// must come before their prefixes (شهراً before شهر).
	reDurationAr = regexp.MustCompile(`(?:لمدة|ولمدة|مدتها|مدته)\s+(` + d + `+\s*(?:يوماً|يوما|يوم|أيام|أسابيع|أسبوع|شهراً|شهرا|شهور|أشهر|شهر|سنوات|سنة|أعوام|عام))`)

	// amount: number plus currency word, or currency symbol plus number.
	reAmountWord = regexp.MustCompile(`(?i)(?:^|[\s:،,(])(` + d + `[` + d[1:len(d)-1] + `,.]*\s*(?:SAR|AED|USD|EGP|KWD|QAR|BHD|OMR|JOD|ريالاً|ريالا|ريال|درهماً|درهما|درهم|ديناراً|دينارا|دينار|جنيهاً|جنيها|جنيه|دولاراً|دولارا|دولار|ليرة|يورو|riyals?|dirhams?|dinars?|pounds?|dollars?|euros?))(?:$|[\s.,;،)])`)
	reAmountSym = regexp.MustCompile(`[$€£][0-9][0-9,.]*`)

	// location: text after place markers, capped at 3 words.
	reLocEn = regexp.MustCompile(`\b(?:in\s+(?:the\s+city\s+of\s+)?|at\s+(?:the\s+)?city\s+of\s+)([A-Z][A-Za-z-]*(?:\s+[A-Z][A-Za-z-]*){0,2})`)
	reLocAddr = regexp.MustCompile(`(?i)\baddress\s*:\s*((?:[A-Za-z0-9\p{Arabic}-]+\s+){0,2}[A-Za-z0-9\p{Arabic}-]+)`)
	reLocAr = regexp.MustCompile(`(?:في مدينة|بمدينة|في محافظة|العنوان)\s*:?\s*((?:\p{Arabic}+\s+){0,2}\p{Arabic}+)`)

	// phone: labeled first, then generic international-looking digit groups.
	rePhoneLabeled = regexp.MustCompile(`(?i)(?:\b(?:phone|mobile|tel|telephone|fax)\s*(?:no\.?|number)?|هاتف|جوال|تليفون|فاكس|رقم الهاتف|رقم الجوال)\s*:?\s*(\+?` + d + `[` + d[1:len(d)-1] + `\s()-]{5,18}` + d + `)`)
	rePhoneIntl = regexp.MustCompile(`\+[0-9]{1,4}[\s-]?[0-9]{2,4}[\s-]?[0-9]{3,4}(?:[\s-]?[0-9]{2,4}){0,2}`)
	rePhoneLocal = regexp.MustCompile(`\b[0-9]{2,4}[\s-][0-9]{3,4}[\s-][0-9]{3,4}(?:[\s-][0-9]{2,4})?\b`)

	// email: standard pattern, RFC 5321 length cap applied in code.
	reEmail = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// url: http or https prefixed, restricted to RFC 3986 characters.
	reURL = regexp.MustCompile(`https?://[A-Za-z0-9\-._~:/?#\[\]@!$&'()*+,;=%]+`)

	// time: HH:MM with optional seconds and meridiem/Arabic day-part suffix.
	reTime = regexp.MustCompile(`\b((?:[01]?[0-9]|2[0-3]):[0-5][0-9](?::[0-5][0-9])?(?:\s?(?:AM|PM|am|pm|صباحاً|صباحا|مساءً|مساء))?)`)

	// organization: company-suffix form in English, company-marker form in
	// Arabic (the marker is part of the organization's name).
	reOrgEn = regexp.MustCompile(`\b((?:[A-Z][A-Za-z&.-]*\s+){1,3}(?:Inc|LLC|Ltd|Corp|Corporation|Company|Co|Group|Holdings)\.?)(?:$|[\s,.;:)])`)
	reOrgAr = regexp.MustCompile(`((?:شركة|مؤسسة|مجموعة)\s+(?:\p{Arabic}+\s+){0,2}\p{Arabic}+)`)

	// id_number: labeled national/civil ID digit groups.
	reIDEn = regexp.MustCompile(`(?i)\b(?:national ID|civil ID|ID No\.?|ID)\s*[.:#]?\s*([0-9]{6,15})\b`)
	reIDAr = regexp.MustCompile(`(?:رقم الهوية|رقم البطاقة|الرقم المدني|السجل المدني|هوية رقم)\s*:?\s*(` + d + `{6,15})`)

	// position: job titles after role markers.
	rePosEn = regexp.MustCompile(`\b(?:as|position\s*:|title\s*:)\s+an?\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})|\b(?:as|position\s*:|title\s*:)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})`)
	rePosAr = regexp.MustCompile(`(?:بوظيفة|بمنصب|في منصب|بصفته|بصفتها)\s+((?:\p{Arabic}+\s+){0,2}\p{Arabic}+)`)

	// work_schedule: <hours> per <period>.
	reScheduleEn = regexp.MustCompile(`(?i)\b([0-9]+\s*hours?\s*(?:per\s+(?:week|day)|weekly|daily))`)
	reScheduleAr = regexp.MustCompile(`(` + d + `+\s*(?:ساعة|ساعات)\s*(?:أسبوعياً|أسبوعيا|يومياً|يوميا|في الأسبوع|في اليوم))`)

	// notice_period: "<n> days notice" and marker-prefixed forms.
	reNoticeEn1 = regexp.MustCompile(`(?i)\b(?:notice period of|prior notice of)\s+([0-9]+\s*(?:day|week|month)s?)`)
	reNoticeEn2 = regexp.MustCompile(`(?i)\b([0-9]+\s*(?:day|week|month)s?)(?:['’]s?)?\s+(?:written\s+|prior\s+)?notice\b`)
	reNoticeAr = regexp.MustCompile(`(?:بإشعار مسبق مدته|بإخطار مسبق مدته|فترة إشعار|فترة الإشعار|إشعار مسبق)\s*:?\s*(` + d + `+\s*(?:يوماً|يوما|يوم|أيام|أسابيع|أسبوع|أشهر|شهر))`)

	// governing_law: jurisdiction after governing-law markers, capped at 4 words.
	reLawEn = regexp.MustCompile(`(?i)\b(?:governed by(?: the)? laws? of|subject to the laws of|governing law\s*:)\s*((?:[A-Za-z]+\s+){0,4}[A-Za-z]+)`)
	reLawAr = regexp.MustCompile(`(?:يخضع لقوانين|يخضع لأنظمة|وفقاً لقوانين|وفقا لقوانين|طبقاً لقوانين|طبقا لقوانين|القانون الواجب التطبيق)\s*:?\s*((?:[\p{L}]+\s+){0,4}[\p{L}]+)`)
)

// contractVocabulary is the fixed contract-type vocabulary. Exact substring
// match, first occurrence in the text wins.
var contractVocabulary = []string{
	"عقد عمل",
	"عقد إيجار",
	"عقد ايجار",
	"عقد بيع",
	"عقد شراكة",
	"عقد خدمات",
	"عقد توريد",
	"عقد مقاولة",
	"اتفاقية سرية",
	"اتفاقية عدم إفصاح",
	"employment contract",
	"employment agreement",
	"lease agreement",
	"lease contract",
	"rental agreement",
	"sales contract",
	"purchase agreement",
	"partnership agreement",
	"non-disclosure agreement",
	"confidentiality agreement",
	"service agreement",
	"service contract",
	"supply contract",
}

// monthStoplist filters false location hits from the bare "in <Word>" marker.
var monthStoplist = map[string]struct{}{
	"January": {}, "February": {}, "March": {}, "April": {}, "May": {},
	"June": {}, "July": {}, "August": {}, "September": {}, "October": {},
	"November": {}, "December": {},
}

// maxEmailLen is the maximum length of an email address per RFC 5321.
const maxEmailLen = 254

// maxEntities is the maximum number of entities returned per call.
const maxEntities = 10000

// recognize is the internal implementation of Recognize.
func recognize(s string) []Entity {
	const minCap = 8
	all := make([]Entity, 0, len(s)/100+minCap)

	all = appendGroup(all, s, reURL, constants.URL, false)
	all = appendEmail(all, s)
	all = appendGroup(all, s, reTime, constants.Time, false)

	all = appendName(all, s)
	all = appendDate(all, s)
	all = appendDuration(all, s)
	all = appendAmount(all, s)
	all = appendLocation(all, s)
	all = appendPhone(all, s)
	all = appendOrganization(all, s)
	all = appendLabeledPair(all, s, reIDEn, reIDAr, constants.IDNumber)
	all = appendPosition(all, s)
	all = appendLabeledPair(all, s, reScheduleEn, reScheduleAr, constants.WorkSchedule)
	all = appendNotice(all, s)
	all = appendLabeledPair(all, s, reLawEn, reLawAr, constants.GoverningLaw)
	all = appendContractType(all, s)

	if len(all) == 0 {
		return nil
	}
	return resolveOverlaps(all)
}

// appendGroup appends matches of re. When the pattern has a capture group,
// the group span becomes the entity; otherwise the whole match does.
// Trailing URL-style punctuation is trimmed for bare matches.
func appendGroup(all []Entity, s string, re *regexp.Regexp, cat constants.Category, labeled bool) []Entity {
	for _, sub := range re.FindAllStringSubmatchIndex(s, -1) {
		lo, hi := sub[0], sub[1]
		if len(sub) >= 4 && sub[2] >= 0 {
			lo, hi = sub[2], sub[3]
		}
		if cat == constants.URL {
			hi = lo + len(strings.TrimRight(s[lo:hi], ".,;:!?)]}>"))
		}
		e, ok := span(s, lo, hi, cat, labeled)
		if ok {
			all = append(all, e)
		}
	}
	return all
}

// appendLabeledPair appends labeled captures from an English and an Arabic
// pattern of the same category.
func appendLabeledPair(all []Entity, s string, en, ar *regexp.Regexp, cat constants.Category) []Entity {
	all = appendGroup(all, s, en, cat, true)
	return appendGroup(all, s, ar, cat, true)
}

func appendName(all []Entity, s string) []Entity {
	all = appendGroup(all, s, reNameEn, constants.Name, true)
	all = appendGroup(all, s, rePartyEn, constants.Name, true)
	all = appendGroup(all, s, reNameAr, constants.Name, true)
	return appendGroup(all, s, rePartyAr, constants.Name, true)
}

func appendDate(all []Entity, s string) []Entity {
	all = appendGroup(all, s, reDateLabeled, constants.Date, true)
	all = appendGroup(all, s, reDateDMY, constants.Date, false)
	return appendGroup(all, s, reDateYMD, constants.Date, false)
}

func appendDuration(all []Entity, s string) []Entity {
	return appendLabeledPair(all, s, reDurationEn, reDurationAr, constants.Duration)
}

func appendAmount(all []Entity, s string) []Entity {
	all = appendGroup(all, s, reAmountWord, constants.Amount, false)
	return appendGroup(all, s, reAmountSym, constants.Amount, false)
}

func appendLocation(all []Entity, s string) []Entity {
	for _, sub := range reLocEn.FindAllStringSubmatchIndex(s, -1) {
		lo, hi := sub[2], sub[3]
		first := s[lo:hi]
		if i := strings.IndexByte(first, ' '); i > 0 {
			first = first[:i]
		}
		if _, skip := monthStoplist[first]; skip {
			continue
		}
		if e, ok := span(s, lo, hi, constants.Location, false); ok {
			all = append(all, e)
		}
	}
	all = appendGroup(all, s, reLocAddr, constants.Location, true)
	return appendGroup(all, s, reLocAr, constants.Location, true)
}

// appendPhone appends label-marked phone captures first, then generic
// international-looking digit groups filtered to 7-15 digits.
func appendPhone(all []Entity, s string) []Entity {
	all = appendGroup(all, s, rePhoneLabeled, constants.Phone, true)
	for _, re := range []*regexp.Regexp{rePhoneIntl, rePhoneLocal} {
		for _, m := range re.FindAllStringIndex(s, -1) {
			text := s[m[0]:m[1]]
			if n := countDigits(text); n < 7 || n > 15 {
				continue
			}
			all = append(all, Entity{
				Text:     text,
				Start:    m[0],
				End:      m[1],
				Category: constants.Phone,
			})
		}
	}
	return all
}

// appendEmail appends email addresses, skipping those exceeding RFC 5321 length.
func appendEmail(all []Entity, s string) []Entity {
	for _, m := range reEmail.FindAllStringIndex(s, -1) {
		if m[1]-m[0] > maxEmailLen {
			continue
		}
		all = append(all, Entity{
			Text:     s[m[0]:m[1]],
			Start:    m[0],
			End:      m[1],
			Category: constants.Email,
		})
	}
	return all
}

func appendOrganization(all []Entity, s string) []Entity {
	all = appendGroup(all, s, reOrgEn, constants.Organization, false)
	return appendGroup(all, s, reOrgAr, constants.Organization, false)
}

func appendPosition(all []Entity, s string) []Entity {
	for _, sub := range rePosEn.FindAllStringSubmatchIndex(s, -1) {
		// Two alternates: "as a <Title>" captures group 1, "as <Title>" group 2.
		lo, hi := sub[2], sub[3]
		if lo < 0 && len(sub) >= 6 {
			lo, hi = sub[4], sub[5]
		}
		if lo < 0 {
			continue
		}
		if e, ok := span(s, lo, hi, constants.Position, true); ok {
			all = append(all, e)
		}
	}
	return appendGroup(all, s, rePosAr, constants.Position, true)
}

func appendNotice(all []Entity, s string) []Entity {
	all = appendGroup(all, s, reNoticeEn1, constants.NoticePeriod, true)
	all = appendGroup(all, s, reNoticeEn2, constants.NoticePeriod, true)
	return appendGroup(all, s, reNoticeAr, constants.NoticePeriod, true)
}

// appendContractType scans the fixed vocabulary; the earliest occurrence in
// the text wins and only that one entry is emitted. Matching is rune-wise
// case-insensitive so the offsets always index the original string:
// lowercasing the whole input first would shift offsets wherever a rune's
// lowercase form has a different byte length (İ, Ⱥ).
func appendContractType(all []Entity, s string) []Entity {
	bestStart, bestEnd := -1, -1
	for _, term := range contractVocabulary {
		start, end := indexFold(s, term)
		if start < 0 {
			continue
		}
		if bestStart < 0 || start < bestStart || (start == bestStart && end-start > bestEnd-bestStart) {
			bestStart, bestEnd = start, end
		}
	}
	if bestStart < 0 {
		return all
	}
	return append(all, Entity{
		Text:     s[bestStart:bestEnd],
		Start:    bestStart,
		End:      bestEnd,
		Category: constants.ContractType,
		Labeled:  true,
	})
}

// indexFold returns the byte span in s of the first occurrence of the
// already-lowercase term, comparing rune by rune under unicode.ToLower.
// Returns (-1, -1) when absent.
func indexFold(s, term string) (int, int) {
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		if end, ok := foldMatchAt(s, i, term); ok {
			return i, end
		}
		i += size
	}
	return -1, -1
}

// foldMatchAt reports whether term matches s at byte offset start, returning
// the end offset in s of the match.
func foldMatchAt(s string, start int, term string) (int, bool) {
	i := start
	for _, tr := range term {
		if i >= len(s) {
			return 0, false
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.ToLower(r) != tr {
			return 0, false
		}
		i += size
	}
	return i, true
}

// span trims surrounding whitespace and trailing punctuation from s[lo:hi],
// keeping offsets consistent with the trimmed text.
func span(s string, lo, hi int, cat constants.Category, labeled bool) (Entity, bool) {
	text := s[lo:hi]
	left := strings.TrimLeft(text, " ")
	lo += len(text) - len(left)
	trimmed := strings.TrimRight(left, " .,;:،؛")
	hi = lo + len(trimmed)
	if trimmed == "" {
		return Entity{}, false
	}
	return Entity{Text: trimmed, Start: lo, End: hi, Category: cat, Labeled: labeled}, true
}

func countDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n
}

// resolveOverlaps removes overlapping entities within the same category.
// When two entities of one category overlap:
//   - The longer (more specific) match wins.
//   - If equal length, labeled wins over unlabeled.
//   - If still tied, the first one encountered wins.
//
// Matches of different categories are independent. Returns entities sorted
// by Start offset.
func resolveOverlaps(entities []Entity) []Entity {
	if len(entities) <= 1 {
		return entities
	}

	slices.SortStableFunc(entities, func(a, b Entity) int {
		if c := cmp.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		la := a.End - a.Start
		lb := b.End - b.Start
		if c := cmp.Compare(lb, la); c != 0 {
			return c
		}
		if a.Labeled != b.Labeled {
			if a.Labeled {
				return -1
			}
			return 1
		}
		return 0
	})

	result := make([]Entity, 0, len(entities))
	var cur constants.Category
	maxEnd := 0

	for _, e := range entities {
		if e.Category != cur {
			cur = e.Category
			maxEnd = 0
		}
		if e.Start >= maxEnd {
			result = append(result, e)
			if len(result) >= maxEntities {
				break
			}
			maxEnd = e.End
		}
	}

	slices.SortStableFunc(result, func(a, b Entity) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return result
}
