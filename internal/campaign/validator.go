package campaign

import (
	"strconv"
	"strings"
)

// Row is one raw tabular recipient record, column name to value.
type Row map[string]string

const (
	phoneColumn    = "phone"
	nameColumn     = "name"
	priorityColumn = "priority"
)

// NormalizedRecipient is a validated recipient ready for registration.
type NormalizedRecipient struct {
	Phone     string
	Name      string
	Variables map[string]string
	Priority  int
}

// ValidationResult splits a batch into accepted recipients and rejected rows.
type ValidationResult struct {
	Recipients []NormalizedRecipient
	Errors     []RowError
}

// Err returns a ValidationError when any row was rejected, nil otherwise.
func (r ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &ValidationError{Rows: r.Errors}
}

// Validator normalizes raw recipient rows into E.164 phone records.
// Normalization is deterministic: the same raw value and default country
// code always yield the same canonical number or the same rejection.
type Validator struct {
	defaultCountryCode string
}

// NewValidator builds a validator. defaultCountryCode is applied to national
// numbers that carry no international prefix (e.g. "1" for NANP).
func NewValidator(defaultCountryCode string) *Validator {
	code := strings.TrimLeft(strings.TrimSpace(defaultCountryCode), "+")
	if code == "" {
		code = "1"
	}
	return &Validator{defaultCountryCode: code}
}

// ValidateBatch checks every row and never drops one silently: each row ends
// up either in Recipients or in Errors. Duplicate phones within the batch are
// flagged on the later row, not merged.
func (v *Validator) ValidateBatch(rows []Row) ValidationResult {
	result := ValidationResult{}
	seen := make(map[string]struct{}, len(rows))

	for i, row := range rows {
		var reasons []string

		raw, ok := row[phoneColumn]
		if !ok || strings.TrimSpace(raw) == "" {
			reasons = append(reasons, "missing phone")
		}

		var phone string
		if len(reasons) == 0 {
			phone, ok = v.Normalize(raw)
			if !ok {
				reasons = append(reasons, "invalid phone format")
			}
		}

		if phone != "" {
			if _, dup := seen[phone]; dup {
				reasons = append(reasons, "duplicate phone within batch")
			}
		}

		priority := 0
		if raw, ok := row[priorityColumn]; ok && strings.TrimSpace(raw) != "" {
			p, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil || p < 0 {
				reasons = append(reasons, "invalid priority")
			} else {
				priority = p
			}
		}

		if len(reasons) > 0 {
			result.Errors = append(result.Errors, RowError{Row: i + 1, Reasons: reasons})
			continue
		}

		seen[phone] = struct{}{}
		result.Recipients = append(result.Recipients, NormalizedRecipient{
			Phone:     phone,
			Name:      strings.TrimSpace(row[nameColumn]),
			Variables: extractVariables(row),
			Priority:  priority,
		})
	}
	return result
}

// Normalize converts a raw phone string to canonical E.164 form. The second
// return value is false when the input cannot form a plausible number.
func (v *Validator) Normalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)

	international := false
	if strings.HasPrefix(raw, "+") {
		international = true
		raw = raw[1:]
	} else if strings.HasPrefix(raw, "00") {
		international = true
		raw = raw[2:]
	}

	var digits strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// separators are tolerated between digits
		default:
			// anything else, including a '+' past the first character,
			// is not a phone number
			return "", false
		}
	}

	d := digits.String()
	if !international {
		// National numbers get the configured country prefix. A number that
		// already starts with the prefix and is longer than a national
		// number is assumed to carry it.
		if !strings.HasPrefix(d, v.defaultCountryCode) || len(d) <= 10 {
			d = v.defaultCountryCode + d
		}
	}

	if len(d) < 8 || len(d) > 15 || strings.HasPrefix(d, "0") {
		return "", false
	}
	return "+" + d, true
}

func extractVariables(row Row) map[string]string {
	vars := make(map[string]string, len(row))
	for col, val := range row {
		if col == phoneColumn || col == nameColumn || col == priorityColumn {
			continue
		}
		vars[col] = strings.TrimSpace(val)
	}
	if len(vars) == 0 {
		return nil
	}
	return vars
}
