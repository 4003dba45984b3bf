package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var nonDigit = regexp.MustCompile(`\D`)

// CleanRUC removes all non-numeric characters from a RUC
func CleanRUC(ruc string) string {
	return nonDigit.ReplaceAllString(ruc, "")
}

// IsValidRUC validates the structure of an Ecuadorian RUC: 13 digits, a known
// province code, a known taxpayer class and a non-zero establishment. For
// natural persons the embedded national ID check digit is verified too.
func IsValidRUC(ruc string) bool {
	cleaned := CleanRUC(ruc)
	if len(cleaned) != 13 || cleaned != ruc {
		return false
	}

	province, _ := strconv.Atoi(cleaned[:2])
	if !(province >= 1 && province <= 24) && province != 30 {
		return false
	}

	if cleaned[10:] == "000" {
		return false
	}

	switch third := cleaned[2]; {
	case third < '6':
		return isValidCedula(cleaned[:10])
	case third == '6', third == '9':
		return true
	default:
		return false
	}
}

// isValidCedula checks the modulo-10 check digit of a national ID
func isValidCedula(id string) bool {
	sum := 0
	for i := 0; i < 9; i++ {
		d := int(id[i] - '0')
		if i%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	return check == int(id[9]-'0')
}

// AccessKey is the decoded form of a 49-digit electronic voucher access key.
type AccessKey struct {
	Raw          string
	IssueDate    time.Time
	VoucherType  string
	IssuerRUC    string
	Environment  string
	Series       string
	Sequence     string
	NumericCode  string
	EmissionType string
}

// SeriesNumber formats establishment, emission point and sequence the way the
// portal prints them (001-001-000012345).
func (k AccessKey) SeriesNumber() string {
	return fmt.Sprintf("%s-%s-%s", k.Series[:3], k.Series[3:], k.Sequence)
}

// ParseAccessKey validates and decodes an access key
func ParseAccessKey(key string) (AccessKey, error) {
	if len(key) != 49 || CleanRUC(key) != key {
		return AccessKey{}, fmt.Errorf("access key must contain exactly 49 digits")
	}
	if AccessKeyCheckDigit(key[:48]) != int(key[48]-'0') {
		return AccessKey{}, fmt.Errorf("access key check digit mismatch")
	}

	date, err := time.Parse("02012006", key[:8])
	if err != nil {
		return AccessKey{}, fmt.Errorf("access key date: %w", err)
	}

	return AccessKey{
		Raw:          key,
		IssueDate:    date,
		VoucherType:  key[8:10],
		IssuerRUC:    key[10:23],
		Environment:  key[23:24],
		Series:       key[24:30],
		Sequence:     key[30:39],
		NumericCode:  key[39:47],
		EmissionType: key[47:48],
	}, nil
}

// IsValidAccessKey reports whether key is a well-formed access key
func IsValidAccessKey(key string) bool {
	_, err := ParseAccessKey(key)
	return err == nil
}

// AccessKeyCheckDigit computes the modulo-11 check digit over the first 48
// digits, weights 2..7 cycling from the right.
func AccessKeyCheckDigit(digits string) int {
	sum := 0
	weight := 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight++
		if weight > 7 {
			weight = 2
		}
	}
	check := 11 - sum%11
	switch check {
	case 11:
		return 0
	case 10:
		return 1
	default:
		return check
	}
}
