package ledger

import (
	"fmt"
	"net"
	"net/netip"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/roach88/windi/internal/canon"
)

// Binding describes how writes reach the ledger.
type Binding struct {
	// Address is the listen address, or "in-process" for direct calls.
	Address string

	// ConfirmedLocal is set by the operator once the binding has been
	// checked to accept only local writes.
	ConfirmedLocal bool
}

// InProcess is the binding used when the ledger is called directly.
var InProcess = Binding{Address: "in-process", ConfirmedLocal: true}

// aiActorPrefixes mark service identities that are not people.
var aiActorPrefixes = []string{"ai:", "agent:", "llm:", "model:", "bot:", "service:"}

// aiActorTokens match whole words of the folded actor name.
var aiActorTokens = map[string]bool{
	"ai":        true,
	"llm":       true,
	"gpt":       true,
	"chatgpt":   true,
	"copilot":   true,
	"chatbot":   true,
	"bot":       true,
	"assistant": true,
	"agent":     true,
}

// personalDataKeys are payload keys that carry personal identifiers.
var personalDataKeys = map[string]bool{
	"email":                  true,
	"e_mail":                 true,
	"email_address":          true,
	"ssn":                    true,
	"social_security_number": true,
	"iban":                   true,
	"phone":                  true,
	"phone_number":           true,
	"mobile":                 true,
	"passport":               true,
	"passport_number":        true,
	"date_of_birth":          true,
	"dob":                    true,
	"national_id":            true,
	"tax_id":                 true,
	"home_address":           true,
}

// personalDataPatterns match identifiers inside string values. A pattern
// with valid set only counts matches that pass it.
type personalDataMatcher struct {
	name  string
	re    *regexp.Regexp
	valid func(string) bool
}

var personalDataPatterns = []personalDataMatcher{
	{"email address", regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), nil},
	{"social security number", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), nil},
	{"IBAN", regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`), validIBAN},
	{"phone number", regexp.MustCompile(`\+\d{1,3}[ \-]?\d{3}[ \-]?\d{3,4}[ \-]?\d{3,4}\b`), nil},
}

// validIBAN applies the ISO 13616 mod-97 check. Document and submission
// IDs share the IBAN shape but almost never carry a valid check sum.
func validIBAN(s string) bool {
	rearranged := s[4:] + s[:4]
	rem := 0
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			rem = (rem*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			rem = (rem*100 + int(r-'A') + 10) % 97
		default:
			return false
		}
	}
	return rem == 1
}

func (p personalDataMatcher) match(s string) bool {
	if p.valid == nil {
		return p.re.MatchString(s)
	}
	for _, m := range p.re.FindAllString(s, -1) {
		if p.valid(m) {
			return true
		}
	}
	return false
}

// CheckActor rejects AI-identified decision actors.
func CheckActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidEvent)
	}
	folded := cases.Fold().String(strings.TrimSpace(actor))
	for _, p := range aiActorPrefixes {
		if strings.HasPrefix(folded, p) {
			return &InvariantViolation{
				Kind:   KindNonHumanActor,
				Detail: fmt.Sprintf("actor %q is not a human decision maker", actor),
			}
		}
	}
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if aiActorTokens[w] {
			return &InvariantViolation{
				Kind:   KindNonHumanActor,
				Detail: fmt.Sprintf("actor %q is not a human decision maker", actor),
			}
		}
	}
	return nil
}

// CheckPayload rejects payloads carrying personal identifiers. The detail
// names the offending path, never the value.
func CheckPayload(payload canon.Object) error {
	return checkValue("payload", payload)
}

func checkValue(path string, v canon.Value) error {
	switch val := v.(type) {
	case canon.String:
		for _, p := range personalDataPatterns {
			if p.match(string(val)) {
				return &InvariantViolation{
					Kind:   KindPersonalData,
					Detail: fmt.Sprintf("%s looks like %s", path, p.name),
				}
			}
		}
	case canon.Array:
		for i, elem := range val {
			if err := checkValue(fmt.Sprintf("%s[%d]", path, i), elem); err != nil {
				return err
			}
		}
	case canon.Object:
		for _, k := range val.SortedKeys() {
			child := path + "." + k
			if personalDataKeys[normalizeKey(k)] {
				return &InvariantViolation{
					Kind:   KindPersonalData,
					Detail: fmt.Sprintf("%s is a personal data field", child),
				}
			}
			if err := checkValue(child, val[k]); err != nil {
				return err
			}
		}
	}
	return nil
}

func normalizeKey(k string) string {
	k = cases.Fold().String(strings.TrimSpace(k))
	return strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(k)
}

// CheckLocality rejects writes through a binding that is not confirmed
// local, or from a non-loopback origin.
func CheckLocality(b Binding, origin string) error {
	if !b.ConfirmedLocal {
		return &InvariantViolation{
			Kind:   KindRemoteWrite,
			Detail: fmt.Sprintf("binding %q is not confirmed local-only", b.Address),
		}
	}
	if b.Address != InProcess.Address && !isLoopback(b.Address) {
		return &InvariantViolation{
			Kind:   KindRemoteWrite,
			Detail: fmt.Sprintf("binding %q is not a loopback address", b.Address),
		}
	}
	if origin != "" && !isLoopback(origin) {
		return &InvariantViolation{
			Kind:   KindRemoteWrite,
			Detail: fmt.Sprintf("write from %q is not local", origin),
		}
	}
	return nil
}

// isLoopback accepts "host", "host:port", "[v6]:port" and unix socket paths.
func isLoopback(addr string) bool {
	if strings.HasPrefix(addr, "unix:") || strings.HasPrefix(addr, "/") {
		return true
	}
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return ip.IsLoopback()
}

// Check runs every gate against ev for writes through b.
func Check(b Binding, ev Event) error {
	if strings.TrimSpace(ev.Action) == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidEvent)
	}
	if err := CheckActor(ev.Actor); err != nil {
		return err
	}
	if err := CheckPayload(ev.Payload); err != nil {
		return err
	}
	return CheckLocality(b, ev.Origin)
}
