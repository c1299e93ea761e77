// Package fractionalindex generates lexicographically comparable string
// keys that always sort strictly between two neighbours, without ever
// renumbering existing keys. It backs the ordering of Array entries and
// Tree sibling positions.
//
// The scheme is the well-known fractional-indexing construction: an
// integer head plus a fractional tail, with symmetric positive/negative
// head ranges around a neutral character.
package fractionalindex

import (
	"crypto/rand"
	"math/big"

	"docengine/docerrors"
)

// Charset is a validated, immutable alphabet used to build and compare
// keys. The same character set plays two roles: it supplies the base-N
// digit values for both the integer head and the fractional tail, and its
// position relative to Neutral determines the sign and length of a key's
// integer head.
type Charset struct {
	digits       string
	neutralIndex int
}

// DefaultCharset is base62 (digits, then uppercase, then lowercase,
// strictly sorted by byte value) with the neutral character set to the
// first lowercase letter, leaving 36 head characters below it (the
// negative range) and 25 above it before the charset's own boundary.
var DefaultCharset = must(NewCharset("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz", 'a'))

func must(c *Charset, err error) *Charset {
	if err != nil {
		panic(err)
	}
	return c
}

// NewCharset validates and builds a Charset. The charset must be sorted in
// strictly increasing byte order, contain at least 7 distinct characters,
// and the neutral character must sit at least 3 positions away from
// either end so there is room to extend the integer head before hitting
// the charset boundary.
func NewCharset(chars string, neutral byte) (*Charset, error) {
	if len(chars) < 7 {
		return nil, docerrors.ErrFractionalIndex{Message: "charset must have at least 7 characters"}
	}
	for i := 1; i < len(chars); i++ {
		if chars[i] <= chars[i-1] {
			return nil, docerrors.ErrFractionalIndex{Message: "charset must be strictly sorted"}
		}
	}
	idx := -1
	for i := 0; i < len(chars); i++ {
		if chars[i] == neutral {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, docerrors.ErrFractionalIndex{Message: "neutral character not present in charset"}
	}
	if idx < 3 || len(chars)-1-idx < 3 {
		return nil, docerrors.ErrFractionalIndex{Message: "neutral character must be at least 3 positions from either boundary"}
	}
	return &Charset{digits: chars, neutralIndex: idx}, nil
}

func (c *Charset) base() int { return len(c.digits) }

func (c *Charset) digitValue(b byte) (int, bool) {
	for i := 0; i < len(c.digits); i++ {
		if c.digits[i] == b {
			return i, true
		}
	}
	return 0, false
}

func (c *Charset) digitChar(v int) byte { return c.digits[v] }

func (c *Charset) zeroDigit() byte { return c.digits[0] }
func (c *Charset) maxDigit() byte  { return c.digits[len(c.digits)-1] }

// integerLength returns how many characters (including the head byte
// itself) the integer part beginning with head occupies.
func (c *Charset) integerLength(head byte) (int, error) {
	idx, ok := c.digitValue(head)
	if !ok {
		return 0, docerrors.ErrFractionalIndex{Message: "invalid head character"}
	}
	if idx >= c.neutralIndex {
		return idx - c.neutralIndex + 2, nil
	}
	return c.neutralIndex - idx + 1, nil
}

func (c *Charset) integerPart(key string) (string, error) {
	if key == "" {
		return "", docerrors.ErrFractionalIndex{Message: "empty key"}
	}
	n, err := c.integerLength(key[0])
	if err != nil {
		return "", err
	}
	if n > len(key) {
		return "", docerrors.ErrFractionalIndex{Message: "key shorter than its declared integer length"}
	}
	return key[:n], nil
}

func (c *Charset) validateInteger(x string) error {
	if x == "" {
		return docerrors.ErrFractionalIndex{Message: "empty integer part"}
	}
	n, err := c.integerLength(x[0])
	if err != nil {
		return err
	}
	if n != len(x) {
		return docerrors.ErrFractionalIndex{Message: "integer part has wrong length for its head character"}
	}
	return nil
}

// ValidateKey checks that key is well-formed under c: a valid integer
// head, optionally followed by a fractional tail that does not end in the
// zero digit (which would be redundant padding).
func (c *Charset) ValidateKey(key string) error {
	ip, err := c.integerPart(key)
	if err != nil {
		return err
	}
	if err := c.validateInteger(ip); err != nil {
		return err
	}
	frac := key[len(ip):]
	if frac != "" && frac[len(frac)-1] == c.zeroDigit() {
		return docerrors.ErrFractionalIndex{Message: "key has a trailing zero digit"}
	}
	return nil
}

// incrementInteger returns the next integer head after x, extending its
// length by one character if x is already the maximum value
// representable at its current length. ok is false if x is already the
// largest integer this charset can represent (the positive boundary).
func (c *Charset) incrementInteger(x string) (string, bool) {
	head := x[0]
	digits := []byte(x[1:])
	carry := true
	for i := len(digits) - 1; carry && i >= 0; i-- {
		v, _ := c.digitValue(digits[i])
		v++
		if v == c.base() {
			digits[i] = c.zeroDigit()
		} else {
			digits[i] = c.digitChar(v)
			carry = false
		}
	}
	if !carry {
		return string(head) + string(digits), true
	}
	headIdx, _ := c.digitValue(head)
	if headIdx == c.neutralIndex-1 {
		// crossing the neutral boundary resets to the smallest
		// positive integer, regardless of how long x was.
		return string(c.digitChar(c.neutralIndex)) + string(c.zeroDigit()), true
	}
	if headIdx == len(c.digits)-1 {
		// boundary character: can't extend further in the positive direction.
		return "", false
	}
	newHeadIdx := headIdx + 1
	if newHeadIdx >= c.neutralIndex {
		// still moving away from neutral in the positive range:
		// longer integers need one more trailing digit.
		digits = append(digits, c.zeroDigit())
	} else {
		// still in the negative range, moving toward neutral:
		// integers get shorter.
		digits = digits[:len(digits)-1]
	}
	return string(c.digitChar(newHeadIdx)) + string(digits), true
}

// decrementInteger is the mirror of incrementInteger. ok is false at the
// negative boundary.
func (c *Charset) decrementInteger(x string) (string, bool) {
	head := x[0]
	digits := []byte(x[1:])
	borrow := true
	for i := len(digits) - 1; borrow && i >= 0; i-- {
		v, _ := c.digitValue(digits[i])
		v--
		if v < 0 {
			digits[i] = c.maxDigit()
		} else {
			digits[i] = c.digitChar(v)
			borrow = false
		}
	}
	if !borrow {
		return string(head) + string(digits), true
	}
	headIdx, _ := c.digitValue(head)
	if headIdx == c.neutralIndex {
		// crossing the neutral boundary resets to the smallest
		// negative integer.
		return string(c.digitChar(c.neutralIndex-1)) + string(c.maxDigit()), true
	}
	if headIdx == 0 {
		return "", false
	}
	newHeadIdx := headIdx - 1
	if newHeadIdx < c.neutralIndex {
		// still moving away from neutral in the negative range.
		digits = append(digits, c.maxDigit())
	} else {
		digits = digits[:len(digits)-1]
	}
	return string(c.digitChar(newHeadIdx)) + string(digits), true
}

// midpoint returns a string strictly between a and b lexicographically.
// hasB == false means "no upper bound" (infinity) and b is then ignored.
// a and b must not share a value; the caller enforces a < b.
func (c *Charset) midpoint(a, b string, hasB bool) string {
	if hasB {
		n := 0
		for {
			var ac byte
			if n < len(a) {
				ac = a[n]
			} else {
				ac = c.zeroDigit()
			}
			if n >= len(b) || ac != b[n] {
				break
			}
			n++
		}
		if n > 0 {
			return b[:n] + c.midpoint(a[n:], b[n:], true)
		}
	}

	var digitA int
	if len(a) > 0 {
		digitA, _ = c.digitValue(a[0])
	} else {
		digitA = 0
	}
	digitB := c.base()
	if hasB {
		digitB, _ = c.digitValue(b[0])
	}

	if digitB-digitA > 1 {
		mid := (digitA + digitB) / 2
		return string(c.digitChar(mid))
	}

	if hasB && len(b) > 1 {
		return b[:1]
	}

	var aRest string
	if len(a) > 0 {
		aRest = a[1:]
	}
	var prefix byte
	if len(a) > 0 {
		prefix = c.digitChar(digitA)
	} else {
		prefix = c.zeroDigit()
	}
	return string(prefix) + c.midpoint(aRest, "", false)
}

// GenerateKeyBetween returns a new key k such that lower < k < upper under
// lexicographic order. Either bound may be nil to request a key before
// the first or after the last existing key.
func GenerateKeyBetween(lower, upper *string) (string, error) {
	return DefaultCharset.GenerateKeyBetween(lower, upper)
}

// GenerateKeyBetween is the Charset-scoped variant of the package-level
// function, for callers using a non-default alphabet.
func (c *Charset) GenerateKeyBetween(lower, upper *string) (string, error) {
	if lower != nil {
		if err := c.ValidateKey(*lower); err != nil {
			return "", err
		}
	}
	if upper != nil {
		if err := c.ValidateKey(*upper); err != nil {
			return "", err
		}
	}
	if lower != nil && upper != nil && *lower >= *upper {
		return "", docerrors.ErrFractionalIndex{Message: "lower must be strictly less than upper"}
	}

	if lower == nil {
		if upper == nil {
			return string(c.digitChar(c.neutralIndex)) + string(c.zeroDigit()), nil
		}
		ib, _ := c.integerPart(*upper)
		fb := (*upper)[len(ib):]
		if res, ok := c.decrementInteger(ib); ok {
			if fb == "" {
				return res, nil
			}
			return res + c.midpoint("", fb, true), nil
		}
		// already at the smallest integer; split within the fraction.
		return c.midpoint("", *upper, true), nil
	}

	if upper == nil {
		ia, _ := c.integerPart(*lower)
		fa := (*lower)[len(ia):]
		if res, ok := c.incrementInteger(ia); ok {
			return res, nil
		}
		return ia + c.midpoint(fa, "", false), nil
	}

	ia, _ := c.integerPart(*lower)
	fa := (*lower)[len(ia):]
	ib, _ := c.integerPart(*upper)
	fb := (*upper)[len(ib):]

	if ia == ib {
		return ia + c.midpoint(fa, fb, true), nil
	}
	if res, ok := c.incrementInteger(ia); ok && res < *upper {
		return res, nil
	}
	return ia + c.midpoint(fa, "", false), nil
}

// GenerateNKeysBetween returns n keys, all strictly between lower and
// upper, strictly increasing, and mutually distinct. It splits the
// interval recursively around midpoints so the keys stay short.
func GenerateNKeysBetween(lower, upper *string, n int) ([]string, error) {
	return DefaultCharset.GenerateNKeysBetween(lower, upper, n)
}

// GenerateNKeysBetween is the Charset-scoped variant.
func (c *Charset) GenerateNKeysBetween(lower, upper *string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	if n == 1 {
		k, err := c.GenerateKeyBetween(lower, upper)
		if err != nil {
			return nil, err
		}
		return []string{k}, nil
	}
	mid := n / 2
	midKey, err := c.GenerateKeyBetween(lower, upper)
	if err != nil {
		return nil, err
	}
	before, err := c.GenerateNKeysBetween(lower, &midKey, mid)
	if err != nil {
		return nil, err
	}
	after, err := c.GenerateNKeysBetween(&midKey, upper, n-mid-1)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, n)
	result = append(result, before...)
	result = append(result, midKey)
	result = append(result, after...)
	return result, nil
}

// jitterDigits bounds how large a random offset JitteredKeyBetween may add,
// expressed as a count of base-N digits of randomness appended to the
// tail before perturbing it.
const jitterDigits = 4

// JitteredKeyBetween behaves like GenerateKeyBetween but, when both bounds
// are present and the gap between them is wide enough, lands the new key
// at a random position in the gap instead of the exact midpoint. This
// spreads concurrent inserts from different clients into different slots,
// reducing the odds that two independent inserts produce adjacent keys
// that need repeated rebalancing.
func JitteredKeyBetween(lower, upper *string) (string, error) {
	return DefaultCharset.JitteredKeyBetween(lower, upper)
}

// JitteredKeyBetween is the Charset-scoped variant.
func (c *Charset) JitteredKeyBetween(lower, upper *string) (string, error) {
	if lower == nil || upper == nil {
		return c.GenerateKeyBetween(lower, upper)
	}
	padded := *lower
	for i := 0; i < jitterDigits; i++ {
		padded += string(c.zeroDigit())
	}
	if padded >= *upper {
		return c.GenerateKeyBetween(lower, upper)
	}
	offset, err := c.randomOffset(jitterDigits)
	if err != nil {
		return "", err
	}
	candidate := padded[:len(padded)-jitterDigits] + offset
	if candidate <= *lower {
		candidate = *lower + string(c.zeroDigit()) + offset[1:]
	}
	if candidate >= *upper {
		return c.GenerateKeyBetween(lower, upper)
	}
	if err := c.ValidateKey(candidate); err != nil {
		return c.GenerateKeyBetween(lower, upper)
	}
	return candidate, nil
}

func (c *Charset) randomOffset(digits int) (string, error) {
	buf := make([]byte, digits)
	base := big.NewInt(int64(c.base()))
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", docerrors.ErrFractionalIndex{Message: "failed to generate random jitter: " + err.Error()}
		}
		buf[i] = c.digitChar(int(n.Int64()))
	}
	return string(buf), nil
}
