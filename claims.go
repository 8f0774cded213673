package auth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims are the claims carried by an identity token. The iat and exp
// claims keep nanosecond fractions so a token expires exactly TTL after it
// was issued.
type JWTClaims struct {
	jwt.RegisteredClaims
	UID int64 `json:"uid"`
}

type claimsWire JWTClaims

// MarshalJSON writes iat and exp as decimal seconds with fractions
func (c JWTClaims) MarshalJSON() ([]byte, error) {
	out := struct {
		claimsWire
		IssuedAt  json.Number `json:"iat,omitempty"`
		ExpiresAt json.Number `json:"exp,omitempty"`
	}{claimsWire: claimsWire(c)}

	out.IssuedAt = formatNumericDate(c.RegisteredClaims.IssuedAt)
	out.ExpiresAt = formatNumericDate(c.RegisteredClaims.ExpiresAt)
	return json.Marshal(out)
}

// UnmarshalJSON reads iat and exp without going through float64
func (c *JWTClaims) UnmarshalJSON(b []byte) error {
	in := struct {
		*claimsWire
		IssuedAt  json.Number `json:"iat"`
		ExpiresAt json.Number `json:"exp"`
	}{claimsWire: (*claimsWire)(c)}

	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	var err error
	if c.RegisteredClaims.IssuedAt, err = parseNumericDate(in.IssuedAt); err != nil {
		return fmt.Errorf("iat: %w", err)
	}
	if c.RegisteredClaims.ExpiresAt, err = parseNumericDate(in.ExpiresAt); err != nil {
		return fmt.Errorf("exp: %w", err)
	}
	return nil
}

func formatNumericDate(d *jwt.NumericDate) json.Number {
	if d == nil {
		return ""
	}
	sec := d.Unix()
	ns := d.Nanosecond()
	if ns == 0 || sec < 0 {
		return json.Number(strconv.FormatInt(sec, 10))
	}
	frac := strings.TrimRight(fmt.Sprintf("%09d", ns), "0")
	return json.Number(strconv.FormatInt(sec, 10) + "." + frac)
}

func parseNumericDate(n json.Number) (*jwt.NumericDate, error) {
	if n == "" {
		return nil, nil
	}

	whole, frac, hasFrac := strings.Cut(n.String(), ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || strings.ContainsAny(frac, "eE+-") {
		// exponent forms are legal JSON numbers, fall back to float precision
		f, ferr := n.Float64()
		if ferr != nil {
			return nil, ferr
		}
		return &jwt.NumericDate{Time: time.Unix(0, 0).Add(time.Duration(f * float64(time.Second)))}, nil
	}

	var ns int64
	if hasFrac {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		if ns, err = strconv.ParseInt(frac, 10, 64); err != nil {
			return nil, err
		}
		if strings.HasPrefix(whole, "-") {
			ns = -ns
		}
	}
	return &jwt.NumericDate{Time: time.Unix(sec, ns)}, nil
}

// Subject returns the subject claim, the identity username
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// IdentityID returns the numeric identity id embedded at issuance
func (c *JWTClaims) IdentityID() int64 {
	return c.UID
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
