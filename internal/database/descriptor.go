package database

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/koustreak/rowbridge/internal/errs"
)

// Descriptor names a database and the credentials to reach it. It is built
// per call and never stored by the bridge; providers key their pools on it.
//
// Address accepts JDBC style and plain URL style:
//
//	jdbc:postgresql://db.internal:5432/app?sslmode=require
//	postgres://db.internal:5432/app
//	mysql://db.internal:3306/app?parseTime=true
//	sqlite:///var/lib/app/app.db
type Descriptor struct {
	Address  string
	Username string
	Secret   string
}

const jdbcPrefix = "jdbc:"

// redactedParams are query parameters whose values never reach a log line.
var redactedParams = []string{"password", "passwd", "pass", "secret", "sslpassword"}

// Scheme splits the address into its lower-cased scheme and the remainder
// after the colon, dropping any "jdbc:" prefix.
func (d Descriptor) Scheme() (scheme, rest string, err error) {
	addr := strings.TrimSpace(d.Address)
	if len(addr) >= len(jdbcPrefix) && strings.EqualFold(addr[:len(jdbcPrefix)], jdbcPrefix) {
		addr = addr[len(jdbcPrefix):]
	}
	i := strings.IndexByte(addr, ':')
	if i <= 0 {
		return "", "", errs.New(errs.ErrKindConnectionFailed, "connection address has no scheme")
	}
	return strings.ToLower(addr[:i]), addr[i+1:], nil
}

// URL returns the address without any "jdbc:" prefix.
func (d Descriptor) URL() (string, error) {
	scheme, rest, err := d.Scheme()
	if err != nil {
		return "", err
	}
	return scheme + ":" + rest, nil
}

// Redacted renders the address for logs: passwords in userinfo or query
// parameters are masked and the Secret field is never included.
func (d Descriptor) Redacted() string {
	raw, err := d.URL()
	if err != nil {
		return "<invalid address>"
	}
	u, err := url.Parse(raw)
	if err != nil {
		scheme, _, _ := d.Scheme()
		return scheme + ":<unparseable>"
	}
	q := u.Query()
	masked := false
	for _, k := range redactedParams {
		if q.Has(k) {
			q.Set(k, "xxxxx")
			masked = true
		}
	}
	if masked {
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}

// Key identifies the pool a descriptor belongs to. Two descriptors share a
// pool only when address and both credentials match.
func (d Descriptor) Key() string {
	h := sha256.New()
	h.Write([]byte(d.Address))
	h.Write([]byte{0})
	h.Write([]byte(d.Username))
	h.Write([]byte{0})
	h.Write([]byte(d.Secret))
	return hex.EncodeToString(h.Sum(nil))
}
