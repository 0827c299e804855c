package camera

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// challenge is a parsed WWW-Authenticate: Digest header.
type challenge struct {
	realm     string
	nonce     string
	opaque    string
	qop       string
	algorithm string
}

// parseChallenge extracts the digest parameters from a WWW-Authenticate
// header. Quoted values may contain commas (qop="auth,auth-int").
func parseChallenge(header string) (challenge, error) {
	var ch challenge
	h := strings.TrimSpace(header)
	if len(h) < 7 || !strings.EqualFold(h[:7], "Digest ") {
		return ch, fmt.Errorf("not a digest challenge: %q", header)
	}
	for _, part := range splitParams(h[7:]) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		v = strings.Trim(strings.TrimSpace(v), `"`)
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "realm":
			ch.realm = v
		case "nonce":
			ch.nonce = v
		case "opaque":
			ch.opaque = v
		case "qop":
			ch.qop = v
		case "algorithm":
			ch.algorithm = v
		}
	}
	if ch.realm == "" || ch.nonce == "" {
		return ch, fmt.Errorf("invalid WWW-Authenticate header: %s", header)
	}
	return ch, nil
}

func splitParams(s string) []string {
	var parts []string
	var cur strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case r == ',' && !quoted:
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, strings.TrimSpace(cur.String()))
	}
	return parts
}

// authorization builds the Authorization header value for one request.
// Only MD5 is supported; that is all the cameras in the field offer.
func (ch challenge) authorization(user, pass, method, uri, cnonce string) string {
	ha1 := md5hex(fmt.Sprintf("%s:%s:%s", user, ch.realm, pass))
	ha2 := md5hex(fmt.Sprintf("%s:%s", method, uri))

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s"`, user, ch.realm, ch.nonce, uri)

	if ch.hasQopAuth() {
		response := md5hex(fmt.Sprintf("%s:%s:00000001:%s:auth:%s", ha1, ch.nonce, cnonce, ha2))
		fmt.Fprintf(&b, `, cnonce="%s", nc=00000001, qop=auth, response="%s"`, cnonce, response)
	} else {
		response := md5hex(fmt.Sprintf("%s:%s:%s", ha1, ch.nonce, ha2))
		fmt.Fprintf(&b, `, response="%s"`, response)
	}
	if ch.opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, ch.opaque)
	}
	if ch.algorithm != "" {
		fmt.Fprintf(&b, `, algorithm=%s`, ch.algorithm)
	}
	return b.String()
}

func (ch challenge) hasQopAuth() bool {
	for _, q := range strings.Split(ch.qop, ",") {
		if strings.TrimSpace(q) == "auth" {
			return true
		}
	}
	return false
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newCnonce() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0a4f113b"
	}
	return hex.EncodeToString(b)
}
