// Package parse turns raw Cisco IOS access-session output into typed records.
// Every function is pure: identical input text always yields identical output,
// and a missing field degrades to its sentinel instead of failing the parse.
package parse

import (
	"regexp"
	"strings"

	"github.com/dagolovach/ise-session-manager/internal/model"
)

// Sentinels reported when a field cannot be extracted from device output.
const (
	UnknownField = "Unknown"
	UnknownIP    = "unknown"
)

var (
	sessionCountRE = regexp.MustCompile(`Session count = (\d+)`)
	macRE          = regexp.MustCompile(`[0-9a-fA-F]{4}\.[0-9a-fA-F]{4}\.[0-9a-fA-F]{4}`)
	ipv4RE         = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)
	statusRE       = regexp.MustCompile(`Status:  (.*)`)
	interfaceRE    = regexp.MustCompile(`Interface: (.*)`)
	userNameRE     = regexp.MustCompile(`User-Name:\s+(.*)`)
	methodRE       = regexp.MustCompile(`(\w{3,5})\s+Authc\s`)
)

// Inventory is the parsed outcome of one session table query.
type Inventory struct {
	// Count is the device-reported session count, kept in string form.
	// Empty when the device output carried no count line.
	Count string
	// MACs lists every MAC address seen in the table in first-occurrence
	// order. Duplicates are preserved here and collapse naturally once the
	// collector keys sessions by MAC.
	MACs []string
}

// ParseInventory extracts the session count and the MAC inventory from
// `show access-session` output.
func ParseInventory(output string) Inventory {
	inv := Inventory{MACs: macRE.FindAllString(output, -1)}
	if m := sessionCountRE.FindStringSubmatch(output); m != nil {
		inv.Count = m[1]
	}
	return inv
}

// ParseDetail classifies one MAC's detail output. It returns a session record
// only when the text carries the literal FAIL or Unauthorized marker; sessions
// that authenticated cleanly yield (nil, false) and are never materialized.
// The markers are deliberately narrow and case-sensitive, matching the IOS
// output grammar this parser is written against.
func ParseDetail(output, fallbackMAC string) (*model.ClassifiedSession, bool) {
	if !strings.Contains(output, "FAIL") && !strings.Contains(output, "Unauthorized") {
		return nil, false
	}

	session := &model.ClassifiedSession{
		Status:     UnknownField,
		Interface:  UnknownField,
		MACAddress: fallbackMAC,
		IPAddress:  UnknownIP,
		UserName:   UnknownField,
		Method:     UnknownField,
	}

	if mac := macRE.FindString(output); mac != "" {
		session.MACAddress = mac
	}
	if ip := ipv4RE.FindString(output); ip != "" {
		session.IPAddress = ip
	}
	if m := statusRE.FindStringSubmatch(output); m != nil {
		session.Status = m[1]
	}
	if m := interfaceRE.FindStringSubmatch(output); m != nil {
		session.Interface = m[1]
	}
	if m := userNameRE.FindStringSubmatch(output); m != nil {
		session.UserName = m[1]
	}
	if m := methodRE.FindStringSubmatch(output); m != nil {
		session.Method = m[1]
	}

	return session, true
}
